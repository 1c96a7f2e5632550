package reddit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Submission is the metadata of a root-level post.
type Submission struct {
	ID          string
	Title       string
	Permalink   string
	Subreddit   string
	Author      string
	NumComments int
	CreatedUTC  time.Time
	Locked      bool
}

// Age returns the time elapsed since the submission was created.
func (s *Submission) Age() time.Duration {
	return time.Since(s.CreatedUTC)
}

// Comment is a single leaf comment with its already-fetched children.
type Comment struct {
	ID           string
	Author       string
	Body         string
	Permalink    string
	SubmissionID string
	Replies      []Node
}

// More is a deferred branch marker: child comments that have not been
// fetched yet and require an explicit expansion call.
type More struct {
	SubmissionID string
	Children     []string
}

// Node is one entry of a comment tree: either a leaf comment or a
// deferred branch marker.
type Node struct {
	Comment *Comment
	More    *More
}

// Message is an inbox item.
type Message struct {
	ID           string // fullname, e.g. t1_xxx
	Author       string
	Body         string
	CommentID    string
	SubmissionID string
	WasComment   bool
}

// CommentFullname prefixes a bare comment id with its thing kind.
func CommentFullname(id string) string {
	if strings.HasPrefix(id, "t1_") {
		return id
	}
	return "t1_" + id
}

// SubmissionFullname prefixes a bare submission id with its thing kind.
func SubmissionFullname(id string) string {
	if strings.HasPrefix(id, "t3_") {
		return id
	}
	return "t3_" + id
}

// thing is Reddit's generic wire envelope.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listingData struct {
	Children []thing `json:"children"`
}

type submissionData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Permalink   string  `json:"permalink"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Locked      bool    `json:"locked"`
}

type commentData struct {
	ID        string          `json:"id"`
	Author    string          `json:"author"`
	Body      string          `json:"body"`
	Permalink string          `json:"permalink"`
	LinkID    string          `json:"link_id"`
	Replies   json.RawMessage `json:"replies"` // "" or a nested listing
}

type moreData struct {
	Children []string `json:"children"`
}

type messageData struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Author     string `json:"author"`
	Body       string `json:"body"`
	Context    string `json:"context"`
	WasComment bool   `json:"was_comment"`
}

func (d *submissionData) toSubmission() *Submission {
	return &Submission{
		ID:          d.ID,
		Title:       d.Title,
		Permalink:   d.Permalink,
		Subreddit:   d.Subreddit,
		Author:      d.Author,
		NumComments: d.NumComments,
		CreatedUTC:  time.Unix(int64(d.CreatedUTC), 0).UTC(),
		Locked:      d.Locked,
	}
}

// parseNodes converts a slice of wire things into tree nodes. Unknown
// kinds are skipped.
func parseNodes(things []thing, submissionID string) ([]Node, error) {
	var nodes []Node
	for _, th := range things {
		switch th.Kind {
		case "t1":
			var cd commentData
			if err := json.Unmarshal(th.Data, &cd); err != nil {
				return nil, fmt.Errorf("failed to decode comment: %w", err)
			}
			c := &Comment{
				ID:           cd.ID,
				Author:       cd.Author,
				Body:         cd.Body,
				Permalink:    cd.Permalink,
				SubmissionID: strings.TrimPrefix(cd.LinkID, "t3_"),
			}
			if c.SubmissionID == "" {
				c.SubmissionID = submissionID
			}
			replies, err := parseReplies(cd.Replies, c.SubmissionID)
			if err != nil {
				return nil, err
			}
			c.Replies = replies
			nodes = append(nodes, Node{Comment: c})
		case "more":
			var md moreData
			if err := json.Unmarshal(th.Data, &md); err != nil {
				return nil, fmt.Errorf("failed to decode more marker: %w", err)
			}
			if len(md.Children) == 0 {
				continue
			}
			nodes = append(nodes, Node{More: &More{
				SubmissionID: submissionID,
				Children:     md.Children,
			}})
		}
	}
	return nodes, nil
}

// parseReplies handles the replies field, which Reddit encodes as either
// an empty string or a nested listing.
func parseReplies(raw json.RawMessage, submissionID string) ([]Node, error) {
	if len(raw) == 0 || raw[0] != '{' {
		return nil, nil
	}
	var th thing
	if err := json.Unmarshal(raw, &th); err != nil {
		return nil, fmt.Errorf("failed to decode replies: %w", err)
	}
	var ld listingData
	if err := json.Unmarshal(th.Data, &ld); err != nil {
		return nil, fmt.Errorf("failed to decode replies listing: %w", err)
	}
	return parseNodes(ld.Children, submissionID)
}

// submissionIDFromContext extracts the submission id from an inbox item's
// context permalink, e.g. "/r/sub/comments/q3mxnq/title/hfkx1a/?context=3".
func submissionIDFromContext(context string) string {
	parts := strings.Split(context, "/")
	for i, part := range parts {
		if part == "comments" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
