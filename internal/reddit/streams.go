package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/logger"
)

const seenLimit = 1024

// seenSet remembers recently emitted ids with bounded FIFO eviction so
// long-running streams don't grow without limit.
type seenSet struct {
	ids   map[string]struct{}
	order []string
}

func newSeenSet() *seenSet {
	return &seenSet{ids: make(map[string]struct{})}
}

func (s *seenSet) add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > seenLimit {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
	return true
}

type identified interface {
	streamID() string
}

func (c *Comment) streamID() string    { return c.ID }
func (s *Submission) streamID() string { return s.ID }

// StreamComments polls the watched subreddits for new comments and emits
// each comment once. Items present on the first poll are skipped. The
// channel is closed when ctx is cancelled.
func (c *Client) StreamComments(ctx context.Context, subreddits []string, interval time.Duration) <-chan *Comment {
	out := make(chan *Comment)
	u := fmt.Sprintf("%s/r/%s/comments?limit=100&raw_json=1",
		c.apiURL, url.PathEscape(strings.Join(subreddits, "+")))

	go pollListing(ctx, c, out, u, "t1", interval, func(th thing) (*Comment, error) {
		var cd commentData
		if err := json.Unmarshal(th.Data, &cd); err != nil {
			return nil, fmt.Errorf("failed to decode streamed comment: %w", err)
		}
		return &Comment{
			ID:           cd.ID,
			Author:       cd.Author,
			Body:         cd.Body,
			Permalink:    cd.Permalink,
			SubmissionID: strings.TrimPrefix(cd.LinkID, "t3_"),
		}, nil
	})
	return out
}

// StreamSubmissions polls the watched subreddits for new submissions,
// skip-existing like StreamComments.
func (c *Client) StreamSubmissions(ctx context.Context, subreddits []string, interval time.Duration) <-chan *Submission {
	out := make(chan *Submission)
	u := fmt.Sprintf("%s/r/%s/new?limit=100&raw_json=1",
		c.apiURL, url.PathEscape(strings.Join(subreddits, "+")))

	go pollListing(ctx, c, out, u, "t3", interval, func(th thing) (*Submission, error) {
		var sd submissionData
		if err := json.Unmarshal(th.Data, &sd); err != nil {
			return nil, fmt.Errorf("failed to decode streamed submission: %w", err)
		}
		return sd.toSubmission(), nil
	})
	return out
}

// pollListing is the shared polling loop behind the comment and
// submission streams.
func pollListing[T identified](ctx context.Context, c *Client, out chan<- T, urlStr, kind string, interval time.Duration, decode func(thing) (T, error)) {
	defer close(out)

	if interval <= 0 {
		interval = 15 * time.Second
	}
	seen := newSeenSet()
	first := true
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var listing struct {
			Data listingData `json:"data"`
		}
		if err := c.getJSON(ctx, urlStr, &listing); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Stream poll failed: %v", err)
		} else {
			// Listings are newest-first; emit oldest-first.
			children := listing.Data.Children
			for i := len(children) - 1; i >= 0; i-- {
				th := children[i]
				if th.Kind != kind {
					continue
				}
				item, err := decode(th)
				if err != nil {
					logger.Warn("Stream decode failed: %v", err)
					continue
				}
				if !seen.add(item.streamID()) || first {
					continue
				}
				select {
				case out <- item:
				case <-ctx.Done():
					return
				}
			}
			first = false
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// StreamMentions polls the unread inbox and emits comment items. The
// unread listing is the de-duplication mechanism here: callers mark
// handled items read via MarkRead, everything else is re-emitted.
func (c *Client) StreamMentions(ctx context.Context, interval time.Duration) <-chan *Message {
	out := make(chan *Message)
	u := c.apiURL + "/message/unread?limit=100&raw_json=1"

	go func() {
		defer close(out)

		if interval <= 0 {
			interval = 15 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			var listing struct {
				Data listingData `json:"data"`
			}
			if err := c.getJSON(ctx, u, &listing); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("Inbox poll failed: %v", err)
			} else {
				children := listing.Data.Children
				for i := len(children) - 1; i >= 0; i-- {
					th := children[i]
					if th.Kind != "t1" {
						continue
					}
					var md messageData
					if err := json.Unmarshal(th.Data, &md); err != nil {
						logger.Warn("Inbox decode failed: %v", err)
						continue
					}
					msg := &Message{
						ID:           md.Name,
						Author:       md.Author,
						Body:         md.Body,
						CommentID:    md.ID,
						SubmissionID: submissionIDFromContext(md.Context),
						WasComment:   md.WasComment,
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}
