// Package reddit provides a client for the Reddit OAuth API: thread and
// comment tree fetching, posting, editing, and inbox access.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrInaccessible marks a thread whose hosting community is banned,
// private, or otherwise unreachable for the bot.
var ErrInaccessible = errors.New("submission inaccessible")

// IsInaccessible reports whether err wraps ErrInaccessible.
func IsInaccessible(err error) bool {
	return errors.Is(err, ErrInaccessible)
}

const moreChildrenChunk = 100

// Credentials holds the script-app credentials for the password grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// ClientConfig holds tunables for the HTTP layer.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client provides access to the Reddit API.
type Client struct {
	authURL    string
	apiURL     string
	userAgent  string
	creds      Credentials
	httpClient *http.Client
	config     ClientConfig

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	me          string
}

// NewClient creates a new Reddit client.
func NewClient(authURL, apiURL, userAgent string, creds Credentials, timeout time.Duration, config ClientConfig) *Client {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelayBase <= 0 {
		config.RetryDelayBase = time.Second
	}
	return &Client{
		authURL:   strings.TrimSuffix(authURL, "/"),
		apiURL:    strings.TrimSuffix(apiURL, "/"),
		userAgent: userAgent,
		creds:     creds,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		config: config,
	}
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	ExpiresIn   float64 `json:"expires_in"`
}

// token returns a cached access token, fetching a new one when the cached
// token is absent or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token endpoint returned no access token")
	}

	c.accessToken = tr.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// doRequest performs an authenticated request with retry on transport
// errors and server errors. 403 and 404 surface ErrInaccessible.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, form url.Values) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.config.MaxRetries; i++ {
		token, err := c.token(ctx)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelayBase * time.Duration(i+1)):
			}
			continue
		}

		var req *http.Request
		if form != nil {
			req, err = http.NewRequestWithContext(ctx, method, urlStr, strings.NewReader(form.Encode()))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		} else {
			req, err = http.NewRequestWithContext(ctx, method, urlStr, nil)
			if err != nil {
				return nil, err
			}
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelayBase * time.Duration(i+1)):
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d", ErrInaccessible, resp.StatusCode)
		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			// Token may have been revoked; drop it and retry.
			c.mu.Lock()
			c.accessToken = ""
			c.mu.Unlock()
			lastErr = fmt.Errorf("unauthorized: %d", resp.StatusCode)
			continue
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelayBase * time.Duration(i+1)):
			}
			continue
		case resp.StatusCode >= 400:
			resp.Body.Close()
			return nil, fmt.Errorf("request failed: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) getJSON(ctx context.Context, urlStr string, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Me returns the bot account's username, cached after the first call.
func (c *Client) Me(ctx context.Context) (string, error) {
	c.mu.Lock()
	me := c.me
	c.mu.Unlock()
	if me != "" {
		return me, nil
	}

	var data struct {
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, c.apiURL+"/api/v1/me?raw_json=1", &data); err != nil {
		return "", fmt.Errorf("failed to fetch identity: %w", err)
	}
	if data.Name == "" {
		return "", errors.New("identity endpoint returned no name")
	}

	c.mu.Lock()
	c.me = data.Name
	c.mu.Unlock()
	return data.Name, nil
}

// Submission fetches the metadata of a single submission by id.
func (c *Client) Submission(ctx context.Context, id string) (*Submission, error) {
	var listing struct {
		Data listingData `json:"data"`
	}
	u := fmt.Sprintf("%s/api/info?id=%s&raw_json=1", c.apiURL, url.QueryEscape(SubmissionFullname(id)))
	if err := c.getJSON(ctx, u, &listing); err != nil {
		return nil, fmt.Errorf("failed to fetch submission %s: %w", id, err)
	}
	for _, th := range listing.Data.Children {
		if th.Kind != "t3" {
			continue
		}
		var sd submissionData
		if err := json.Unmarshal(th.Data, &sd); err != nil {
			return nil, fmt.Errorf("failed to decode submission: %w", err)
		}
		return sd.toSubmission(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInaccessible, id)
}

// SubmissionByURL resolves a submission from its permalink URL.
func (c *Client) SubmissionByURL(ctx context.Context, rawURL string) (*Submission, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse submission URL: %w", err)
	}
	id := submissionIDFromContext(u.Path)
	if id == "" {
		return nil, fmt.Errorf("no submission id in URL: %s", rawURL)
	}
	return c.Submission(ctx, id)
}

// Thread fetches a submission together with its top-level comment tree.
// Branches Reddit elided are returned as More markers.
func (c *Client) Thread(ctx context.Context, id string) (*Submission, []Node, error) {
	var listings []struct {
		Data listingData `json:"data"`
	}
	u := fmt.Sprintf("%s/comments/%s?limit=500&raw_json=1", c.apiURL, url.PathEscape(id))
	if err := c.getJSON(ctx, u, &listings); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch thread %s: %w", id, err)
	}
	if len(listings) < 2 || len(listings[0].Data.Children) == 0 {
		return nil, nil, fmt.Errorf("unexpected thread response for %s", id)
	}

	var sd submissionData
	if err := json.Unmarshal(listings[0].Data.Children[0].Data, &sd); err != nil {
		return nil, nil, fmt.Errorf("failed to decode submission: %w", err)
	}
	sub := sd.toSubmission()

	nodes, err := parseNodes(listings[1].Data.Children, sub.ID)
	if err != nil {
		return nil, nil, err
	}
	return sub, nodes, nil
}

// ExpandMore fetches the deferred children of a More marker. Reddit caps
// the morechildren endpoint, so large markers are expanded in chunks.
func (c *Client) ExpandMore(ctx context.Context, more *More) ([]Node, error) {
	var nodes []Node
	children := more.Children
	for len(children) > 0 {
		n := len(children)
		if n > moreChildrenChunk {
			n = moreChildrenChunk
		}
		chunk, rest := children[:n], children[n:]
		children = rest

		u := fmt.Sprintf("%s/api/morechildren?api_type=json&link_id=%s&children=%s&raw_json=1",
			c.apiURL, url.QueryEscape(SubmissionFullname(more.SubmissionID)),
			url.QueryEscape(strings.Join(chunk, ",")))

		var body struct {
			JSON struct {
				Data struct {
					Things []thing `json:"things"`
				} `json:"data"`
			} `json:"json"`
		}
		if err := c.getJSON(ctx, u, &body); err != nil {
			return nil, fmt.Errorf("failed to expand comment branch: %w", err)
		}

		parsed, err := parseNodes(body.JSON.Data.Things, more.SubmissionID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, parsed...)
	}
	return nodes, nil
}

type apiResponse struct {
	JSON struct {
		Errors [][]string `json:"errors"`
		Data   struct {
			Things []thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// Reply posts a new comment under the given parent fullname (a t1_ or t3_
// thing) and returns the created comment.
func (c *Client) Reply(ctx context.Context, parentFullname, text string) (*Comment, error) {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", parentFullname)
	form.Set("text", text)

	resp, err := c.doRequest(ctx, http.MethodPost, c.apiURL+"/api/comment", form)
	if err != nil {
		return nil, fmt.Errorf("failed to post reply: %w", err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode reply response: %w", err)
	}
	if len(body.JSON.Errors) > 0 {
		return nil, fmt.Errorf("reply rejected: %v", body.JSON.Errors[0])
	}

	nodes, err := parseNodes(body.JSON.Data.Things, "")
	if err != nil {
		return nil, err
	}
	for _, node := range nodes {
		if node.Comment != nil {
			return node.Comment, nil
		}
	}
	return nil, errors.New("reply response contained no comment")
}

// EditComment replaces the body of one of the bot's own comments.
func (c *Client) EditComment(ctx context.Context, commentID, text string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", CommentFullname(commentID))
	form.Set("text", text)

	resp, err := c.doRequest(ctx, http.MethodPost, c.apiURL+"/api/editusertext", form)
	if err != nil {
		return fmt.Errorf("failed to edit comment: %w", err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode edit response: %w", err)
	}
	if len(body.JSON.Errors) > 0 {
		return fmt.Errorf("edit rejected: %v", body.JSON.Errors[0])
	}
	return nil
}

// MarkRead marks an inbox item as read.
func (c *Client) MarkRead(ctx context.Context, fullname string) error {
	form := url.Values{}
	form.Set("id", fullname)

	resp, err := c.doRequest(ctx, http.MethodPost, c.apiURL+"/api/read_message", form)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	resp.Body.Close()
	return nil
}
