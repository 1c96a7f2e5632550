package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	creds := Credentials{
		ClientID:     "id",
		ClientSecret: "secret",
		Username:     "bot",
		Password:     "hunter2",
	}
	return NewClient(server.URL, server.URL, "test-agent", creds, 5*time.Second, ClientConfig{
		MaxRetries:     2,
		RetryDelayBase: time.Millisecond,
	})
}

func tokenHandler(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
}

const threadJSON = `[
  {"kind":"Listing","data":{"children":[
    {"kind":"t3","data":{"id":"q3mxnq","title":"Top 5 picks?","permalink":"/r/CryptoCurrency/comments/q3mxnq/top_5_picks/","subreddit":"CryptoCurrency","author":"op","num_comments":3,"created_utc":1633856400,"locked":false}}
  ]}},
  {"kind":"Listing","data":{"children":[
    {"kind":"t1","data":{"id":"c1","author":"alice","body":"BTC all the way","link_id":"t3_q3mxnq","replies":{"kind":"Listing","data":{"children":[
      {"kind":"t1","data":{"id":"c2","author":"bob","body":"bitcoin indeed","link_id":"t3_q3mxnq","replies":""}}
    ]}}}},
    {"kind":"more","data":{"children":["c3","c4"]}}
  ]}}
]`

func TestClient_Thread(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			tokenHandler(w)
		case "/comments/q3mxnq":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, threadJSON)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))

	sub, nodes, err := client.Thread(context.Background(), "q3mxnq")
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}

	if sub.ID != "q3mxnq" || sub.Locked || sub.NumComments != 3 {
		t.Errorf("unexpected submission: %+v", sub)
	}
	if sub.CreatedUTC.IsZero() {
		t.Error("created time not parsed")
	}

	if len(nodes) != 2 {
		t.Fatalf("got %d top-level nodes, want 2", len(nodes))
	}
	if nodes[0].Comment == nil || nodes[0].Comment.ID != "c1" {
		t.Fatalf("first node should be comment c1: %+v", nodes[0])
	}
	if len(nodes[0].Comment.Replies) != 1 || nodes[0].Comment.Replies[0].Comment.ID != "c2" {
		t.Errorf("nested reply not parsed: %+v", nodes[0].Comment.Replies)
	}
	if nodes[1].More == nil || len(nodes[1].More.Children) != 2 {
		t.Errorf("more marker not parsed: %+v", nodes[1])
	}
	if nodes[1].More.SubmissionID != "q3mxnq" {
		t.Errorf("more marker missing submission id: %+v", nodes[1].More)
	}
}

func TestClient_SubmissionByURL(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			tokenHandler(w)
		case "/api/info":
			if got := r.URL.Query().Get("id"); got != "t3_q3mxnq" {
				t.Errorf("resolved fullname = %q, want t3_q3mxnq", got)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"kind":"Listing","data":{"children":[
				{"kind":"t3","data":{"id":"q3mxnq","title":"Top 5 picks?","subreddit":"CryptoCurrency","num_comments":3,"created_utc":1633856400}}
			]}}`)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))

	sub, err := client.SubmissionByURL(context.Background(),
		"https://www.reddit.com/r/CryptoCurrency/comments/q3mxnq/top_5_picks/")
	if err != nil {
		t.Fatalf("SubmissionByURL: %v", err)
	}
	if sub.ID != "q3mxnq" {
		t.Errorf("sub.ID = %q, want q3mxnq", sub.ID)
	}

	if _, err := client.SubmissionByURL(context.Background(), "https://www.reddit.com/r/CryptoCurrency/"); err == nil {
		t.Error("expected error for URL without a submission id")
	}
}

func TestClient_Thread_Inaccessible(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			tokenHandler(w)
			return
		}
		http.Error(w, "banned", http.StatusForbidden)
	}))

	_, _, err := client.Thread(context.Background(), "q3mxnq")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsInaccessible(err) {
		t.Errorf("expected ErrInaccessible, got %v", err)
	}
}

func TestClient_ExpandMore_Chunks(t *testing.T) {
	var calls int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			tokenHandler(w)
		case "/api/morechildren":
			calls++
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"json":{"data":{"things":[
				{"kind":"t1","data":{"id":"m%d","author":"carol","body":"doge","link_id":"t3_q3mxnq","replies":""}}
			]}}}`, calls)
		default:
			http.NotFound(w, r)
		}
	}))

	children := make([]string, 150)
	for i := range children {
		children[i] = fmt.Sprintf("c%d", i)
	}
	nodes, err := client.ExpandMore(context.Background(), &More{SubmissionID: "q3mxnq", Children: children})
	if err != nil {
		t.Fatalf("ExpandMore: %v", err)
	}
	if calls != 2 {
		t.Errorf("got %d morechildren calls, want 2 (chunked at 100)", calls)
	}
	if len(nodes) != 2 {
		t.Errorf("got %d nodes, want 2", len(nodes))
	}
}

func TestClient_Reply(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			tokenHandler(w)
		case "/api/comment":
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if got := r.PostForm.Get("thing_id"); got != "t3_q3mxnq" {
				t.Errorf("got thing_id %q, want t3_q3mxnq", got)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"json":{"errors":[],"data":{"things":[
				{"kind":"t1","data":{"id":"botreply","author":"bot","body":"results","link_id":"t3_q3mxnq","replies":""}}
			]}}}`)
		default:
			http.NotFound(w, r)
		}
	}))

	comment, err := client.Reply(context.Background(), SubmissionFullname("q3mxnq"), "results")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if comment.ID != "botreply" {
		t.Errorf("got comment id %q, want botreply", comment.ID)
	}
}

func TestClient_Reply_Rejected(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			tokenHandler(w)
		case "/api/comment":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"json":{"errors":[["RATELIMIT","try again later","ratelimit"]],"data":{"things":[]}}}`)
		default:
			http.NotFound(w, r)
		}
	}))

	if _, err := client.Reply(context.Background(), "t3_q3mxnq", "text"); err == nil {
		t.Error("expected error for rejected reply")
	}
}

func TestClient_Me_Cached(t *testing.T) {
	var calls int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			tokenHandler(w)
		case "/api/v1/me":
			calls++
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"name":"CryptoCounterBot"}`)
		default:
			http.NotFound(w, r)
		}
	}))

	for i := 0; i < 3; i++ {
		name, err := client.Me(context.Background())
		if err != nil {
			t.Fatalf("Me: %v", err)
		}
		if name != "CryptoCounterBot" {
			t.Errorf("got name %q", name)
		}
	}
	if calls != 1 {
		t.Errorf("got %d identity calls, want 1 (cached)", calls)
	}
}

func TestParseReplies_EmptyString(t *testing.T) {
	nodes, err := parseReplies(json.RawMessage(`""`), "q3mxnq")
	if err != nil {
		t.Fatalf("parseReplies: %v", err)
	}
	if nodes != nil {
		t.Errorf("expected nil nodes for empty replies, got %v", nodes)
	}
}

func TestSubmissionIDFromContext(t *testing.T) {
	tests := []struct {
		context string
		want    string
	}{
		{"/r/CryptoCurrency/comments/q3mxnq/top_5/hfkx1a/?context=3", "q3mxnq"},
		{"/r/test/comments/abc123/title/", "abc123"},
		{"/message/messages/xyz", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := submissionIDFromContext(tt.context); got != tt.want {
			t.Errorf("submissionIDFromContext(%q) = %q, want %q", tt.context, got, tt.want)
		}
	}
}

func TestFullnames(t *testing.T) {
	if got := CommentFullname("abc"); got != "t1_abc" {
		t.Errorf("CommentFullname = %q", got)
	}
	if got := CommentFullname("t1_abc"); got != "t1_abc" {
		t.Errorf("CommentFullname idempotence = %q", got)
	}
	if got := SubmissionFullname("abc"); got != "t3_abc" {
		t.Errorf("SubmissionFullname = %q", got)
	}
}
