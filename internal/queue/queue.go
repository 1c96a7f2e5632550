// Package queue serializes all outbound Reddit writes. Replies and
// edits from every tracker funnel through a single worker so the bot
// never posts faster than one action per cooldown period.
package queue

import (
	"context"
	"time"

	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/logger"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/reddit"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/storage"
)

const defaultCooldown = 5 * time.Second

// Action is a queued Reddit write. The set of implementations is
// closed: Reply and Edit.
type Action interface {
	action()
}

// Reply posts a new comment under ParentFullname. When SubmissionID is
// set, the created comment's ID is recorded on that submission so later
// cycles edit instead of replying again.
type Reply struct {
	ParentFullname string
	Text           string
	SubmissionID   string
}

// Edit rewrites the body of a comment the bot posted earlier.
type Edit struct {
	CommentID string
	Text      string
}

func (Reply) action() {}
func (Edit) action()  {}

// Poster is the subset of the Reddit client the worker needs.
type Poster interface {
	Reply(ctx context.Context, parentFullname, text string) (*reddit.Comment, error)
	EditComment(ctx context.Context, commentID, text string) error
}

// Queue owns the buffered action channel and the single consumer.
type Queue struct {
	actions  chan Action
	poster   Poster
	store    *storage.Storage
	cooldown time.Duration
}

// New sizes the buffer for the expected number of concurrent trackers.
// Enqueue blocks once the buffer fills, which back-pressures trackers
// instead of dropping actions.
func New(poster Poster, store *storage.Storage, size int, cooldown time.Duration) *Queue {
	if size <= 0 {
		size = 256
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Queue{
		actions:  make(chan Action, size),
		poster:   poster,
		store:    store,
		cooldown: cooldown,
	}
}

// Enqueue submits an action for the worker. It blocks when the buffer
// is full and gives up when ctx is done.
func (q *Queue) Enqueue(ctx context.Context, action Action) error {
	select {
	case q.actions <- action:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes actions until ctx is done. Each action is followed by a
// cooldown sleep whether it succeeded or not. A failed action is logged
// and dropped; the tracker that queued it will rebuild it on its next
// cycle anyway.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case action := <-q.actions:
			q.process(ctx, action)
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.cooldown):
			}
		}
	}
}

func (q *Queue) process(ctx context.Context, action Action) {
	switch a := action.(type) {
	case Reply:
		comment, err := q.poster.Reply(ctx, a.ParentFullname, a.Text)
		if err != nil {
			logger.Error("Failed to reply to %s: %v", a.ParentFullname, err)
			return
		}
		logger.Info("Replied to %s with comment %s", a.ParentFullname, comment.ID)
		if a.SubmissionID == "" {
			return
		}
		if err := q.store.SetReplyID(a.SubmissionID, comment.ID); err != nil {
			logger.Error("Failed to record reply %s for submission %s: %v", comment.ID, a.SubmissionID, err)
		}
	case Edit:
		if err := q.poster.EditComment(ctx, a.CommentID, a.Text); err != nil {
			logger.Error("Failed to edit comment %s: %v", a.CommentID, err)
			return
		}
		logger.Debug("Edited comment %s", a.CommentID)
	default:
		logger.Warn("Dropping unknown action type %T", action)
	}
}
