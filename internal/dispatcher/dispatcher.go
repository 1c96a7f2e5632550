// Package dispatcher turns Reddit events into submission trackers. It
// owns the registry that guarantees at most one tracker per submission
// and the throttle that spaces out tracker starts.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/logger"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/queue"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/reddit"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/storage"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/tracker"
)

// RedditClient is the full client surface the dispatcher and its
// trackers consume. *reddit.Client satisfies it.
type RedditClient interface {
	tracker.ThreadFetcher
	StreamSubmissions(ctx context.Context, subreddits []string, interval time.Duration) <-chan *reddit.Submission
	StreamComments(ctx context.Context, subreddits []string, interval time.Duration) <-chan *reddit.Comment
	StreamMentions(ctx context.Context, interval time.Duration) <-chan *reddit.Message
	MarkRead(ctx context.Context, fullname string) error
}

// Options configures the dispatcher's event sources.
type Options struct {
	Subreddits        []string
	TriggerPhrases    []string
	BotUsername       string
	StreamSubmissions bool
	NotifyOnDuplicate bool
	StreamInterval    time.Duration
	StartInterval     time.Duration
	Tracker           tracker.Options
}

// Dispatcher fans Reddit events into per-submission trackers.
type Dispatcher struct {
	client   RedditClient
	cat      tracker.Catalog
	store    *storage.Storage
	actions  tracker.Enqueuer
	notifier tracker.Notifier
	opts     Options

	mu     sync.Mutex
	active map[string]struct{}
	next   time.Time // earliest allowed next tracker start

	wg sync.WaitGroup
}

// New builds a dispatcher. notifier may be nil.
func New(client RedditClient, cat tracker.Catalog, store *storage.Storage, actions tracker.Enqueuer, notifier tracker.Notifier, opts Options) *Dispatcher {
	if opts.StartInterval <= 0 {
		opts.StartInterval = 10 * time.Second
	}
	return &Dispatcher{
		client:   client,
		cat:      cat,
		store:    store,
		actions:  actions,
		notifier: notifier,
		opts:     opts,
		active:   make(map[string]struct{}),
	}
}

// Run starts the reconciliation pass and the event streams, then blocks
// until ctx is done and every tracker has exited.
func (d *Dispatcher) Run(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.reconcile(ctx)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.consumeComments(ctx)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.consumeMentions(ctx)
	}()

	if d.opts.StreamSubmissions {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.consumeSubmissions(ctx)
		}()
	}

	<-ctx.Done()
	d.wg.Wait()
}

// reconcile restarts trackers for every submission that was still being
// tracked when the process last stopped.
func (d *Dispatcher) reconcile(ctx context.Context) {
	records, err := d.store.Active()
	if err != nil {
		logger.Error("Failed to load tracked submissions: %v", err)
		return
	}
	logger.Info("Restarting %d tracked submissions", len(records))
	for _, record := range records {
		if ctx.Err() != nil {
			return
		}
		d.StartTracking(ctx, record.ID, "")
	}
}

func (d *Dispatcher) consumeSubmissions(ctx context.Context) {
	for submission := range d.client.StreamSubmissions(ctx, d.opts.Subreddits, d.opts.StreamInterval) {
		// Applicability filter hook: every new submission is tracked
		// for now, which is why this source defaults to disabled.
		logger.Debug("New submission %s in r/%s", submission.ID, submission.Subreddit)
		d.StartTracking(ctx, submission.ID, "")
	}
}

func (d *Dispatcher) consumeComments(ctx context.Context) {
	for comment := range d.client.StreamComments(ctx, d.opts.Subreddits, d.opts.StreamInterval) {
		if !d.hasTrigger(comment.Body) {
			continue
		}
		logger.Info("Trigger phrase by /u/%s on submission %s", comment.Author, comment.SubmissionID)
		d.StartTracking(ctx, comment.SubmissionID, reddit.CommentFullname(comment.ID))
	}
}

func (d *Dispatcher) consumeMentions(ctx context.Context) {
	handle := "u/" + strings.ToLower(d.opts.BotUsername)
	for msg := range d.client.StreamMentions(ctx, d.opts.StreamInterval) {
		if !msg.WasComment || !strings.Contains(strings.ToLower(msg.Body), handle) {
			continue
		}
		if err := d.client.MarkRead(ctx, msg.ID); err != nil {
			logger.Warn("Failed to mark mention %s read: %v", msg.ID, err)
		}
		logger.Info("Mention by /u/%s on submission %s", msg.Author, msg.SubmissionID)
		d.StartTracking(ctx, msg.SubmissionID, reddit.CommentFullname(msg.CommentID))
	}
}

func (d *Dispatcher) hasTrigger(body string) bool {
	lower := strings.ToLower(body)
	for _, phrase := range d.opts.TriggerPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// StartTracking ensures a tracker exists for the submission.
// parentFullname names the triggering comment; an empty value means the
// start came from a submission event or the reconciliation pass. A
// submission that already carries a reply gets a one-shot pointer to it
// instead of a second tracker.
func (d *Dispatcher) StartTracking(ctx context.Context, submissionID, parentFullname string) {
	record, created, err := d.store.Create(submissionID)
	if err != nil {
		logger.Error("Failed to create record for submission %s: %v", submissionID, err)
		return
	}
	if record.Ignored {
		logger.Debug("Submission %s is ignored, not tracking", submissionID)
		return
	}
	if !created && record.ReplyID != "" && parentFullname != "" {
		logger.Info("Submission %s already analyzed, not tracking again", submissionID)
		if d.opts.NotifyOnDuplicate {
			text := fmt.Sprintf(
				"I've already analyzed this submission! You can see the most updated results [here](https://www.reddit.com/comments/%s/comment/%s/).",
				submissionID, record.ReplyID)
			if err := d.actions.Enqueue(ctx, queue.Reply{ParentFullname: parentFullname, Text: text}); err != nil {
				logger.Error("Failed to enqueue duplicate notice for %s: %v", submissionID, err)
			}
		}
		return
	}

	d.mu.Lock()
	if _, ok := d.active[submissionID]; ok {
		d.mu.Unlock()
		logger.Debug("Submission %s already has a tracker", submissionID)
		return
	}
	d.active[submissionID] = struct{}{}
	d.mu.Unlock()

	if !d.throttle(ctx) {
		d.remove(submissionID)
		return
	}

	tr := tracker.New(submissionID, parentFullname, d.client, d.cat, d.store, d.actions, d.notifier, d.opts.Tracker)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.remove(submissionID)
		tr.Run(ctx)
	}()
}

func (d *Dispatcher) remove(submissionID string) {
	d.mu.Lock()
	delete(d.active, submissionID)
	d.mu.Unlock()
}

// ActiveCount reports how many trackers are currently registered.
func (d *Dispatcher) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// throttle reserves the next tracker-start slot and waits for it.
// Starting a tracker triggers a thread fetch, so starts are spaced out
// independently of the action queue's cooldown. Returns false when ctx
// finished first.
func (d *Dispatcher) throttle(ctx context.Context) bool {
	d.mu.Lock()
	now := time.Now()
	if d.next.Before(now) {
		d.next = now
	}
	wait := d.next.Sub(now)
	d.next = d.next.Add(d.opts.StartInterval)
	d.mu.Unlock()

	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
