// Package tracker re-analyzes one submission's comment tree on an
// adaptive schedule and keeps the bot's summary comment up to date.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/catalog"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/extract"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/logger"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/models"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/queue"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/reddit"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/render"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/storage"
)

// consecutive cycle failures before the operator is notified
const failureNotifyThreshold = 3

// ThreadFetcher is the subset of the Reddit client a tracker needs.
// *reddit.Client satisfies it.
type ThreadFetcher interface {
	Thread(ctx context.Context, id string) (*reddit.Submission, []reddit.Node, error)
	ExpandMore(ctx context.Context, more *reddit.More) ([]reddit.Node, error)
}

// Catalog supplies the coin snapshot and symbol dictionary per cycle.
type Catalog interface {
	Snapshot(ctx context.Context) ([]models.Coin, *catalog.Dict, error)
}

// Enqueuer submits Reddit write actions. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, action queue.Action) error
}

// Notifier reports sustained failures to the operator. May be nil.
type Notifier interface {
	SendError(subject string, cycleErr error) error
	SendRecovery(subject string, failureCount int) error
}

// Options carries the per-bot settings shared by all trackers.
type Options struct {
	BotUsername      string
	Footer           string
	MaxSubmissionAge time.Duration
}

// Tracker follows a single submission until it goes terminal.
type Tracker struct {
	submissionID string
	// fullname of the triggering comment; the first reply goes here
	// instead of the thread root when set
	replyTarget string
	client      ThreadFetcher
	cat          Catalog
	store        *storage.Storage
	actions      Enqueuer
	notifier     Notifier
	opts         Options

	// age observed by the most recent successful thread fetch; paces
	// the retry sleep when a later cycle fails
	lastAge time.Duration

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New builds a tracker for one submission. replyTarget is the fullname
// of the comment that triggered tracking, or empty when tracking was
// started from a submission event or the reconciliation pass.
func New(submissionID, replyTarget string, client ThreadFetcher, cat Catalog, store *storage.Storage, actions Enqueuer, notifier Notifier, opts Options) *Tracker {
	if opts.MaxSubmissionAge <= 0 {
		opts.MaxSubmissionAge = 14 * 24 * time.Hour
	}
	return &Tracker{
		submissionID: submissionID,
		replyTarget:  replyTarget,
		client:       client,
		cat:          cat,
		store:        store,
		actions:      actions,
		notifier:     notifier,
		opts:         opts,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

// Run cycles until the submission goes terminal or ctx is done. Each
// cycle fetches the thread, counts mentions and queues a reply or an
// edit; between cycles it sleeps for an interval that grows with the
// submission's age.
func (t *Tracker) Run(ctx context.Context) {
	failures := 0
	for {
		done, err := t.cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			logger.Warn("Tracker cycle for submission %s failed (%d consecutive): %v", t.submissionID, failures, err)
			if failures == failureNotifyThreshold && t.notifier != nil {
				if nerr := t.notifier.SendError(t.subject(), err); nerr != nil {
					logger.Error("Failed to notify operator: %v", nerr)
				}
			}
			if !t.sleep(ctx, IntervalFor(t.lastAge)) {
				return
			}
			continue
		}
		if failures >= failureNotifyThreshold && t.notifier != nil {
			if nerr := t.notifier.SendRecovery(t.subject(), failures); nerr != nil {
				logger.Error("Failed to notify operator: %v", nerr)
			}
		}
		failures = 0
		if done {
			return
		}
	}
}

func (t *Tracker) subject() string {
	return "submission " + t.submissionID
}

// cycle runs one analysis pass. It returns done=true when the tracker
// should stop, with or without marking the submission ignored.
func (t *Tracker) cycle(ctx context.Context) (bool, error) {
	submission, nodes, err := t.client.Thread(ctx, t.submissionID)
	if err != nil {
		if reddit.IsInaccessible(err) {
			// Removed submission or a subreddit the bot is banned from.
			logger.Info("Submission %s is inaccessible, ignoring: %v", t.submissionID, err)
			return true, t.ignore()
		}
		return false, fmt.Errorf("failed to fetch thread %s: %w", t.submissionID, err)
	}

	age := t.now().Sub(submission.CreatedUTC)
	t.lastAge = age
	if submission.Locked {
		logger.Info("Submission %s is locked, ignoring", t.submissionID)
		return true, t.ignore()
	}
	if age > t.opts.MaxSubmissionAge {
		logger.Info("Submission %s exceeded max age (%s), ignoring", t.submissionID, age.Round(time.Hour))
		return true, t.ignore()
	}
	if submission.NumComments == 0 {
		// Nothing to analyze yet; a later trigger can pick it up again.
		logger.Debug("Submission %s has no comments, stopping without ignore", t.submissionID)
		return true, nil
	}

	coins, dict, err := t.cat.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load coin catalog: %w", err)
	}

	ranked, analyzed, err := extract.Analyze(ctx, nodes, dict, extract.Exclusion(t.opts.BotUsername), t.client)
	if err != nil {
		return false, fmt.Errorf("failed to analyze submission %s: %w", t.submissionID, err)
	}

	total := 0
	for _, mention := range ranked {
		total += mention.Count
	}
	top := TopN(total)
	text := render.Message(ranked, coins, top, t.now(), t.opts.Footer)
	logger.Debug("Analyzed %d comments of submission %s: %d mentions of %d coins",
		analyzed, t.submissionID, total, len(ranked))

	// Re-read the record: the queue worker may have stored the reply ID
	// after a previous cycle's reply went out.
	record, err := t.store.Get(t.submissionID)
	if err != nil {
		return false, fmt.Errorf("failed to load record for %s: %w", t.submissionID, err)
	}

	var action queue.Action
	if record.ReplyID != "" {
		action = queue.Edit{CommentID: record.ReplyID, Text: text}
	} else {
		target := t.replyTarget
		if target == "" {
			target = reddit.SubmissionFullname(t.submissionID)
		}
		action = queue.Reply{
			ParentFullname: target,
			Text:           text,
			SubmissionID:   t.submissionID,
		}
	}
	if err := t.actions.Enqueue(ctx, action); err != nil {
		return false, fmt.Errorf("failed to enqueue action for %s: %w", t.submissionID, err)
	}

	if !t.sleep(ctx, IntervalFor(age)) {
		return true, nil
	}
	return false, nil
}

func (t *Tracker) ignore() error {
	if err := t.store.SetIgnored(t.submissionID); err != nil {
		return fmt.Errorf("failed to mark submission %s ignored: %w", t.submissionID, err)
	}
	return nil
}

// IntervalFor maps a submission's age to the delay before the next
// analysis pass. Old threads slow down, fresh ones are re-checked every
// few minutes.
func IntervalFor(age time.Duration) time.Duration {
	switch {
	case age > 24*time.Hour:
		return 60 * time.Minute
	case age > 4*time.Hour:
		return 30 * time.Minute
	case age > 2*time.Hour:
		return 20 * time.Minute
	case age > time.Hour:
		return 10 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// TopN picks how many ranked mentions the summary shows, stepping up
// with the total mention count.
func TopN(totalMentions int) int {
	switch {
	case totalMentions > 75:
		return 75
	case totalMentions > 50:
		return 50
	case totalMentions > 25:
		return 25
	case totalMentions > 10:
		return 10
	default:
		return totalMentions
	}
}

// sleepCtx waits for d and reports false when ctx finished first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
