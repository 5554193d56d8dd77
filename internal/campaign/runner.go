// Package campaign executes ordered batches of drafts in the background and
// records every run in an inspectable journal.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/spoofsent/spoofsent/internal/audit"
	"github.com/spoofsent/spoofsent/internal/delivery"
	"github.com/spoofsent/spoofsent/internal/store"
)

// Inter-message delay bounds in seconds.
const (
	delayMinSeconds = 5
	delayMaxSeconds = 30
)

// DraftSource resolves draft identifiers.
type DraftSource interface {
	Get(id string) (*store.Draft, error)
}

// Sender delivers a single draft.
type Sender interface {
	Send(ctx context.Context, draft *store.Draft) delivery.Result
}

// Outcome tallies one campaign run.
type Outcome struct {
	Sent   int
	Failed int
}

// Runner drives a campaign's drafts strictly in order, one at a time. Each
// attempt appends exactly one log entry tagged with the campaign name; a
// dangling draft reference produces an error entry and the run continues.
type Runner struct {
	drafts DraftSource
	sender Sender
	log    *audit.Log
	logger *slog.Logger

	sleep   func(time.Duration)
	randInt func(n int) int
}

// NewRunner creates a campaign runner.
func NewRunner(drafts DraftSource, sender Sender, log *audit.Log, logger *slog.Logger) *Runner {
	return &Runner{
		drafts:  drafts,
		sender:  sender,
		log:     log,
		logger:  logger.With("component", "campaign"),
		sleep:   time.Sleep,
		randInt: rand.IntN,
	}
}

// Run processes every draft in the campaign and returns the tally.
func (r *Runner) Run(ctx context.Context, c *store.Campaign) Outcome {
	r.logger.Info("campaign run started", "campaign", c.Name, "drafts", len(c.DraftIDs))

	var out Outcome
	for _, id := range c.DraftIDs {
		entry := r.processDraft(ctx, id)
		entry.Campaign = c.Name
		if err := r.log.Append(entry); err != nil {
			r.logger.Error("failed to append log entry", "error", err)
		}

		if entry.Success {
			out.Sent++
		} else {
			out.Failed++
		}

		if c.DelayEmails {
			delay := time.Duration(delayMinSeconds+r.randInt(delayMaxSeconds-delayMinSeconds+1)) * time.Second
			r.logger.Debug("delaying next message", "campaign", c.Name, "delay", delay)
			r.sleep(delay)
		}
	}

	r.logger.Info("campaign run finished", "campaign", c.Name, "sent", out.Sent, "failed", out.Failed)
	return out
}

func (r *Runner) processDraft(ctx context.Context, id string) audit.Entry {
	draft, err := r.drafts.Get(id)
	if err != nil {
		r.logger.Warn("campaign references missing draft", "draft_id", id)
		return audit.NewEntry("", "", "", false, fmt.Sprintf("draft %s not found", id))
	}

	res := r.sender.Send(ctx, draft)
	return audit.NewEntry(draft.MailFrom, draft.MailTo, draft.Subject, res.Success, res.Message)
}
