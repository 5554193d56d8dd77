package campaign

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spoofsent/spoofsent/internal/metrics"
	"github.com/spoofsent/spoofsent/internal/store"
)

// Scheduler launches campaign runs as background tasks. Launch returns
// immediately with the accepted count; progress is observable through the
// log feed and the run journal. Drain waits for in-flight runs, so a
// shutdown never abandons a half-finished campaign record.
type Scheduler struct {
	runner  *Runner
	journal *Journal
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler over the runner and journal.
func NewScheduler(runner *Runner, journal *Journal, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:  runner,
		journal: journal,
		logger:  logger.With("component", "scheduler"),
	}
}

// Launch records a running journal entry, starts the campaign in the
// background, and returns a snapshot of the new run.
func (s *Scheduler) Launch(ctx context.Context, c *store.Campaign) (*Run, error) {
	run := &Run{
		ID:           uuid.New().String(),
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Status:       StatusRunning,
		Accepted:     len(c.DraftIDs),
		StartedAt:    time.Now().UTC(),
	}
	if err := s.journal.Save(run); err != nil {
		return nil, err
	}

	snapshot := *run
	campaign := *c

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// The launch request's context ends with its HTTP response.
		out := s.runner.Run(context.WithoutCancel(ctx), &campaign)

		run.Sent = out.Sent
		run.Failed = out.Failed
		run.Status = StatusCompleted
		run.FinishedAt = time.Now().UTC()
		if err := s.journal.Save(run); err != nil {
			s.logger.Error("failed to record finished run", "run_id", run.ID, "error", err)
		}
		metrics.IncCampaignRun(StatusCompleted)
	}()

	s.logger.Info("campaign launched", "campaign", c.Name, "run_id", run.ID, "accepted", run.Accepted)
	return &snapshot, nil
}

// Drain blocks until every in-flight run has finished.
func (s *Scheduler) Drain() {
	s.wg.Wait()
}
