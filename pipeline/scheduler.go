package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/deemkeen/plumage/domain"
	"github.com/google/uuid"
)

// SchedulerStore selects due accounts and applies deactivations.
type SchedulerStore interface {
	ReadDueAccounts(limit int) (error, *[]domain.SyncedAccount)
	DeactivateAccount(id uuid.UUID) error
}

// Scheduler drives the pipeline on a fixed interval. Accounts reported
// gone by a cycle are deactivated so they stop being scheduled.
type Scheduler struct {
	Store    SchedulerStore
	Pipeline *Pipeline
	Interval time.Duration
	Batch    int
}

// Run blocks until ctx is cancelled. The first cycle starts after one
// full interval, leaving startup to finish serving before fetching.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Println("Scheduler: sync every", s.Interval, "with batch size", s.Batch)

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler: stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	err, accounts := s.Store.ReadDueAccounts(s.Batch)
	if err != nil {
		log.Println("Scheduler: could not read due accounts:", err)
		return
	}
	if accounts == nil || len(*accounts) == 0 {
		return
	}

	due := make([]*domain.SyncedAccount, 0, len(*accounts))
	for i := range *accounts {
		due = append(due, &(*accounts)[i])
	}

	result, err := s.Pipeline.RunCycle(ctx, due)
	if err != nil && ctx.Err() == nil {
		log.Println("Scheduler: cycle ended with error:", err)
	}
	if result == nil {
		return
	}

	for _, id := range result.Gone {
		if err := s.Store.DeactivateAccount(id); err != nil {
			log.Println("Scheduler: could not deactivate account", id, "-", err)
		} else {
			log.Println("Scheduler: deactivated vanished account", id)
		}
	}
}
