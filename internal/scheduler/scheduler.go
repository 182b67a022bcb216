// Package scheduler wraps gocron as an alternative tick source for the
// periodic drivers: the same tick function can be driven either by a raw
// time.Ticker (the default) or by a gocron-managed job, selected by
// configuration rather than by duplicating the driver's tick logic.
package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// Scheduler owns a gocron.Scheduler instance and the jobs registered on
// it.
type Scheduler struct {
	sched gocron.Scheduler
}

// New creates and starts a Scheduler.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}
	s.Start()
	return &Scheduler{sched: s}, nil
}

// RunEvery registers fn to run on a fixed-duration job at interval,
// starting immediately. Returns the job's ID for later removal via
// RemoveJob.
func (s *Scheduler) RunEvery(interval time.Duration, fn func()) (uuid.UUID, error) {
	job, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("scheduler: register job: %w", err)
	}
	return job.ID(), nil
}

// RemoveJob stops a previously registered job from firing again.
func (s *Scheduler) RemoveJob(id uuid.UUID) error {
	return s.sched.RemoveJob(id)
}

// Shutdown stops the scheduler and waits for any in-flight job to finish.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
