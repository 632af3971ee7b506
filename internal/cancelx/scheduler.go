package cancelx

import (
	"context"
	"time"
)

// Scheduler runs a single asynchronous action after a fixed delay. Each
// Schedule call supersedes any not-yet-fired previous schedule, so rapid
// repeated calls collapse to the last action running once after a quiet
// period. This is the single-item counterpart to the workqueue's batched
// debounce.
type Scheduler struct {
	delay  time.Duration
	series *Series
}

// NewScheduler creates a scheduler with the given delay, parented to super.
func NewScheduler(super context.Context, delay time.Duration) *Scheduler {
	return &Scheduler{
		delay:  delay,
		series: NewSeries(super),
	}
}

// Schedule arranges for action to run after the delay, canceling any pending
// earlier schedule. If the obtained context is canceled during the wait the
// action is abandoned without being invoked. external may be nil.
func (s *Scheduler) Schedule(external context.Context, action func(context.Context)) error {
	ctx, err := s.series.Next(external)
	if err != nil {
		return err
	}

	go func() {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		// Re-check: the timer and a supersession can race.
		if ctx.Err() != nil {
			return
		}
		action(ctx)
	}()

	return nil
}

// Close cancels any pending schedule and makes the scheduler unusable.
func (s *Scheduler) Close() {
	s.series.Close()
}
