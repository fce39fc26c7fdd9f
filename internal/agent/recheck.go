package agent

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultRecheckSchedule re-checks the license once a day.
const DefaultRecheckSchedule = "@daily"

// recheckTimeout bounds a single re-check attempt. A timed-out attempt is
// abandoned without touching cached state.
const recheckTimeout = 30 * time.Second

// Rechecker runs background license re-checks on a cron schedule.
type Rechecker struct {
	manager  *LicenseManager
	schedule string
	cron     *cron.Cron
	logger   zerolog.Logger
}

// NewRechecker creates a background rechecker. schedule is a cron expression
// (robfig/cron syntax, descriptors allowed); empty means DefaultRecheckSchedule.
func NewRechecker(manager *LicenseManager, schedule string, logger zerolog.Logger) *Rechecker {
	if schedule == "" {
		schedule = DefaultRecheckSchedule
	}
	return &Rechecker{
		manager:  manager,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "license_rechecker").Logger(),
	}
}

// Start schedules re-checks and runs one immediately.
func (r *Rechecker) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.runOnce); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info().Str("schedule", r.schedule).Msg("license rechecker started")

	go r.runOnce()
	return nil
}

// Stop stops the scheduler and waits for a running re-check to finish.
func (r *Rechecker) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("license rechecker stopped")
}

func (r *Rechecker) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), recheckTimeout)
	defer cancel()

	if err := r.manager.Recheck(ctx); err != nil {
		// Failures are soft: cached state is untouched and the next tick
		// retries.
		r.logger.Debug().Err(err).Msg("scheduled license re-check failed")
	}
}
