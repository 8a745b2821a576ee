package sourcing

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs the sourcing job for a fixed set of tenants on a cron spec.
type Scheduler struct {
	cron    *cron.Cron
	svc     *Service
	spec    string
	tenants []string
	timeout time.Duration
	log     zerolog.Logger
}

func NewScheduler(svc *Service, spec string, tenants []string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		svc:     svc,
		spec:    spec,
		tenants: append([]string(nil), tenants...),
		timeout: 10 * time.Minute,
		log:     log,
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.RunAll); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.spec).Strs("tenants", s.tenants).Msg("sourcing scheduler started")
	return nil
}

// Stop stops the loop and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("sourcing scheduler stopped")
}

// RunAll runs every configured tenant once, in order. A tenant already
// running elsewhere is skipped.
func (s *Scheduler) RunAll() {
	for _, tenant := range s.tenants {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		_, err := s.svc.Run(ctx, tenant, RunOptions{})
		cancel()
		switch {
		case errors.Is(err, ErrRunInProgress):
			s.log.Info().Str("tenant", tenant).Msg("scheduled sourcing skipped: run in progress")
		case err != nil:
			s.log.Error().Err(err).Str("tenant", tenant).Msg("scheduled sourcing failed")
		}
	}
}
