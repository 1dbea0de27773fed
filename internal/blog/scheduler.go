package blog

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is one scheduled unit of background work.
type Job func(ctx context.Context) error

// Scheduler runs background jobs on cron expressions.
type Scheduler struct {
	cron    *cron.Cron
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewScheduler builds a scheduler whose jobs never overlap with themselves
// and survive panics. Each run gets its own timeout.
func NewScheduler(log logrus.FieldLogger, timeout time.Duration) *Scheduler {
	logger := cron.PrintfLogger(log)
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		log:     log,
		timeout: timeout,
	}
}

// Add registers job under name with a standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.run(name, job)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.log.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("background job scheduled")
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	log := s.log.WithField("job", name)
	if err := job(ctx); err != nil {
		log.WithError(err).Error("background job failed")
		return
	}
	log.WithField("duration", time.Since(start).String()).Info("background job finished")
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// GenerationJob adapts the generator to a scheduled job that publishes
// straight away.
func GenerationJob(g *Generator) Job {
	return func(ctx context.Context) error {
		_, err := g.Generate(ctx, Request{Publish: true})
		return err
	}
}
