// Package scheduler runs the periodic background jobs: the recovery sweep
// for stalled documents and the policy cache reload.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"docgov/internal/policy"
	"docgov/internal/service"
)

// Job is one scheduled unit of work. An empty Schedule disables the job.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "scheduler"))
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log}))),
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers a job. Jobs run with ctx once the scheduler is started.
func (s *Scheduler) Add(ctx context.Context, job Job) error {
	if job.Run == nil {
		return errors.New("scheduler: job has no Run func")
	}
	if job.Schedule == "" {
		s.log.Info("schedule not configured, skipping job", zap.String("job", job.Name))
		return nil
	}
	if _, err := cron.ParseStandard(job.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q for %s: %w", job.Schedule, job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[job.Name]; dup {
		return fmt.Errorf("scheduler: job %s already registered", job.Name)
	}
	id, err := s.cron.AddFunc(job.Schedule, func() { s.run(ctx, job) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
	}
	s.entries[job.Name] = id
	return nil
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Error("scheduled job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	s.log.Debug("scheduled job finished",
		zap.String("job", job.Name),
		zap.Duration("took", time.Since(start)),
	)
}

// Start begins running registered jobs and stops them when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started", zap.Int("jobs", len(s.entries)))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns when the named job fires next, or nil if it is not
// registered or the scheduler is not running.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return nil
	}
	next := s.cron.Entry(id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// RecoverySweep re-drives documents stuck in ingested.
func RecoverySweep(svc service.DocumentService, schedule string) Job {
	return Job{
		Name:     "recovery_sweep",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := svc.RecoverStale(ctx)
			return err
		},
	}
}

// PolicyReload refreshes the policy snapshot so writes made by other
// instances become visible here.
func PolicyReload(cache *policy.Cache, schedule string) Job {
	return Job{
		Name:     "policy_reload",
		Schedule: schedule,
		Run:      cache.Reload,
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ log *zap.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
