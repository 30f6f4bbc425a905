package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/application/billing"
	"github.com/lendsaas/backend/internal/infrastructure/metrics"
)

// Job names, also used as metric labels
const (
	JobLifecycleSweep = "lifecycle_sweep"
	JobExpiryCheck    = "expiry_check"
	JobLimitCheck     = "limit_check"
	JobStockReconcile = "stock_reconcile"
)

// LifecycleSweeper applies due subscription transitions
type LifecycleSweeper interface {
	SweepLifecycle(ctx context.Context) (*billing.SweepResult, error)
	EntitledTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// NotificationRunner runs the periodic notification checks
type NotificationRunner interface {
	RunExpiryCheck(ctx context.Context) (*billing.NotificationRunResult, error)
	RunLimitCheck(ctx context.Context) (*billing.NotificationRunResult, error)
}

// StockReconciler recounts stock counters for a batch of tenants
type StockReconciler interface {
	ReconcileTenants(ctx context.Context, tenantIDs []uuid.UUID) *billing.ReconcileResult
}

// BillingSchedulerConfig holds configuration for the billing scheduler
type BillingSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// Interval is the time between two cycles
	Interval time.Duration

	// JobTimeout bounds each job of a cycle
	JobTimeout time.Duration
}

// DefaultBillingSchedulerConfig returns default configuration
func DefaultBillingSchedulerConfig() BillingSchedulerConfig {
	return BillingSchedulerConfig{
		Enabled:    true,
		Interval:   time.Hour,
		JobTimeout: 10 * time.Minute,
	}
}

// JobStatus represents the status of a job run
type JobStatus string

const (
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobRun records the last execution of a job
type JobRun struct {
	Name        string     `json:"name"`
	Status      JobStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

// BillingScheduler periodically runs the lifecycle sweep, the expiry and
// limit notification checks and the stock reconciliation, in that order.
// A failing job is logged and does not stop the rest of the cycle.
type BillingScheduler struct {
	config BillingSchedulerConfig
	logger *zap.Logger
	jobs   []job

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// cycle serializes ticks with immediate triggers
	cycle sync.Mutex

	runsMu sync.RWMutex
	runs   map[string]JobRun
}

// NewBillingScheduler creates a new billing scheduler
func NewBillingScheduler(
	sweeper LifecycleSweeper,
	notifier NotificationRunner,
	reconciler StockReconciler,
	logger *zap.Logger,
	config BillingSchedulerConfig,
) *BillingScheduler {
	defaults := DefaultBillingSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}

	s := &BillingScheduler{
		config: config,
		logger: logger,
		runs:   make(map[string]JobRun),
	}
	s.jobs = []job{
		{name: JobLifecycleSweep, run: func(ctx context.Context) error {
			result, err := sweeper.SweepLifecycle(ctx)
			if err != nil {
				return err
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d subscriptions failed to sweep", result.Failed, result.Examined)
			}
			return nil
		}},
		{name: JobExpiryCheck, run: func(ctx context.Context) error {
			_, err := notifier.RunExpiryCheck(ctx)
			return err
		}},
		{name: JobLimitCheck, run: func(ctx context.Context) error {
			_, err := notifier.RunLimitCheck(ctx)
			return err
		}},
		{name: JobStockReconcile, run: func(ctx context.Context) error {
			ids, err := sweeper.EntitledTenantIDs(ctx)
			if err != nil {
				return err
			}
			result := reconciler.ReconcileTenants(ctx, ids)
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d tenants failed to reconcile", result.Failed, result.TotalTenants)
			}
			return nil
		}},
	}
	return s
}

// Start starts the scheduler loop
func (s *BillingScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Billing scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Billing scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running cycle until ctx expires
func (s *BillingScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Billing scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Billing scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is running
func (s *BillingScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// TriggerNow runs one cycle in the background without waiting for the next tick
func (s *BillingScheduler) TriggerNow(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Triggering immediate billing cycle")
	go func() {
		defer s.wg.Done()
		s.RunCycle(ctx)
	}()
	return nil
}

// RunCycle runs every job once, in order. Concurrent calls queue up.
func (s *BillingScheduler) RunCycle(ctx context.Context) {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	started := time.Now()
	failed := 0
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			s.logger.Debug("Billing cycle interrupted", zap.String("next_job", j.name))
			return
		}
		if err := s.runJob(ctx, j); err != nil {
			failed++
		}
	}

	s.logger.Info("Billing cycle completed",
		zap.Duration("duration", time.Since(started)),
		zap.Int("jobs", len(s.jobs)),
		zap.Int("failed", failed),
	)
}

// LastRuns returns the most recent run of every job that has run
func (s *BillingScheduler) LastRuns() map[string]JobRun {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()
	out := make(map[string]JobRun, len(s.runs))
	for name, run := range s.runs {
		out[name] = run
	}
	return out
}

func (s *BillingScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Billing scheduler loop stopping")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

func (s *BillingScheduler) runJob(ctx context.Context, j job) error {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	run := JobRun{Name: j.name, Status: JobStatusRunning, StartedAt: time.Now()}
	s.record(run)

	err := j.run(jobCtx)
	duration := time.Since(run.StartedAt)
	metrics.SchedulerJobDuration.WithLabelValues(j.name).Observe(duration.Seconds())

	completed := time.Now()
	run.CompletedAt = &completed
	if err != nil {
		metrics.SchedulerJobFailuresTotal.WithLabelValues(j.name).Inc()
		run.Status = JobStatusFailed
		run.Error = err.Error()
		s.record(run)
		s.logger.Error("Billing job failed",
			zap.String("job", j.name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return err
	}

	run.Status = JobStatusSuccess
	s.record(run)
	s.logger.Debug("Billing job completed",
		zap.String("job", j.name),
		zap.Duration("duration", duration),
	)
	return nil
}

func (s *BillingScheduler) record(run JobRun) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	s.runs[run.Name] = run
}
