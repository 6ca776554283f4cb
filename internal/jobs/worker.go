package jobs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/cataloghq/catalog-backend/internal/jobs/runtime"
	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/repos"
	"github.com/cataloghq/catalog-backend/internal/services"
	"github.com/cataloghq/catalog-backend/internal/types"
)

// WorkerConfig bounds the pool. PoolSize workers each run one job at a time;
// StartRate throttles how fast claims are issued so a burst of pending jobs
// does not stampede the database.
type WorkerConfig struct {
	PoolSize     int
	PollInterval time.Duration
	StartRate    rate.Limit
	JobTimeout   time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PoolSize:     4,
		PollInterval: 1 * time.Second,
		StartRate:    rate.Limit(2),
		JobTimeout:   30 * time.Minute,
		MaxAttempts:  5,
		RetryDelay:   30 * time.Second,
		StaleRunning: 2 * time.Minute,
	}
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.ImportJobRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	cfg      WorkerConfig
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.ImportJobRepo, registry *runtime.Registry, notify services.JobNotifier, cfg WorkerConfig) *Worker {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.StartRate <= 0 {
		cfg.StartRate = rate.Limit(2)
	}
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "ImportWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		cfg:      cfg,
	}
}

// Start launches the pool and returns immediately. Workers drain when ctx is
// canceled; Wait blocks until the last in-flight job finishes.
func (w *Worker) Start(ctx context.Context) *errgroup.Group {
	g, gctx := errgroup.WithContext(ctx)
	limiter := rate.NewLimiter(w.cfg.StartRate, 1)
	policy := repos.RunnablePolicy{
		MaxAttempts:  w.cfg.MaxAttempts,
		RetryDelay:   w.cfg.RetryDelay,
		StaleRunning: w.cfg.StaleRunning,
	}
	for i := 0; i < w.cfg.PoolSize; i++ {
		worker := i
		g.Go(func() error {
			w.loop(gctx, worker, limiter, policy)
			return nil
		})
	}
	return g
}

func (w *Worker) loop(ctx context.Context, worker int, limiter *rate.Limiter, policy repos.RunnablePolicy) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			job, err := w.repo.ClaimNextRunnable(ctx, w.db, policy)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker", worker, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.runOne(ctx, worker, job)
		}
	}
}

func (w *Worker) runOne(ctx context.Context, worker int, job *types.ImportJob) {
	runCtx := ctx
	cancel := func() {}
	if w.cfg.JobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
	}
	defer cancel()

	jc := runtime.NewContext(runCtx, w.db, job, w.repo, w.notify)
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType), []types.ImportRowError{{
			Row:   0,
			Error: "no handler registered for job_type=" + job.JobType,
		}})
		return
	}

	// A panicking handler must not take the worker down with it.
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
				jc.Fail("panic", fmt.Errorf("handler panic: %v", r), []types.ImportRowError{{
					Row:   0,
					Error: fmt.Sprintf("handler panic: %v", r),
				}})
			}
		}()
		if err := h.Run(jc); err != nil {
			w.log.Error("Job handler returned error", "job_id", job.ID, "job_type", job.JobType, "error", err)
		}
	}()
}
