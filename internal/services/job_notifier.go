package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/types"
)

// JobNotifier publishes job lifecycle events. Whatever status surface exists
// (a UI, a webhook relay) subscribes on the other side; delivery is
// best-effort and never fails the job.
type JobNotifier interface {
	JobStarted(job *types.ImportJob)
	JobProgress(job *types.ImportJob, stage string, processed, total int)
	JobCompleted(job *types.ImportJob)
	JobFailed(job *types.ImportJob, stage string, errMsg string)
}

type jobEvent struct {
	Event     string    `json:"event"`
	JobID     string    `json:"job_id"`
	SourceID  string    `json:"source_id"`
	BatchID   string    `json:"batch_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Processed int       `json:"processed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type redisJobNotifier struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisJobNotifier(log *logger.Logger) (JobNotifier, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := strings.TrimSpace(os.Getenv("REDIS_JOB_EVENTS_CHANNEL"))
	if channel == "" {
		channel = "catalog:jobs"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisJobNotifier{
		log:     log.With("service", "JobNotifier"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (n *redisJobNotifier) publish(ev jobEvent) {
	ev.At = time.Now()
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		n.log.Debug("Job event publish failed", "event", ev.Event, "error", err)
	}
}

func (n *redisJobNotifier) JobStarted(job *types.ImportJob) {
	n.publish(jobEvent{Event: "started", JobID: job.ID.String(), SourceID: job.SourceID.String(), BatchID: job.BatchID})
}

func (n *redisJobNotifier) JobProgress(job *types.ImportJob, stage string, processed, total int) {
	n.publish(jobEvent{
		Event: "progress", JobID: job.ID.String(), SourceID: job.SourceID.String(),
		BatchID: job.BatchID, Stage: stage, Processed: processed, Total: total,
	})
}

func (n *redisJobNotifier) JobCompleted(job *types.ImportJob) {
	n.publish(jobEvent{Event: "completed", JobID: job.ID.String(), SourceID: job.SourceID.String(), BatchID: job.BatchID})
}

func (n *redisJobNotifier) JobFailed(job *types.ImportJob, stage string, errMsg string) {
	n.publish(jobEvent{
		Event: "failed", JobID: job.ID.String(), SourceID: job.SourceID.String(),
		BatchID: job.BatchID, Stage: stage, Error: errMsg,
	})
}

// NopJobNotifier is used when redis is not configured and in tests.
type NopJobNotifier struct{}

func (NopJobNotifier) JobStarted(job *types.ImportJob)                                  {}
func (NopJobNotifier) JobProgress(job *types.ImportJob, stage string, processed, t int) {}
func (NopJobNotifier) JobCompleted(job *types.ImportJob)                                {}
func (NopJobNotifier) JobFailed(job *types.ImportJob, stage string, errMsg string)      {}
