package repos

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/types"
)

func jobTestRepo(t *testing.T) (ImportJobRepo, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.ImportJob{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Exec("DELETE FROM import_job") })
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewImportJobRepo(db, log), db
}

func TestGetByDedupeKeyOnlyMatchesActiveJobs(t *testing.T) {
	repo, _ := jobTestRepo(t)
	ctx := context.Background()

	pending := &types.ImportJob{Status: types.JobStatusPending, DedupeKey: "feed:today"}
	if err := repo.Create(ctx, nil, pending); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByDedupeKey(ctx, nil, "feed:today")
	if err != nil {
		t.Fatalf("GetByDedupeKey: %v", err)
	}
	if got == nil || got.ID != pending.ID {
		t.Fatalf("active job with matching key should be found, got %v", got)
	}

	// Terminal jobs free the key.
	if err := repo.UpdateFields(ctx, nil, pending.ID, map[string]interface{}{"status": types.JobStatusCompleted}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = repo.GetByDedupeKey(ctx, nil, "feed:today")
	if err != nil {
		t.Fatalf("GetByDedupeKey: %v", err)
	}
	if got != nil {
		t.Fatalf("completed job must not block the dedupe key")
	}

	if got, _ := repo.GetByDedupeKey(ctx, nil, ""); got != nil {
		t.Fatalf("empty key never matches")
	}
}

func TestCancelPendingOnlyWhilePending(t *testing.T) {
	repo, _ := jobTestRepo(t)
	ctx := context.Background()

	job := &types.ImportJob{Status: types.JobStatusPending}
	if err := repo.Create(ctx, nil, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	ok, err := repo.CancelPending(ctx, nil, job.ID)
	if err != nil || !ok {
		t.Fatalf("pending job should cancel: %v %v", ok, err)
	}
	// Canceled means gone from normal reads.
	if got, _ := repo.GetByID(ctx, nil, job.ID); got != nil {
		t.Fatalf("canceled job should be soft-deleted")
	}

	running := &types.ImportJob{Status: types.JobStatusProcessing}
	if err := repo.Create(ctx, nil, running); err != nil {
		t.Fatalf("create: %v", err)
	}
	ok, err = repo.CancelPending(ctx, nil, running.ID)
	if err != nil {
		t.Fatalf("CancelPending: %v", err)
	}
	if ok {
		t.Fatalf("claimed job must not cancel")
	}
}

func TestHeartbeatOnlyTouchesProcessingJobs(t *testing.T) {
	repo, _ := jobTestRepo(t)
	ctx := context.Background()

	job := &types.ImportJob{Status: types.JobStatusProcessing}
	if err := repo.Create(ctx, nil, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Heartbeat(ctx, nil, job.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	got, _ := repo.GetByID(ctx, nil, job.ID)
	if got.HeartbeatAt == nil {
		t.Fatalf("heartbeat not recorded")
	}

	done := &types.ImportJob{Status: types.JobStatusCompleted}
	if err := repo.Create(ctx, nil, done); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Heartbeat(ctx, nil, done.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	got, _ = repo.GetByID(ctx, nil, done.ID)
	if got.HeartbeatAt != nil {
		t.Fatalf("terminal job must not receive heartbeats")
	}
}

func TestClaimNextRunnableClaimsPendingNotDelayed(t *testing.T) {
	repo, _ := jobTestRepo(t)
	ctx := context.Background()
	policy := RunnablePolicy{MaxAttempts: 3, RetryDelay: 30 * time.Second, StaleRunning: 2 * time.Minute}

	future := time.Now().Add(time.Hour)
	delayed := &types.ImportJob{Status: types.JobStatusPending, RunAt: &future}
	if err := repo.Create(ctx, nil, delayed); err != nil {
		t.Fatalf("create: %v", err)
	}
	ready := &types.ImportJob{Status: types.JobStatusPending}
	if err := repo.Create(ctx, nil, ready); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(ctx, nil, policy)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != ready.ID {
		t.Fatalf("claimed = %v, want the undelayed job", claimed)
	}
	got, _ := repo.GetByID(ctx, nil, ready.ID)
	if got.Status != types.JobStatusProcessing || got.Attempts != 1 || got.LockedAt == nil {
		t.Fatalf("claimed job = %+v", got)
	}

	// The delayed job stays out of reach until run_at.
	claimed, err = repo.ClaimNextRunnable(ctx, nil, policy)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("delayed job must not be claimable, got %v", claimed)
	}
}

func TestClaimNextRunnableStaleReclaimBoundedByAttempts(t *testing.T) {
	repo, _ := jobTestRepo(t)
	ctx := context.Background()
	policy := RunnablePolicy{MaxAttempts: 3, RetryDelay: 30 * time.Second, StaleRunning: 2 * time.Minute}

	stale := time.Now().Add(-10 * time.Minute)
	exhausted := &types.ImportJob{Status: types.JobStatusProcessing, Attempts: 3, HeartbeatAt: &stale}
	if err := repo.Create(ctx, nil, exhausted); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(ctx, nil, policy)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("stale job past the attempts budget must not be reclaimed, got %v", claimed)
	}

	reclaimable := &types.ImportJob{Status: types.JobStatusProcessing, Attempts: 1, HeartbeatAt: &stale}
	if err := repo.Create(ctx, nil, reclaimable); err != nil {
		t.Fatalf("create: %v", err)
	}
	claimed, err = repo.ClaimNextRunnable(ctx, nil, policy)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != reclaimable.ID {
		t.Fatalf("stale job under the attempts budget should be reclaimed, got %v", claimed)
	}
	got, _ := repo.GetByID(ctx, nil, reclaimable.ID)
	if got.Status != types.JobStatusProcessing || got.Attempts != 2 {
		t.Fatalf("reclaimed job = %+v", got)
	}
}

func TestListByBatchIDOrdersByPart(t *testing.T) {
	repo, _ := jobTestRepo(t)
	ctx := context.Background()

	for _, part := range []int{3, 1, 2} {
		job := &types.ImportJob{
			Status:          types.JobStatusPending,
			BatchID:         "batch-7",
			BatchPart:       part,
			BatchTotalParts: 3,
			CreatedAt:       time.Now(),
		}
		if err := repo.Create(ctx, nil, job); err != nil {
			t.Fatalf("create part %d: %v", part, err)
		}
	}

	jobs, err := repo.ListByBatchID(ctx, nil, "batch-7")
	if err != nil {
		t.Fatalf("ListByBatchID: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("jobs = %d, want 3", len(jobs))
	}
	for i, j := range jobs {
		if j.BatchPart != i+1 {
			t.Fatalf("jobs not ordered by part: %v", []int{jobs[0].BatchPart, jobs[1].BatchPart, jobs[2].BatchPart})
		}
	}
}
