package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/types"
)

// RunnablePolicy controls which jobs a worker may claim: fresh pending jobs,
// failed-before-start jobs under the retry budget, and processing jobs whose
// worker stopped heartbeating.
type RunnablePolicy struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

type ImportJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.ImportJob) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportJob, error)
	GetByDedupeKey(ctx context.Context, tx *gorm.DB, key string) (*types.ImportJob, error)
	ListByBatchID(ctx context.Context, tx *gorm.DB, batchID string) ([]*types.ImportJob, error)
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, policy RunnablePolicy) (*types.ImportJob, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	CancelPending(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
}

type importJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImportJobRepo(db *gorm.DB, baseLog *logger.Logger) ImportJobRepo {
	return &importJobRepo{
		db:  db,
		log: baseLog.With("repo", "ImportJobRepo"),
	}
}

func (r *importJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.ImportJob) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(job).Error
}

func (r *importJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.ImportJob
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *importJobRepo) GetByDedupeKey(ctx context.Context, tx *gorm.DB, key string) (*types.ImportJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if key == "" {
		return nil, nil
	}
	var job types.ImportJob
	err := transaction.WithContext(ctx).
		Where("dedupe_key = ? AND status IN ?", key, []string{types.JobStatusPending, types.JobStatusProcessing}).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *importJobRepo) ListByBatchID(ctx context.Context, tx *gorm.DB, batchID string) ([]*types.ImportJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ImportJob
	if batchID == "" {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("batch_part ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimNextRunnable picks one runnable job under SKIP LOCKED and marks it
// processing. Delayed jobs (run_at in the future) are not claimable yet.
// Failed jobs are only retried if they never processed a row; a partially
// processed job is terminal. Stale processing jobs are reclaimed under the
// same attempts budget so a job that keeps killing its worker does not loop
// forever.
func (r *importJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, policy RunnablePolicy) (*types.ImportJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	retryCutoff := now.Add(-policy.RetryDelay)
	staleCutoff := now.Add(-policy.StaleRunning)
	var claimed *types.ImportJob
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.ImportJob
		q := txx.Where(`
				(run_at IS NULL OR run_at <= ?)
				AND (
					status = ?
					OR (
						status = ?
						AND processed_rows = 0
						AND attempts < ?
						AND (last_error_at IS NULL OR last_error_at < ?)
					)
					OR (
						status = ?
						AND attempts < ?
						AND heartbeat_at IS NOT NULL
						AND heartbeat_at < ?
					)
				)
			`, now,
			types.JobStatusPending,
			types.JobStatusFailed, policy.MaxAttempts, retryCutoff,
			types.JobStatusProcessing, policy.MaxAttempts, staleCutoff).
			Order("created_at ASC")
		// sqlite (tests, single process) does not understand SKIP LOCKED.
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.ImportJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.JobStatusProcessing,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *importJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.ImportJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *importJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.ImportJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusProcessing).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

// CancelPending removes a job from the queue by soft-deleting it, but only
// while it is still pending; a claimed job runs to completion.
func (r *importJobRepo) CancelPending(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	res := transaction.WithContext(ctx).
		Where("id = ? AND status = ?", id, types.JobStatusPending).
		Delete(&types.ImportJob{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
