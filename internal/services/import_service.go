package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cataloghq/catalog-backend/internal/importer"
	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/repos"
	"github.com/cataloghq/catalog-backend/internal/types"
)

// SubmitInput describes one import job submission. BatchID/BatchPart carry
// split-upload metadata; Delay defers delivery; DedupeKey prevents scheduling
// the same logical job twice while one is still pending or running.
type SubmitInput struct {
	SourceID        uuid.UUID
	FileKey         string
	FileName        string
	BatchID         string
	BatchPart       int
	BatchTotalParts int
	BatchTotalItems int
	DedupeKey       string
	Delay           time.Duration
}

type ImportService interface {
	Submit(ctx context.Context, tx *gorm.DB, in SubmitInput) (*types.ImportJob, bool, error)
	CancelPending(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (bool, error)
	GetJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (*types.ImportJob, error)
	GetBatch(ctx context.Context, tx *gorm.DB, batchID string) (*importer.BatchStatus, error)
	ListSources(ctx context.Context, tx *gorm.DB) ([]*types.ImportSource, error)
}

type importService struct {
	db      *gorm.DB
	log     *logger.Logger
	jobs    repos.ImportJobRepo
	sources repos.ImportSourceRepo
}

func NewImportService(db *gorm.DB, baseLog *logger.Logger, jobs repos.ImportJobRepo, sources repos.ImportSourceRepo) ImportService {
	return &importService{
		db:      db,
		log:     baseLog.With("service", "ImportService"),
		jobs:    jobs,
		sources: sources,
	}
}

// Submit creates a pending job. The second return is false when an existing
// active job with the same dedupe key was returned instead of a new one.
func (s *importService) Submit(ctx context.Context, tx *gorm.DB, in SubmitInput) (*types.ImportJob, bool, error) {
	if in.SourceID == uuid.Nil {
		return nil, false, fmt.Errorf("missing source_id")
	}
	source, err := s.sources.GetByID(ctx, tx, in.SourceID)
	if err != nil {
		return nil, false, fmt.Errorf("load source: %w", err)
	}
	if source == nil {
		return nil, false, fmt.Errorf("import source %s not found", in.SourceID)
	}
	if !source.Enabled {
		return nil, false, fmt.Errorf("import source %q is disabled", source.Name)
	}
	if source.Kind == types.SourceKindFile && strings.TrimSpace(in.FileKey) == "" {
		return nil, false, fmt.Errorf("file source %q requires a file_key", source.Name)
	}
	if in.BatchID != "" && in.BatchPart < 1 {
		return nil, false, fmt.Errorf("batch jobs need a 1-based batch_part")
	}

	if in.DedupeKey != "" {
		existing, err := s.jobs.GetByDedupeKey(ctx, tx, in.DedupeKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	now := time.Now()
	job := &types.ImportJob{
		ID:              uuid.New(),
		SourceID:        source.ID,
		JobType:         types.JobTypeProductImport,
		FileKey:         in.FileKey,
		FileName:        in.FileName,
		BatchID:         in.BatchID,
		BatchPart:       in.BatchPart,
		BatchTotalParts: in.BatchTotalParts,
		BatchTotalItems: in.BatchTotalItems,
		Status:          types.JobStatusPending,
		Stage:           "queued",
		DedupeKey:       in.DedupeKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.Delay > 0 {
		runAt := now.Add(in.Delay)
		job.RunAt = &runAt
	}
	if err := s.jobs.Create(ctx, tx, job); err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	s.log.Info("Import job submitted",
		"job_id", job.ID, "source", source.Name, "batch_id", in.BatchID, "part", in.BatchPart)
	return job, true, nil
}

func (s *importService) CancelPending(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (bool, error) {
	return s.jobs.CancelPending(ctx, tx, jobID)
}

func (s *importService) GetJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (*types.ImportJob, error) {
	return s.jobs.GetByID(ctx, tx, jobID)
}

func (s *importService) GetBatch(ctx context.Context, tx *gorm.DB, batchID string) (*importer.BatchStatus, error) {
	jobs, err := s.jobs.ListByBatchID(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}
	return importer.TrackBatch(batchID, jobs), nil
}

func (s *importService) ListSources(ctx context.Context, tx *gorm.DB) ([]*types.ImportSource, error) {
	return s.sources.List(ctx, tx)
}
