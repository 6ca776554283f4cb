package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/types"
)

type ImportSourceRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportSource, error)
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.ImportSource, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.ImportSource, error)
	Create(ctx context.Context, tx *gorm.DB, src *types.ImportSource) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	RecordImport(ctx context.Context, tx *gorm.DB, id uuid.UUID, rowsImported int, lastError string) error
}

type importSourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImportSourceRepo(db *gorm.DB, baseLog *logger.Logger) ImportSourceRepo {
	return &importSourceRepo{
		db:  db,
		log: baseLog.With("repo", "ImportSourceRepo"),
	}
}

func (r *importSourceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var src types.ImportSource
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (r *importSourceRepo) GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.ImportSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if name == "" {
		return nil, nil
	}
	var src types.ImportSource
	err := transaction.WithContext(ctx).Where("name = ?", name).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (r *importSourceRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.ImportSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ImportSource
	if err := transaction.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *importSourceRepo) Create(ctx context.Context, tx *gorm.DB, src *types.ImportSource) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(src).Error
}

func (r *importSourceRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.ImportSource{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// RecordImport bumps the source statistics after a finished job.
func (r *importSourceRepo) RecordImport(ctx context.Context, tx *gorm.DB, id uuid.UUID, rowsImported int, lastError string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.ImportSource{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_import_at":      now,
			"total_imports":       gorm.Expr("total_imports + 1"),
			"total_rows_imported": gorm.Expr("total_rows_imported + ?", rowsImported),
			"last_error":          lastError,
			"updated_at":          now,
		}).Error
}
