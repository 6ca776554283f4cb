package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/types"
)

type ProductVersionRepo interface {
	GetCurrent(ctx context.Context, tx *gorm.DB, entityCode string) (*types.ProductVersion, error)
	GetByEntityAndVersion(ctx context.Context, tx *gorm.DB, entityCode string, version int) (*types.ProductVersion, error)
	ListVersions(ctx context.Context, tx *gorm.DB, entityCode string) ([]*types.ProductVersion, error)
	Insert(ctx context.Context, tx *gorm.DB, v *types.ProductVersion) error
	RetireCurrent(ctx context.Context, tx *gorm.DB, entityCode string) error
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductVersionRepo(db *gorm.DB, baseLog *logger.Logger) ProductVersionRepo {
	return &productVersionRepo{
		db:  db,
		log: baseLog.With("repo", "ProductVersionRepo"),
	}
}

func (r *productVersionRepo) GetCurrent(ctx context.Context, tx *gorm.DB, entityCode string) (*types.ProductVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if entityCode == "" {
		return nil, nil
	}
	var v types.ProductVersion
	err := transaction.WithContext(ctx).
		Where("entity_code = ? AND is_current", entityCode).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *productVersionRepo) GetByEntityAndVersion(ctx context.Context, tx *gorm.DB, entityCode string, version int) (*types.ProductVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var v types.ProductVersion
	err := transaction.WithContext(ctx).
		Where("entity_code = ? AND version = ?", entityCode, version).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *productVersionRepo) ListVersions(ctx context.Context, tx *gorm.DB, entityCode string) ([]*types.ProductVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ProductVersion
	if err := transaction.WithContext(ctx).
		Where("entity_code = ?", entityCode).
		Order("version ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *productVersionRepo) Insert(ctx context.Context, tx *gorm.DB, v *types.ProductVersion) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(v).Error
}

// RetireCurrent flips the current version flags via a targeted update; the
// row is otherwise immutable.
func (r *productVersionRepo) RetireCurrent(ctx context.Context, tx *gorm.DB, entityCode string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.ProductVersion{}).
		Where("entity_code = ? AND is_current", entityCode).
		Updates(map[string]interface{}{
			"is_current":           false,
			"is_current_published": false,
			"updated_at":           time.Now(),
		}).Error
}

func (r *productVersionRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
