package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cataloghq/catalog-backend/internal/importer"
	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/repos"
	"github.com/cataloghq/catalog-backend/internal/types"
)

// writeRetries bounds the optimistic-concurrency loop. Version numbers are
// claimed by inserting under the (entity_code, version) unique key; a
// concurrent job claiming the same number surfaces as a unique violation and
// we re-read "current" and try again (last writer wins).
const writeRetries = 3

// WriteInput carries everything the writer needs for one version transition.
type WriteInput struct {
	EntityCode  string
	Data        map[string]any
	Score       int
	Issues      []string
	HasConflict bool
	Conflicts   []types.ConflictEntry
	Decision    importer.PublishDecision
	Source      *types.ImportSource
	BatchID     string
}

type VersionWriter interface {
	Write(ctx context.Context, tx *gorm.DB, in WriteInput) (*types.ProductVersion, error)
}

type versionWriter struct {
	db       *gorm.DB
	log      *logger.Logger
	versions repos.ProductVersionRepo
}

func NewVersionWriter(db *gorm.DB, baseLog *logger.Logger, versions repos.ProductVersionRepo) VersionWriter {
	return &versionWriter{
		db:       db,
		log:      baseLog.With("service", "VersionWriter"),
		versions: versions,
	}
}

// Write appends an immutable new version and retires the predecessor in one
// transaction. Manual-edit provenance (manually_edited, edited/locked field
// sets, last_manual_update_at) is carried forward from the prior version, not
// replaced by the import.
func (w *versionWriter) Write(ctx context.Context, tx *gorm.DB, in WriteInput) (*types.ProductVersion, error) {
	if strings.TrimSpace(in.EntityCode) == "" {
		return nil, fmt.Errorf("missing entity code")
	}

	payload, err := json.Marshal(in.Data)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < writeRetries; attempt++ {
		prior, err := w.versions.GetCurrent(ctx, tx, in.EntityCode)
		if err != nil {
			return nil, fmt.Errorf("read current version: %w", err)
		}

		next := w.buildVersion(in, prior, payload)

		err = w.transact(ctx, tx, func(txx *gorm.DB) error {
			if prior != nil {
				if err := w.versions.RetireCurrent(ctx, txx, in.EntityCode); err != nil {
					return fmt.Errorf("retire version %d: %w", prior.Version, err)
				}
			}
			if err := w.versions.Insert(ctx, txx, next); err != nil {
				return err
			}
			return nil
		})
		if err == nil {
			return next, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
		w.log.Warn("Version number raced, retrying from fresh current",
			"entity_code", in.EntityCode, "version", next.Version, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("version write for %q kept racing: %w", in.EntityCode, lastErr)
}

func (w *versionWriter) buildVersion(in WriteInput, prior *types.ProductVersion, payload []byte) *types.ProductVersion {
	now := time.Now()
	status := types.ProductStatusDraft
	var publishedAt *time.Time
	if in.Decision.Eligible {
		status = types.ProductStatusPublished
		publishedAt = &now
	}

	next := &types.ProductVersion{
		EntityCode:          in.EntityCode,
		Version:             1,
		IsCurrent:           true,
		IsCurrentPublished:  in.Decision.Eligible,
		Status:              status,
		CompletenessScore:   in.Score,
		CriticalIssues:      datatypes.NewJSONSlice(in.Issues),
		AutoPublishEligible: in.Decision.Eligible,
		AutoPublishReason:   in.Decision.Reason,
		HasConflict:         in.HasConflict,
		ConflictData:        datatypes.NewJSONSlice(in.Conflicts),
		ImportedAt:          &now,
		PublishedAt:         publishedAt,
		Data:                datatypes.JSON(payload),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if in.Source != nil {
		id := in.Source.ID
		next.SourceID = &id
		next.SourceName = in.Source.Name
	}
	next.BatchID = in.BatchID
	if prior != nil {
		next.Version = prior.Version + 1
		next.ManuallyEdited = prior.ManuallyEdited
		next.ManuallyEditedFields = prior.ManuallyEditedFields
		next.LockedFields = prior.LockedFields
		next.LastManualUpdateAt = prior.LastManualUpdateAt
	}
	return next
}

// transact opens a transaction on the routed DB unless the caller already
// holds one.
func (w *versionWriter) transact(ctx context.Context, tx *gorm.DB, fn func(txx *gorm.DB) error) error {
	if tx != nil {
		return tx.WithContext(ctx).Transaction(fn)
	}
	return w.db.WithContext(ctx).Transaction(fn)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// sqlite (tests) reports constraint failures as plain strings.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}
