package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ProductStatusDraft     = "draft"
	ProductStatusPublished = "published"
	ProductStatusArchived  = "archived"
)

// ConflictEntry is one audit record explaining why an incoming import value
// was rejected in favor of a manually-edited value.
type ConflictEntry struct {
	Field       string    `json:"field"`
	ManualValue any       `json:"manual_value"`
	APIValue    any       `json:"api_value"`
	DetectedAt  time.Time `json:"detected_at"`
}

// ProductVersion is append-only: a row is written once by the version writer
// and never mutated afterward, except for the is_current / is_current_published
// flip when a successor version arrives.
type ProductVersion struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EntityCode string    `gorm:"column:entity_code;not null;index;uniqueIndex:uniq_product_version_entity_version,priority:1" json:"entity_code"`
	Version    int       `gorm:"column:version;not null;uniqueIndex:uniq_product_version_entity_version,priority:2" json:"version"`

	IsCurrent          bool   `gorm:"column:is_current;not null;default:false;index" json:"is_current"`
	IsCurrentPublished bool   `gorm:"column:is_current_published;not null;default:false;index" json:"is_current_published"`
	Status             string `gorm:"column:status;not null;default:'draft';index" json:"status"`

	CompletenessScore   int                           `gorm:"column:completeness_score;not null;default:0" json:"completeness_score"`
	CriticalIssues      datatypes.JSONSlice[string]   `gorm:"column:critical_issues" json:"critical_issues"`
	AutoPublishEligible bool                          `gorm:"column:auto_publish_eligible;not null;default:false" json:"auto_publish_eligible"`
	AutoPublishReason   string                        `gorm:"column:auto_publish_reason" json:"auto_publish_reason,omitempty"`

	ManuallyEdited       bool                               `gorm:"column:manually_edited;not null;default:false" json:"manually_edited"`
	ManuallyEditedFields datatypes.JSONSlice[string]        `gorm:"column:manually_edited_fields" json:"manually_edited_fields"`
	LockedFields         datatypes.JSONSlice[string]        `gorm:"column:locked_fields" json:"locked_fields"`
	HasConflict          bool                               `gorm:"column:has_conflict;not null;default:false" json:"has_conflict"`
	ConflictData         datatypes.JSONSlice[ConflictEntry] `gorm:"column:conflict_data" json:"conflict_data"`

	SourceID   *uuid.UUID `gorm:"type:uuid;column:source_id;index" json:"source_id,omitempty"`
	SourceName string     `gorm:"column:source_name" json:"source_name,omitempty"`
	BatchID    string     `gorm:"column:batch_id;index" json:"batch_id,omitempty"`
	ImportedAt *time.Time `gorm:"column:imported_at" json:"imported_at,omitempty"`

	PublishedAt        *time.Time `gorm:"column:published_at" json:"published_at,omitempty"`
	LastManualUpdateAt *time.Time `gorm:"column:last_manual_update_at" json:"last_manual_update_at,omitempty"`

	// The catalog payload (name, pricing, media, taxonomy, ...). Opaque to the
	// pipeline beyond fieldpath access.
	Data datatypes.JSON `gorm:"column:data;type:jsonb" json:"data"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ProductVersion) TableName() string { return "product_version" }

// BeforeCreate fills the id. Ids are generated here rather than by a column
// default so postgres and sqlite behave alike.
func (v *ProductVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
