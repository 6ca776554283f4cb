package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const JobTypeProductImport = "product_import"

// MaxImportErrors caps the verbatim per-row error list on a job. Failed rows
// past the cap still count toward failed_rows; only the detail is dropped.
const MaxImportErrors = 1000

// ImportRowError records one skipped row. Row is 1-based; row 0 is reserved
// for synthetic job-level failures (source missing, fetch failed, ...).
type ImportRowError struct {
	Row        int            `json:"row"`
	EntityCode string         `json:"entity_code,omitempty"`
	Error      string         `json:"error"`
	RawData    map[string]any `json:"raw_data,omitempty"`
}

type ImportJob struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceID uuid.UUID `gorm:"type:uuid;column:source_id;not null;index" json:"source_id"`
	JobType  string    `gorm:"column:job_type;not null;default:'product_import';index" json:"job_type"`

	// File imports reference an uploaded object; API imports carry neither and
	// use the source's endpoint configuration.
	FileKey  string `gorm:"column:file_key" json:"file_key,omitempty"`
	FileName string `gorm:"column:file_name" json:"file_name,omitempty"`

	// Split-upload bookkeeping. BatchID groups the parts of one logical upload.
	BatchID         string `gorm:"column:batch_id;index" json:"batch_id,omitempty"`
	BatchPart       int    `gorm:"column:batch_part" json:"batch_part,omitempty"`
	BatchTotalParts int    `gorm:"column:batch_total_parts" json:"batch_total_parts,omitempty"`
	BatchTotalItems int    `gorm:"column:batch_total_items" json:"batch_total_items,omitempty"`

	Status string `gorm:"column:status;not null;default:'pending';index" json:"status"`
	Stage  string `gorm:"column:stage" json:"stage,omitempty"`

	TotalRows          int `gorm:"column:total_rows;not null;default:0" json:"total_rows"`
	ProcessedRows      int `gorm:"column:processed_rows;not null;default:0" json:"processed_rows"`
	SuccessfulRows     int `gorm:"column:successful_rows;not null;default:0" json:"successful_rows"`
	FailedRows         int `gorm:"column:failed_rows;not null;default:0" json:"failed_rows"`
	AutoPublishedCount int `gorm:"column:auto_published_count;not null;default:0" json:"auto_published_count"`

	ImportErrors datatypes.JSONSlice[ImportRowError] `gorm:"column:import_errors" json:"import_errors"`
	Error        string                              `gorm:"column:error" json:"error,omitempty"`

	// Queue bookkeeping. DedupeKey prevents duplicate scheduling of the same
	// logical job; RunAt supports delayed delivery.
	DedupeKey   string     `gorm:"column:dedupe_key;index" json:"dedupe_key,omitempty"`
	RunAt       *time.Time `gorm:"column:run_at;index" json:"run_at,omitempty"`
	Attempts    int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`

	StartedAt       *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	DurationSeconds float64    `gorm:"column:duration_seconds;not null;default:0" json:"duration_seconds"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ImportJob) TableName() string { return "import_job" }

// BeforeCreate fills the id. Ids are generated here rather than by a column
// default so postgres and sqlite behave alike.
func (j *ImportJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// Terminal reports whether the job has reached a terminal state.
func (j *ImportJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
