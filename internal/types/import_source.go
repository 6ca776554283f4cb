package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SourceKindFile = "file"
	SourceKindAPI  = "api"

	// OverwriteAutomatic lets import values overwrite everything; manual keeps
	// manually-edited values and records conflicts instead.
	OverwriteAutomatic = "automatic"
	OverwriteManual    = "manual"

	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthAPIKey = "api_key"
	AuthBasic  = "basic"
)

// FieldMapping maps one external feed column onto an internal dotted field
// path, optionally through a named transform (see importer.Transforms).
type FieldMapping struct {
	Source    string `json:"source" yaml:"source"`
	Target    string `json:"target" yaml:"target"`
	Transform string `json:"transform,omitempty" yaml:"transform,omitempty"`
}

type ImportSource struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Kind    string    `gorm:"column:kind;not null;default:'file'" json:"kind"`
	Enabled bool      `gorm:"column:enabled;not null;default:true" json:"enabled"`

	DefaultLanguage string                            `gorm:"column:default_language;not null;default:'en'" json:"default_language"`
	FieldMappings   datatypes.JSONSlice[FieldMapping] `gorm:"column:field_mappings" json:"field_mappings"`

	AutoPublishEnabled bool                        `gorm:"column:auto_publish_enabled;not null;default:false" json:"auto_publish_enabled"`
	MinScoreThreshold  int                         `gorm:"column:min_score_threshold;not null;default:0" json:"min_score_threshold"`
	RequiredFields     datatypes.JSONSlice[string] `gorm:"column:required_fields" json:"required_fields"`
	OverwriteLevel     string                      `gorm:"column:overwrite_level;not null;default:'manual'" json:"overwrite_level"`

	MaxBatchSize  int `gorm:"column:max_batch_size;not null;default:10000" json:"max_batch_size"`
	WarnBatchSize int `gorm:"column:warn_batch_size;not null;default:5000" json:"warn_batch_size"`
	ChunkSize     int `gorm:"column:chunk_size;not null;default:1000" json:"chunk_size"`

	// API feed configuration. Credentials are stored here and must stay out of
	// logs (see logger redaction).
	APIURL     string                                 `gorm:"column:api_url" json:"api_url,omitempty"`
	APIMethod  string                                 `gorm:"column:api_method;default:'GET'" json:"api_method,omitempty"`
	APIHeaders datatypes.JSONType[map[string]string]  `gorm:"column:api_headers" json:"api_headers,omitempty"`
	AuthType   string                                 `gorm:"column:auth_type;not null;default:'none'" json:"auth_type"`
	AuthToken  string                                 `gorm:"column:auth_token" json:"-"`
	AuthHeader string                                 `gorm:"column:auth_header" json:"auth_header,omitempty"`
	AuthUser   string                                 `gorm:"column:auth_user" json:"-"`
	AuthPass   string                                 `gorm:"column:auth_pass" json:"-"`

	LastImportAt      *time.Time `gorm:"column:last_import_at" json:"last_import_at,omitempty"`
	TotalImports      int64      `gorm:"column:total_imports;not null;default:0" json:"total_imports"`
	TotalRowsImported int64      `gorm:"column:total_rows_imported;not null;default:0" json:"total_rows_imported"`
	LastError         string     `gorm:"column:last_error" json:"last_error,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ImportSource) TableName() string { return "import_source" }

// BeforeCreate fills the id. Ids are generated here rather than by a column
// default so postgres and sqlite behave alike.
func (s *ImportSource) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
