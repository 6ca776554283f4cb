package sourceseed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/repos"
	"github.com/cataloghq/catalog-backend/internal/types"
)

// SourceDef is one declarative import source in the seed file. Names are the
// upsert key; re-seeding updates configuration in place and never touches the
// accumulated import stats.
type SourceDef struct {
	Name            string               `yaml:"name"`
	Kind            string               `yaml:"kind"`
	Enabled         *bool                `yaml:"enabled"`
	DefaultLanguage string               `yaml:"default_language"`
	FieldMappings   []types.FieldMapping `yaml:"field_mappings"`

	AutoPublishEnabled bool     `yaml:"auto_publish_enabled"`
	MinScoreThreshold  int      `yaml:"min_score_threshold"`
	RequiredFields     []string `yaml:"required_fields"`
	OverwriteLevel     string   `yaml:"overwrite_level"`

	MaxBatchSize  int `yaml:"max_batch_size"`
	WarnBatchSize int `yaml:"warn_batch_size"`
	ChunkSize     int `yaml:"chunk_size"`

	APIURL     string            `yaml:"api_url"`
	APIMethod  string            `yaml:"api_method"`
	APIHeaders map[string]string `yaml:"api_headers"`
	AuthType   string            `yaml:"auth_type"`
	AuthHeader string            `yaml:"auth_header"`

	// Credentials are looked up from the named env vars, never stored in the
	// seed file itself.
	AuthTokenEnv string `yaml:"auth_token_env"`
	AuthUserEnv  string `yaml:"auth_user_env"`
	AuthPassEnv  string `yaml:"auth_pass_env"`
}

type seedFile struct {
	Sources []SourceDef `yaml:"sources"`
}

// SeedFromFile loads the YAML seed file and upserts each source definition.
// A missing file is not an error; deployments without declarative sources
// manage them through the API instead.
func SeedFromFile(ctx context.Context, db *gorm.DB, log *logger.Logger, sources repos.ImportSourceRepo, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("No source seed file, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}

	for i := range file.Sources {
		def := &file.Sources[i]
		if def.Name == "" {
			return fmt.Errorf("seed file %s: source %d has no name", path, i)
		}
		if err := upsert(ctx, db, sources, def); err != nil {
			return fmt.Errorf("seed source %q: %w", def.Name, err)
		}
		log.Info("Seeded import source", "name", def.Name, "kind", def.Kind)
	}
	return nil
}

func upsert(ctx context.Context, db *gorm.DB, sources repos.ImportSourceRepo, def *SourceDef) error {
	existing, err := sources.GetByName(ctx, db, def.Name)
	if err != nil {
		return err
	}

	enabled := true
	if def.Enabled != nil {
		enabled = *def.Enabled
	}
	kind := def.Kind
	if kind == "" {
		kind = types.SourceKindFile
	}
	lang := def.DefaultLanguage
	if lang == "" {
		lang = "en"
	}
	overwrite := def.OverwriteLevel
	if overwrite == "" {
		overwrite = types.OverwriteManual
	}
	authType := def.AuthType
	if authType == "" {
		authType = types.AuthNone
	}

	if existing == nil {
		return sources.Create(ctx, db, &types.ImportSource{
			Name:               def.Name,
			Kind:               kind,
			Enabled:            enabled,
			DefaultLanguage:    lang,
			FieldMappings:      datatypes.NewJSONSlice(def.FieldMappings),
			AutoPublishEnabled: def.AutoPublishEnabled,
			MinScoreThreshold:  def.MinScoreThreshold,
			RequiredFields:     datatypes.NewJSONSlice(def.RequiredFields),
			OverwriteLevel:     overwrite,
			MaxBatchSize:       def.MaxBatchSize,
			WarnBatchSize:      def.WarnBatchSize,
			ChunkSize:          def.ChunkSize,
			APIURL:             def.APIURL,
			APIMethod:          def.APIMethod,
			APIHeaders:         datatypes.NewJSONType(def.APIHeaders),
			AuthType:           authType,
			AuthToken:          os.Getenv(def.AuthTokenEnv),
			AuthHeader:         def.AuthHeader,
			AuthUser:           os.Getenv(def.AuthUserEnv),
			AuthPass:           os.Getenv(def.AuthPassEnv),
		})
	}

	return sources.UpdateFields(ctx, db, existing.ID, map[string]interface{}{
		"kind":                 kind,
		"enabled":              enabled,
		"default_language":     lang,
		"field_mappings":       datatypes.NewJSONSlice(def.FieldMappings),
		"auto_publish_enabled": def.AutoPublishEnabled,
		"min_score_threshold":  def.MinScoreThreshold,
		"required_fields":      datatypes.NewJSONSlice(def.RequiredFields),
		"overwrite_level":      overwrite,
		"max_batch_size":       def.MaxBatchSize,
		"warn_batch_size":      def.WarnBatchSize,
		"chunk_size":           def.ChunkSize,
		"api_url":              def.APIURL,
		"api_method":           def.APIMethod,
		"api_headers":          datatypes.NewJSONType(def.APIHeaders),
		"auth_type":            authType,
		"auth_token":           os.Getenv(def.AuthTokenEnv),
		"auth_header":          def.AuthHeader,
		"auth_user":            os.Getenv(def.AuthUserEnv),
		"auth_pass":            os.Getenv(def.AuthPassEnv),
	})
}
