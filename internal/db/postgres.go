package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/types"
	"github.com/cataloghq/catalog-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	port := utils.GetEnv("POSTGRES_PORT", "5432", log)
	user := utils.GetEnv("POSTGRES_USER", "postgres", log)
	password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	name := utils.GetEnv("POSTGRES_NAME", "catalog", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := s.db.AutoMigrate(
		&types.ImportSource{},
		&types.ImportJob{},
		&types.ProductVersion{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// AutoMigrate cannot express partial indexes, so the store-level
	// invariants live here:
	//   - at most one current version per entity_code,
	//   - at most one non-terminal job per dedupe_key.
	// The (entity_code, version) unique key backing optimistic version writes
	// comes from the model tags.
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_product_version_current
		   ON product_version (entity_code) WHERE is_current`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_import_job_pending_dedupe
		   ON import_job (dedupe_key)
		   WHERE dedupe_key <> '' AND status IN ('pending', 'processing') AND deleted_at IS NULL`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
