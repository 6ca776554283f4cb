package services

import (
	"context"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cataloghq/catalog-backend/internal/importer"
	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/repos"
	"github.com/cataloghq/catalog-backend/internal/types"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_fk=1"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.ProductVersion{}, &types.ImportJob{}, &types.ImportSource{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DELETE FROM product_version")
		db.Exec("DELETE FROM import_job")
		db.Exec("DELETE FROM import_source")
	})
	return db
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testWriter(t *testing.T) (VersionWriter, repos.ProductVersionRepo, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	log := testLogger(t)
	versions := repos.NewProductVersionRepo(db, log)
	return NewVersionWriter(db, log, versions), versions, db
}

func TestWriteFirstVersion(t *testing.T) {
	w, versions, _ := testWriter(t)
	ctx := context.Background()

	v, err := w.Write(ctx, nil, WriteInput{
		EntityCode: "ABC-1",
		Data:       map[string]any{"name": "Water"},
		Score:      55,
		Issues:     []string{"Missing brand information"},
		Decision:   importer.PublishDecision{Eligible: false, Reason: "auto-publish disabled for source"},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if v.Version != 1 || !v.IsCurrent {
		t.Fatalf("first version = %d current=%v, want 1/true", v.Version, v.IsCurrent)
	}
	if v.Status != types.ProductStatusDraft || v.IsCurrentPublished || v.PublishedAt != nil {
		t.Fatalf("ineligible version must stay draft: %+v", v)
	}
	if v.CompletenessScore != 55 || len(v.CriticalIssues) != 1 {
		t.Fatalf("score/issues not persisted: %+v", v)
	}

	cur, err := versions.GetCurrent(ctx, nil, "ABC-1")
	if err != nil || cur == nil {
		t.Fatalf("GetCurrent: %v, %v", cur, err)
	}
	if cur.Version != 1 {
		t.Fatalf("current version = %d, want 1", cur.Version)
	}
}

func TestWriteAppendsAndRetiresPrior(t *testing.T) {
	w, versions, _ := testWriter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := w.Write(ctx, nil, WriteInput{
			EntityCode: "ABC-2",
			Data:       map[string]any{"rev": i},
		}); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	all, err := versions.ListVersions(ctx, nil, "ABC-2")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("versions = %d, want 3", len(all))
	}
	for i, v := range all {
		if v.Version != i+1 {
			t.Fatalf("version numbering broken: %+v", all)
		}
		wantCurrent := i == 2
		if v.IsCurrent != wantCurrent {
			t.Fatalf("version %d is_current=%v, want %v", v.Version, v.IsCurrent, wantCurrent)
		}
	}
}

func TestWritePublishesEligibleVersion(t *testing.T) {
	w, versions, _ := testWriter(t)
	ctx := context.Background()
	src := &types.ImportSource{Name: "feed"}

	v, err := w.Write(ctx, nil, WriteInput{
		EntityCode: "ABC-3",
		Data:       map[string]any{"name": "Water"},
		Score:      90,
		Decision:   importer.PublishDecision{Eligible: true, Reason: "score 90 meets threshold 70, all required fields present"},
		Source:     src,
		BatchID:    "batch-1",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if v.Status != types.ProductStatusPublished || !v.IsCurrentPublished {
		t.Fatalf("eligible version should publish: %+v", v)
	}
	if v.PublishedAt == nil || !v.AutoPublishEligible {
		t.Fatalf("publish metadata missing: %+v", v)
	}
	if v.SourceName != "feed" || v.BatchID != "batch-1" {
		t.Fatalf("provenance missing: %+v", v)
	}

	// A later draft retires the published flag on the old row.
	if _, err := w.Write(ctx, nil, WriteInput{
		EntityCode: "ABC-3",
		Data:       map[string]any{"name": "Water v2"},
	}); err != nil {
		t.Fatalf("Write v2: %v", err)
	}
	all, _ := versions.ListVersions(ctx, nil, "ABC-3")
	if all[0].IsCurrent || all[0].IsCurrentPublished {
		t.Fatalf("prior version not retired: %+v", all[0])
	}
	if !all[1].IsCurrent || all[1].IsCurrentPublished {
		t.Fatalf("new draft flags wrong: %+v", all[1])
	}
}

func TestWriteCarriesManualProvenanceForward(t *testing.T) {
	w, versions, db := testWriter(t)
	ctx := context.Background()

	if _, err := w.Write(ctx, nil, WriteInput{
		EntityCode: "ABC-4",
		Data:       map[string]any{"name": "Original"},
	}); err != nil {
		t.Fatalf("Write v1: %v", err)
	}
	// Simulate a human editing and locking fields on the current version.
	if err := db.Model(&types.ProductVersion{}).
		Where("entity_code = ? AND is_current", "ABC-4").
		Updates(map[string]interface{}{
			"manually_edited":        true,
			"manually_edited_fields": datatypes.NewJSONSlice([]string{"name"}),
			"locked_fields":          datatypes.NewJSONSlice([]string{"name"}),
		}).Error; err != nil {
		t.Fatalf("simulate manual edit: %v", err)
	}

	v2, err := w.Write(ctx, nil, WriteInput{
		EntityCode: "ABC-4",
		Data:       map[string]any{"name": "Feed"},
	})
	if err != nil {
		t.Fatalf("Write v2: %v", err)
	}
	if !v2.ManuallyEdited {
		t.Fatalf("manual flag must carry forward")
	}
	if len(v2.ManuallyEditedFields) != 1 || v2.ManuallyEditedFields[0] != "name" {
		t.Fatalf("edited fields = %v", v2.ManuallyEditedFields)
	}
	if len(v2.LockedFields) != 1 || v2.LockedFields[0] != "name" {
		t.Fatalf("locked fields = %v", v2.LockedFields)
	}

	cur, _ := versions.GetCurrent(ctx, nil, "ABC-4")
	if cur.Version != 2 {
		t.Fatalf("current = %d, want 2", cur.Version)
	}
}

func TestWriteRejectsEmptyEntityCode(t *testing.T) {
	w, _, _ := testWriter(t)
	if _, err := w.Write(context.Background(), nil, WriteInput{EntityCode: "  "}); err == nil {
		t.Fatalf("empty entity code must be rejected")
	}
}
