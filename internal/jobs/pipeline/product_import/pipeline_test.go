package product_import

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cataloghq/catalog-backend/internal/importer"
	jobrt "github.com/cataloghq/catalog-backend/internal/jobs/runtime"
	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/repos"
	"github.com/cataloghq/catalog-backend/internal/services"
	"github.com/cataloghq/catalog-backend/internal/types"
)

type fakeFileStore struct {
	files map[string][]byte
}

func (f *fakeFileStore) Download(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("no such object %q", key)
	}
	return data, nil
}

type capturingSearchSync struct {
	codes []string
}

func (c *capturingSearchSync) EnqueueEntitySync(ctx context.Context, entityCodes []string) error {
	c.codes = append(c.codes, entityCodes...)
	return nil
}

func (c *capturingSearchSync) Close() error { return nil }

type fixture struct {
	db       *gorm.DB
	pipeline *Pipeline
	jobs     repos.ImportJobRepo
	versions repos.ProductVersionRepo
	search   *capturingSearchSync
	files    *fakeFileStore
	source   *types.ImportSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.ImportSource{}, &types.ImportJob{}, &types.ProductVersion{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM product_version")
		db.Exec("DELETE FROM import_job")
		db.Exec("DELETE FROM import_source")
	})

	log, err := logger.New("production")
	require.NoError(t, err)

	sources := repos.NewImportSourceRepo(db, log)
	jobRepo := repos.NewImportJobRepo(db, log)
	versions := repos.NewProductVersionRepo(db, log)
	writer := services.NewVersionWriter(db, log, versions)
	files := &fakeFileStore{files: map[string][]byte{}}
	search := &capturingSearchSync{}

	source := &types.ImportSource{
		Name:            "test-feed",
		Kind:            types.SourceKindFile,
		Enabled:         true,
		DefaultLanguage: "en",
		FieldMappings: datatypes.NewJSONSlice([]types.FieldMapping{
			{Source: "sku", Target: "entity_code", Transform: "trim"},
			{Source: "name", Target: "name"},
			{Source: "brand", Target: "brand.name"},
			{Source: "weight", Target: "packaging.net_weight", Transform: "parse_number"},
		}),
		AutoPublishEnabled: true,
		MinScoreThreshold:  10,
		RequiredFields:     datatypes.NewJSONSlice([]string{"name"}),
		OverwriteLevel:     types.OverwriteManual,
		MaxBatchSize:       100,
		WarnBatchSize:      50,
	}
	require.NoError(t, sources.Create(context.Background(), nil, source))

	p := New(db, log, sources, versions, importer.NewFetcher(files, nil), importer.NewMapper(nil), writer, search)
	return &fixture{db: db, pipeline: p, jobs: jobRepo, versions: versions, search: search, files: files, source: source}
}

func (f *fixture) runJob(t *testing.T, job *types.ImportJob) *types.ImportJob {
	t.Helper()
	ctx := context.Background()
	job.SourceID = f.source.ID
	job.JobType = types.JobTypeProductImport
	job.Status = types.JobStatusProcessing
	require.NoError(t, f.jobs.Create(ctx, nil, job))

	jc := jobrt.NewContext(ctx, f.db, job, f.jobs, services.NopJobNotifier{})
	require.NoError(t, f.pipeline.Run(jc))

	got, err := f.jobs.GetByID(ctx, nil, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func TestRunImportsAllRows(t *testing.T) {
	f := newFixture(t)
	f.files.files["feed.csv"] = []byte(
		"sku,name,brand,weight\n" +
			"A1,Sparkling Water,Acme,0.33\n" +
			"A2,Still Water,Acme,0.5\n" +
			"A3,Tonic Water,Acme,0.2\n")

	job := f.runJob(t, &types.ImportJob{FileKey: "feed.csv", FileName: "feed.csv"})

	require.Equal(t, types.JobStatusCompleted, job.Status)
	require.Equal(t, 3, job.TotalRows)
	require.Equal(t, 3, job.ProcessedRows)
	require.Equal(t, 3, job.SuccessfulRows)
	require.Equal(t, 0, job.FailedRows)
	require.Equal(t, 3, job.AutoPublishedCount)
	require.NotNil(t, job.CompletedAt)

	cur, err := f.versions.GetCurrent(context.Background(), nil, "A2")
	require.NoError(t, err)
	require.NotNil(t, cur)
	require.Equal(t, 1, cur.Version)
	require.Equal(t, types.ProductStatusPublished, cur.Status)

	require.ElementsMatch(t, []string{"A1", "A2", "A3"}, f.search.codes)
}

func TestRunIsolatesRowFailures(t *testing.T) {
	f := newFixture(t)
	f.files.files["feed.csv"] = []byte(
		"sku,name,weight\n" +
			"B1,Water,0.33\n" +
			"B2,Cola,not-a-number\n" +
			"B3,Juice,0.5\n")

	job := f.runJob(t, &types.ImportJob{FileKey: "feed.csv", FileName: "feed.csv"})

	require.Equal(t, types.JobStatusCompleted, job.Status)
	require.Equal(t, 3, job.ProcessedRows)
	require.Equal(t, 2, job.SuccessfulRows)
	require.Equal(t, 1, job.FailedRows)
	require.Len(t, job.ImportErrors, 1)

	re := job.ImportErrors[0]
	require.Equal(t, 2, re.Row)
	require.Contains(t, re.Error, "parse_number")
	require.Equal(t, "B2", re.RawData["sku"])

	// The bad row left no version behind; its neighbors did.
	missing, err := f.versions.GetCurrent(context.Background(), nil, "B2")
	require.NoError(t, err)
	require.Nil(t, missing)
	ok, err := f.versions.GetCurrent(context.Background(), nil, "B3")
	require.NoError(t, err)
	require.NotNil(t, ok)

	require.ElementsMatch(t, []string{"B1", "B3"}, f.search.codes)
}

func TestRunRowsWithoutEntityCodeFail(t *testing.T) {
	f := newFixture(t)
	f.files.files["feed.csv"] = []byte("name\nOrphan Product\n")

	job := f.runJob(t, &types.ImportJob{FileKey: "feed.csv", FileName: "feed.csv"})

	require.Equal(t, types.JobStatusCompleted, job.Status)
	require.Equal(t, 1, job.FailedRows)
	require.Contains(t, job.ImportErrors[0].Error, "entity code")
}

func TestRunHardFailsOversizedFeed(t *testing.T) {
	f := newFixture(t)
	csv := "sku,name\n"
	for i := 0; i < 101; i++ {
		csv += fmt.Sprintf("S%d,Product %d\n", i, i)
	}
	f.files.files["big.csv"] = []byte(csv)

	job := f.runJob(t, &types.ImportJob{FileKey: "big.csv", FileName: "big.csv"})

	require.Equal(t, types.JobStatusFailed, job.Status)
	require.Contains(t, job.Error, "max batch size")
	require.Equal(t, 0, job.ProcessedRows)

	// Not a single row was written.
	var count int64
	require.NoError(t, f.db.Model(&types.ProductVersion{}).Count(&count).Error)
	require.Zero(t, count)
	require.Empty(t, f.search.codes)

	// Job-level failures land on the synthetic row 0.
	require.Len(t, job.ImportErrors, 1)
	require.Equal(t, 0, job.ImportErrors[0].Row)
}

func TestRunFailsWhenSourceDisabled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&types.ImportSource{}).
		Where("id = ?", f.source.ID).
		Update("enabled", false).Error)

	job := f.runJob(t, &types.ImportJob{FileKey: "feed.csv"})

	require.Equal(t, types.JobStatusFailed, job.Status)
	require.Contains(t, job.Error, "disabled")
}

func TestRunFailsWhenFileMissing(t *testing.T) {
	f := newFixture(t)

	job := f.runJob(t, &types.ImportJob{FileKey: "gone.csv"})

	require.Equal(t, types.JobStatusFailed, job.Status)
	require.Contains(t, job.Error, "gone.csv")
}

// expiredRunCtx reports expiry from Err without closing Done, so the
// fixture's database calls still go through.
type expiredRunCtx struct{ context.Context }

func (expiredRunCtx) Err() error { return context.DeadlineExceeded }

func TestRunStopsWhenRunContextExpires(t *testing.T) {
	f := newFixture(t)
	f.files.files["feed.csv"] = []byte("sku,name\nD1,Water\nD2,Cola\n")

	ctx := context.Background()
	job := &types.ImportJob{
		FileKey:  "feed.csv",
		SourceID: f.source.ID,
		JobType:  types.JobTypeProductImport,
		Status:   types.JobStatusProcessing,
	}
	require.NoError(t, f.jobs.Create(ctx, nil, job))

	jc := jobrt.NewContext(expiredRunCtx{context.Background()}, f.db, job, f.jobs, services.NopJobNotifier{})
	require.NoError(t, f.pipeline.Run(jc))

	got, err := f.jobs.GetByID(ctx, nil, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.Equal(t, types.JobStatusFailed, got.Status)
	require.Equal(t, "rows", got.Stage)
	require.Contains(t, got.Error, "interrupted")
	require.Equal(t, 0, got.ProcessedRows)

	require.Len(t, got.ImportErrors, 1)
	require.Equal(t, 0, got.ImportErrors[0].Row)
	require.Contains(t, got.ImportErrors[0].Error, "interrupted")

	var count int64
	require.NoError(t, f.db.Model(&types.ProductVersion{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRunRepeatImportBumpsVersions(t *testing.T) {
	f := newFixture(t)
	f.files.files["feed.csv"] = []byte("sku,name\nC1,Water\n")

	f.runJob(t, &types.ImportJob{FileKey: "feed.csv"})
	f.runJob(t, &types.ImportJob{FileKey: "feed.csv"})

	versions, err := f.versions.ListVersions(context.Background(), nil, "C1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.False(t, versions[0].IsCurrent)
	require.True(t, versions[1].IsCurrent)
}
