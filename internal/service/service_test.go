package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"smart-erp-go/internal/config"
	"smart-erp-go/internal/model"
	"smart-erp-go/internal/pipeline"
	"smart-erp-go/internal/repository"
	"smart-erp-go/internal/testutil"
	"smart-erp-go/pkg/storage"
	"smart-erp-go/pkg/tasks"
)

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string]bool
}

func (a *fakeArchive) Put(_ context.Context, name, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[name] = true
	return nil
}

func (a *fakeArchive) Remove(_ context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, name)
	return nil
}

type failingDispatcher struct{}

func (failingDispatcher) Dispatch(context.Context, tasks.IngestTask) (*tasks.Job, error) {
	return nil, errors.New("queue unavailable")
}

type fixture struct {
	db          *gorm.DB
	store       *storage.LocalStore
	archive     *fakeArchive
	dispatcher  *pipeline.LocalDispatcher
	datasources DataSourceService
	uploads     UploadService
	files       FileService
	tracker     *pipeline.StatusTracker
	dsRepo      repository.DataSourceRepository
	fileRepo    repository.FileRepository
}

func newFixture(t *testing.T, uploadCfg config.UploadConfig) *fixture {
	t.Helper()
	return newFixtureWithCache(t, uploadCfg, repository.NewStatusCache(nil))
}

func newFixtureWithCache(t *testing.T, uploadCfg config.UploadConfig, cache repository.StatusCache) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	store, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	dsRepo := repository.NewDataSourceRepository(db)
	fileRepo := repository.NewFileRepository(db)
	tracker := pipeline.NewStatusTracker(fileRepo, cache)
	processor := pipeline.NewProcessor(db, dsRepo, tracker, config.IngestConfig{PlaceholderRows: 50, NameAttempts: 3})
	dispatcher := pipeline.NewLocalDispatcher(processor, 2)
	t.Cleanup(dispatcher.Wait)

	archive := &fakeArchive{objects: map[string]bool{}}
	reclaimer := NewReclaimer(db, store, archive, cache)

	fx := &fixture{
		db:          db,
		store:       store,
		archive:     archive,
		dispatcher:  dispatcher,
		datasources: NewDataSourceService(dsRepo, reclaimer),
		uploads:     NewUploadService(dsRepo, fileRepo, store, archive, tracker, dispatcher, uploadCfg),
		files:       NewFileService(dsRepo, fileRepo, cache, reclaimer),
		tracker:     tracker,
		dsRepo:      dsRepo,
		fileRepo:    fileRepo,
	}
	require.NoError(t, fx.datasources.EnsureDefault(context.Background()))
	return fx
}

func waitJob(t *testing.T, job *tasks.Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, job.Wait(ctx))
}

func TestEnsureDefault_SeedsAndActivates(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{})
	ctx := context.Background()

	active, err := fx.datasources.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultDataSourceID, active.ID)
	assert.Equal(t, DefaultDataSourceName, active.Name)

	// 再次调用不会重复创建
	require.NoError(t, fx.datasources.EnsureDefault(ctx))
	all, err := fx.datasources.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreate_Validation(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{})
	ctx := context.Background()

	_, err := fx.datasources.Create(ctx, "  ", "", model.DataSourceSQLTable)
	assert.ErrorIs(t, err, ErrInvalidDataSource)
	_, err = fx.datasources.Create(ctx, "x", "", "BOGUS")
	assert.ErrorIs(t, err, ErrInvalidDataSource)

	ds, err := fx.datasources.Create(ctx, "sales", "monthly", "")
	require.NoError(t, err)
	assert.Equal(t, model.DataSourceDefault, ds.Type)

	_, err = fx.datasources.Create(ctx, "sales", "again", model.DataSourceSQLTable)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestUpdate_NameUniqueness(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{})
	ctx := context.Background()
	a, err := fx.datasources.Create(ctx, "a", "", model.DataSourceSQLTable)
	require.NoError(t, err)
	_, err = fx.datasources.Create(ctx, "b", "", model.DataSourceSQLTable)
	require.NoError(t, err)

	taken := "b"
	_, err = fx.datasources.Update(ctx, a.ID, &taken, nil)
	assert.ErrorIs(t, err, ErrDuplicateName)

	same, desc := "a", "renamed description"
	updated, err := fx.datasources.Update(ctx, a.ID, &same, &desc)
	require.NoError(t, err)
	assert.Equal(t, "renamed description", updated.Description)

	_, err = fx.datasources.Update(ctx, 999, nil, &desc)
	assert.ErrorIs(t, err, ErrDataSourceNotFound)
}

func TestActivation_ExactlyOneActive(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{})
	ctx := context.Background()
	x, err := fx.datasources.Create(ctx, "x", "", model.DataSourceSQLTable)
	require.NoError(t, err)
	y, err := fx.datasources.Create(ctx, "y", "", model.DataSourceSQLTable)
	require.NoError(t, err)

	_, err = fx.datasources.SetActive(ctx, x.ID)
	require.NoError(t, err)
	_, err = fx.datasources.SetActive(ctx, y.ID)
	require.NoError(t, err)

	active, err := fx.datasources.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, y.ID, active.ID)

	var count int64
	require.NoError(t, fx.db.Model(&model.DataSource{}).Where("is_active = ?", true).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = fx.datasources.SetActive(ctx, 999)
	assert.ErrorIs(t, err, ErrDataSourceNotFound)
}

func TestDeactivate(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{})
	ctx := context.Background()
	x, err := fx.datasources.Create(ctx, "x", "", model.DataSourceSQLTable)
	require.NoError(t, err)
	_, err = fx.datasources.SetActive(ctx, x.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, fx.datasources.Deactivate(ctx, model.DefaultDataSourceID), ErrDefaultDataSource)
	require.NoError(t, fx.datasources.Deactivate(ctx, x.ID))

	active, err := fx.datasources.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultDataSourceID, active.ID)
}

func TestDelete_DefaultIsProtected(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{})
	ctx := context.Background()

	assert.ErrorIs(t, fx.datasources.Delete(ctx, model.DefaultDataSourceID), ErrDefaultDataSource)
	ds, err := fx.datasources.Get(ctx, model.DefaultDataSourceID)
	require.NoError(t, err)
	assert.True(t, ds.IsActive)

	assert.ErrorIs(t, fx.datasources.Delete(ctx, 999), ErrDataSourceNotFound)
}

func TestUpload_CSVIngestsIntoTable(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{MaxSizeMB: 1})
	ctx := context.Background()
	ds, err := fx.datasources.Create(ctx, "products", "", model.DataSourceSQLTable)
	require.NoError(t, err)

	res, err := fx.uploads.Upload(ctx, ds.ID, "products.csv", strings.NewReader("Product Name, Price ($)\nWidget,9.99\n"), -1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.File.Status)
	assert.True(t, fx.archive.objects[res.File.Filename])
	waitJob(t, res.Job)

	snap, err := fx.files.GetStatus(ctx, res.File.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, snap.Status)
	require.NotNil(t, snap.RowCount)
	assert.Equal(t, int64(1), *snap.RowCount)

	f, err := fx.files.GetFile(ctx, ds.ID, res.File.ID)
	require.NoError(t, err)
	require.NotNil(t, f.IngestedTable)

	bound, err := fx.datasources.Get(ctx, ds.ID)
	require.NoError(t, err)
	require.NotNil(t, bound.BackingTable)
	assert.Equal(t, *f.IngestedTable, *bound.BackingTable)

	var rows []map[string]interface{}
	require.NoError(t, fx.db.Table(*f.IngestedTable).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "Widget", rows[0]["product_name"])
	assert.Equal(t, "9.99", rows[0]["price"])
}

func TestUpload_Validation(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{MaxSizeMB: 1})
	ctx := context.Background()
	table, err := fx.datasources.Create(ctx, "tables", "", model.DataSourceSQLTable)
	require.NoError(t, err)

	_, err = fx.uploads.Upload(ctx, table.ID, "manual.pdf", strings.NewReader("%PDF"), 4)
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
	_, err = fx.uploads.Upload(ctx, table.ID, "script.exe", strings.NewReader("MZ"), 2)
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
	_, err = fx.uploads.Upload(ctx, table.ID, "big.csv", strings.NewReader("a"), 2*1024*1024)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	_, err = fx.uploads.Upload(ctx, table.ID, "big.csv", strings.NewReader(strings.Repeat("a", 1024*1024+1)), -1)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	_, err = fx.uploads.Upload(ctx, 999, "a.csv", strings.NewReader("a"), 1)
	assert.ErrorIs(t, err, ErrDataSourceNotFound)

	files, err := fx.files.ListFiles(ctx, table.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUpload_DocumentUsesPlaceholder(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{})
	ctx := context.Background()
	kb, err := fx.datasources.Create(ctx, "manuals", "", model.DataSourceKnowledgeBase)
	require.NoError(t, err)

	assert.Contains(t, fx.uploads.SupportedExtensions(kb.Type), model.FileTypePDF)
	res, err := fx.uploads.Upload(ctx, kb.ID, "manual.pdf", strings.NewReader("%PDF-1.4"), 8)
	require.NoError(t, err)
	waitJob(t, res.Job)

	f, err := fx.files.GetFile(ctx, kb.ID, res.File.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, f.Status)
	assert.Equal(t, int64(50), *f.RowCount)
}

func TestUpload_DispatchFailureMarksFailed(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{})
	ctx := context.Background()
	ds, err := fx.datasources.Create(ctx, "sales", "", model.DataSourceSQLTable)
	require.NoError(t, err)

	uploads := NewUploadService(fx.dsRepo, fx.fileRepo, fx.store, nil, fx.tracker, failingDispatcher{}, config.UploadConfig{})
	_, err = uploads.Upload(ctx, ds.ID, "sales.csv", strings.NewReader("a\n1\n"), 4)
	require.Error(t, err)

	files, err := fx.files.ListFiles(ctx, ds.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, model.StatusFailed, files[0].Status)
}

func TestDeleteFile_ReclaimsTableAndBytes(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{})
	ctx := context.Background()
	ds, err := fx.datasources.Create(ctx, "sales", "", model.DataSourceSQLTable)
	require.NoError(t, err)

	res, err := fx.uploads.Upload(ctx, ds.ID, "sales.csv", strings.NewReader("region\nnorth\n"), -1)
	require.NoError(t, err)
	waitJob(t, res.Job)
	f, err := fx.files.GetFile(ctx, ds.ID, res.File.ID)
	require.NoError(t, err)
	table := *f.IngestedTable

	assert.ErrorIs(t, fx.files.DeleteFile(ctx, model.DefaultDataSourceID, f.ID), ErrFileNotFound)
	require.NoError(t, fx.files.DeleteFile(ctx, ds.ID, f.ID))

	assert.False(t, fx.db.Migrator().HasTable(table))
	_, err = os.Stat(fx.store.Path(f.Filename))
	assert.True(t, os.IsNotExist(err))
	assert.False(t, fx.archive.objects[f.Filename])

	bound, err := fx.datasources.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.Nil(t, bound.BackingTable)

	_, err = fx.files.GetStatus(ctx, f.ID)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDelete_CascadesAndReactivatesDefault(t *testing.T) {
	fx := newFixture(t, config.UploadConfig{})
	ctx := context.Background()
	ds, err := fx.datasources.Create(ctx, "sales", "", model.DataSourceSQLTable)
	require.NoError(t, err)
	_, err = fx.datasources.SetActive(ctx, ds.ID)
	require.NoError(t, err)

	var tables []string
	for _, content := range []string{"a\n1\n", "a\n2\n"} {
		res, err := fx.uploads.Upload(ctx, ds.ID, "sales.csv", strings.NewReader(content), -1)
		require.NoError(t, err)
		waitJob(t, res.Job)
		f, err := fx.files.GetFile(ctx, ds.ID, res.File.ID)
		require.NoError(t, err)
		tables = append(tables, *f.IngestedTable)
	}

	require.NoError(t, fx.datasources.Delete(ctx, ds.ID))

	for _, table := range tables {
		assert.False(t, fx.db.Migrator().HasTable(table), table)
	}
	var remaining int64
	require.NoError(t, fx.db.Model(&model.UploadedFile{}).Where("datasource_id = ?", ds.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
	assert.Empty(t, fx.archive.objects)

	active, err := fx.datasources.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultDataSourceID, active.ID)

	_, err = fx.datasources.Get(ctx, ds.ID)
	assert.ErrorIs(t, err, ErrDataSourceNotFound)
}
