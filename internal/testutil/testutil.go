// Package testutil 提供测试共用的存储初始化工具。
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"smart-erp-go/internal/model"
	"smart-erp-go/internal/repository"
	"smart-erp-go/pkg/database"
)

// NewDB 在 t.TempDir() 中创建一个已迁移的 SQLite 数据库，测试结束时关闭。
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SeedDataSource 直接写入一条数据源记录。
func SeedDataSource(t *testing.T, db *gorm.DB, name string, typ model.DataSourceType) *model.DataSource {
	t.Helper()
	ds := &model.DataSource{Name: name, Type: typ}
	require.NoError(t, db.Create(ds).Error)
	return ds
}

// SeedFile 直接写入一条 PENDING 状态的文件记录。
func SeedFile(t *testing.T, db *gorm.DB, datasourceID uint, original string, ft model.FileType) *model.UploadedFile {
	t.Helper()
	f := &model.UploadedFile{
		DataSourceID:     datasourceID,
		Filename:         "stored-" + original,
		OriginalFilename: original,
		FileType:         ft,
		Status:           model.StatusPending,
	}
	require.NoError(t, db.Create(f).Error)
	return f
}
