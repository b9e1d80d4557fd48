package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"smart-erp-go/internal/config"
	"smart-erp-go/internal/model"
	"smart-erp-go/internal/pipeline"
	"smart-erp-go/internal/repository"
	"smart-erp-go/pkg/log"
	"smart-erp-go/pkg/storage"
	"smart-erp-go/pkg/tasks"
)

// Dispatcher 把导入任务交给后台执行。
type Dispatcher interface {
	Dispatch(ctx context.Context, task tasks.IngestTask) (*tasks.Job, error)
}

var (
	tableExtensions    = []model.FileType{model.FileTypeCSV, model.FileTypeXLSX}
	documentExtensions = []model.FileType{model.FileTypePDF, model.FileTypeTXT, model.FileTypeDOCX, model.FileTypeCSV, model.FileTypeXLSX}
)

// UploadResult 是一次上传的结果：PENDING 状态的文件记录和后台任务句柄。
type UploadResult struct {
	File *model.UploadedFile
	Job  *tasks.Job
}

// UploadService 接口定义了文件上传相关的业务操作。
type UploadService interface {
	Upload(ctx context.Context, datasourceID uint, originalName string, r io.Reader, size int64) (*UploadResult, error)
	SupportedExtensions(typ model.DataSourceType) []model.FileType
}

type uploadService struct {
	datasources repository.DataSourceRepository
	files       repository.FileRepository
	store       *storage.LocalStore
	archive     FileArchive
	tracker     *pipeline.StatusTracker
	dispatcher  Dispatcher
	cfg         config.UploadConfig
}

// NewUploadService 创建一个新的 UploadService 实例。archive 可以为 nil。
func NewUploadService(
	datasources repository.DataSourceRepository,
	files repository.FileRepository,
	store *storage.LocalStore,
	archive FileArchive,
	tracker *pipeline.StatusTracker,
	dispatcher Dispatcher,
	cfg config.UploadConfig,
) UploadService {
	return &uploadService{
		datasources: datasources,
		files:       files,
		store:       store,
		archive:     archive,
		tracker:     tracker,
		dispatcher:  dispatcher,
		cfg:         cfg,
	}
}

// SupportedExtensions 返回某类数据源允许上传的文件类型。
func (s *uploadService) SupportedExtensions(typ model.DataSourceType) []model.FileType {
	if typ == model.DataSourceSQLTable {
		return tableExtensions
	}
	return documentExtensions
}

func (s *uploadService) allowed(typ model.DataSourceType, ft model.FileType) bool {
	for _, t := range s.SupportedExtensions(typ) {
		if t == ft {
			return true
		}
	}
	return false
}

// Upload 校验并保存上传文件，写入 PENDING 记录后派发导入任务，不等待导入完成。
// size 为客户端声明的大小，未知时传 -1。
func (s *uploadService) Upload(ctx context.Context, datasourceID uint, originalName string, r io.Reader, size int64) (*UploadResult, error) {
	ds, err := findDataSource(ctx, s.datasources, datasourceID)
	if err != nil {
		return nil, err
	}

	ft, ok := model.FileTypeFromName(originalName)
	if !ok || !s.allowed(ds.Type, ft) {
		return nil, fmt.Errorf("%w: %q for %s", ErrUnsupportedFileType, filepath.Ext(originalName), ds.Type)
	}
	limit := s.cfg.MaxSizeBytes()
	if limit > 0 && size > limit {
		return nil, ErrFileTooLarge
	}

	// 1. 保存原始字节
	saved, err := s.store.Save(r, string(ft), limit)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("保存上传文件失败: %w", err)
	}
	absPath, err := filepath.Abs(saved.Path)
	if err != nil {
		absPath = saved.Path
	}
	log.Infof("[Upload] 文件 %s 已保存为 %s (%d bytes)", originalName, saved.Name, saved.Size)

	if s.archive != nil {
		if err := s.archive.Put(ctx, saved.Name, absPath); err != nil {
			log.Warnf("[Upload] 归档文件 %s 到 MinIO 失败: %v", saved.Name, err)
		}
	}

	// 2. 写入 PENDING 记录
	f := &model.UploadedFile{
		DataSourceID:     ds.ID,
		Filename:         saved.Name,
		OriginalFilename: filepath.Base(originalName),
		FileType:         ft,
		FileSize:         saved.Size,
		Status:           model.StatusPending,
	}
	if err := s.files.Create(ctx, f); err != nil {
		_ = s.store.Remove(saved.Name)
		if s.archive != nil {
			_ = s.archive.Remove(context.WithoutCancel(ctx), saved.Name)
		}
		return nil, fmt.Errorf("创建文件记录失败: %w", err)
	}

	// 3. 派发后台导入任务
	task := tasks.IngestTask{
		FileID:           f.ID,
		DataSourceID:     ds.ID,
		FilePath:         absPath,
		OriginalFilename: f.OriginalFilename,
		FileType:         string(ft),
	}
	job, err := s.dispatcher.Dispatch(ctx, task)
	if err != nil {
		if failErr := s.tracker.Fail(ctx, f.ID, "dispatch failed: "+err.Error()); failErr != nil {
			log.Error("[Upload] 派发失败后标记 FAILED 失败", failErr)
		}
		return nil, fmt.Errorf("派发导入任务失败: %w", err)
	}
	log.Infof("[Upload] 文件 %d 已派发导入任务, DataSourceID: %d", f.ID, ds.ID)
	return &UploadResult{File: f, Job: job}, nil
}
