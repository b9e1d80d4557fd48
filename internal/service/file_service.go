package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"smart-erp-go/internal/model"
	"smart-erp-go/internal/repository"
	"smart-erp-go/pkg/log"
)

// FileService 接口定义了上传文件的查询、状态轮询和删除。
type FileService interface {
	ListFiles(ctx context.Context, datasourceID uint) ([]model.UploadedFile, error)
	GetFile(ctx context.Context, datasourceID, fileID uint) (*model.UploadedFile, error)
	GetStatus(ctx context.Context, fileID uint) (*model.StatusSnapshot, error)
	DeleteFile(ctx context.Context, datasourceID, fileID uint) error
}

type fileService struct {
	datasources repository.DataSourceRepository
	files       repository.FileRepository
	cache       repository.StatusCache
	reclaimer   *Reclaimer
}

// NewFileService 创建一个新的 FileService 实例。
func NewFileService(
	datasources repository.DataSourceRepository,
	files repository.FileRepository,
	cache repository.StatusCache,
	r *Reclaimer,
) FileService {
	if cache == nil {
		cache = repository.NewStatusCache(nil)
	}
	return &fileService{datasources: datasources, files: files, cache: cache, reclaimer: r}
}

func (s *fileService) ListFiles(ctx context.Context, datasourceID uint) ([]model.UploadedFile, error) {
	if _, err := findDataSource(ctx, s.datasources, datasourceID); err != nil {
		return nil, err
	}
	return s.files.FindByDataSource(ctx, datasourceID)
}

// GetFile 返回属于指定数据源的文件记录。
func (s *fileService) GetFile(ctx context.Context, datasourceID, fileID uint) (*model.UploadedFile, error) {
	f, err := s.files.FindByID(ctx, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	if f.DataSourceID != datasourceID {
		return nil, ErrFileNotFound
	}
	return f, nil
}

// GetStatus 返回文件的处理状态。缓存只对终态可信：终态不可再改，命中即返回；
// 非终态或未命中时读数据库，且只回填终态，避免旧的 PROCESSING 覆盖刚发布的终态。
func (s *fileService) GetStatus(ctx context.Context, fileID uint) (*model.StatusSnapshot, error) {
	snap, err := s.cache.Get(ctx, fileID)
	if err != nil {
		log.Warnf("[FileService] 读取文件 %d 状态缓存失败: %v", fileID, err)
	}
	if snap != nil && snap.Status.Terminal() {
		return snap, nil
	}

	f, err := s.files.FindByID(ctx, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	fresh := f.Snapshot()
	if fresh.Status.Terminal() {
		if err := s.cache.Set(ctx, fresh); err != nil {
			log.Warnf("[FileService] 回填文件 %d 状态缓存失败: %v", fileID, err)
		}
	}
	return &fresh, nil
}

// DeleteFile 删除文件记录，并回收它的导入表和原始文件。
// 数据源当前指向该表时一并解除绑定。
func (s *fileService) DeleteFile(ctx context.Context, datasourceID, fileID uint) error {
	f, err := s.GetFile(ctx, datasourceID, fileID)
	if err != nil {
		return err
	}
	if err := s.files.Delete(ctx, fileID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFileNotFound
		}
		return fmt.Errorf("删除文件 %d 失败: %w", fileID, err)
	}
	if f.IngestedTable != nil {
		if err := s.datasources.UnbindTable(ctx, datasourceID, *f.IngestedTable); err != nil {
			log.Warnf("[FileService] 解除数据源 %d 与表 %s 的绑定失败: %v", datasourceID, *f.IngestedTable, err)
		}
	}
	log.Infof("[FileService] 已删除文件 %d (%s)", f.ID, f.OriginalFilename)
	s.reclaimer.reclaim(ctx, []model.UploadedFile{*f})
	return nil
}
