package repository

import (
	"context"

	"gorm.io/gorm"
	"smart-erp-go/internal/model"
)

// FileRepository 接口定义了上传文件记录相关的数据持久化操作。
type FileRepository interface {
	Create(ctx context.Context, f *model.UploadedFile) error
	FindByID(ctx context.Context, id uint) (*model.UploadedFile, error)
	FindByDataSource(ctx context.Context, datasourceID uint) ([]model.UploadedFile, error)
	// Transition 仅当当前状态属于 from 时才把状态改为 to，并同时写入 fields。
	// 返回是否真的发生了状态变更。
	Transition(ctx context.Context, id uint, from []model.FileStatus, to model.FileStatus, fields map[string]interface{}) (bool, error)
	Delete(ctx context.Context, id uint) error
}

// fileRepository 是 FileRepository 接口的 GORM 实现。
type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, f *model.UploadedFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *fileRepository) FindByID(ctx context.Context, id uint) (*model.UploadedFile, error) {
	var f model.UploadedFile
	if err := r.db.WithContext(ctx).First(&f, id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepository) FindByDataSource(ctx context.Context, datasourceID uint) ([]model.UploadedFile, error) {
	var files []model.UploadedFile
	err := r.db.WithContext(ctx).Where("datasource_id = ?", datasourceID).Order("created_at desc, id desc").Find(&files).Error
	return files, err
}

// Transition 用一条带条件的 UPDATE 完成状态迁移，单条语句本身即原子操作，
// 不依赖也不参与导入事务。
func (r *fileRepository) Transition(ctx context.Context, id uint, from []model.FileStatus, to model.FileStatus, fields map[string]interface{}) (bool, error) {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to

	res := r.db.WithContext(ctx).Model(&model.UploadedFile{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *fileRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.UploadedFile{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
