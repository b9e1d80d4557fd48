package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"smart-erp-go/internal/model"
)

// DataSourceRepository 接口定义了数据源相关的数据持久化操作。
type DataSourceRepository interface {
	Create(ctx context.Context, ds *model.DataSource) error
	FindByID(ctx context.Context, id uint) (*model.DataSource, error)
	FindByName(ctx context.Context, name string) (*model.DataSource, error)
	FindAll(ctx context.Context) ([]model.DataSource, error)
	FindActive(ctx context.Context) (*model.DataSource, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	// Delete 在一个事务内删除数据源及其全部文件记录，返回被删除的文件记录。
	Delete(ctx context.Context, id uint) ([]model.UploadedFile, error)
	// SetActive 在一个事务内先清除所有激活标记再激活目标。
	SetActive(ctx context.Context, id uint) error
	BindTable(ctx context.Context, id uint, tableName string) error
	// UnbindTable 仅当数据源当前指向 tableName 时才将其置空。
	UnbindTable(ctx context.Context, id uint, tableName string) error
}

// dataSourceRepository 是 DataSourceRepository 接口的 GORM 实现。
type dataSourceRepository struct {
	db *gorm.DB
}

// NewDataSourceRepository 创建一个新的 DataSourceRepository 实例。
func NewDataSourceRepository(db *gorm.DB) DataSourceRepository {
	return &dataSourceRepository{db: db}
}

func (r *dataSourceRepository) Create(ctx context.Context, ds *model.DataSource) error {
	return r.db.WithContext(ctx).Create(ds).Error
}

func (r *dataSourceRepository) FindByID(ctx context.Context, id uint) (*model.DataSource, error) {
	var ds model.DataSource
	if err := r.db.WithContext(ctx).First(&ds, id).Error; err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *dataSourceRepository) FindByName(ctx context.Context, name string) (*model.DataSource, error) {
	var ds model.DataSource
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&ds).Error; err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *dataSourceRepository) FindAll(ctx context.Context) ([]model.DataSource, error) {
	var list []model.DataSource
	err := r.db.WithContext(ctx).Order("id asc").Find(&list).Error
	return list, err
}

// FindActive 返回当前激活的数据源，没有时返回 gorm.ErrRecordNotFound。
func (r *dataSourceRepository) FindActive(ctx context.Context) (*model.DataSource, error) {
	var ds model.DataSource
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id asc").First(&ds).Error; err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *dataSourceRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&model.DataSource{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *dataSourceRepository) Delete(ctx context.Context, id uint) ([]model.UploadedFile, error) {
	var files []model.UploadedFile
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("datasource_id = ?", id).Find(&files).Error; err != nil {
			return err
		}
		if err := tx.Where("datasource_id = ?", id).Delete(&model.UploadedFile{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.DataSource{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *dataSourceRepository) SetActive(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target model.DataSource
		if err := tx.Select("id").First(&target, id).Error; err != nil {
			return err
		}
		now := time.Now()
		if err := tx.Model(&model.DataSource{}).
			Where("is_active = ? AND id <> ?", true, id).
			Updates(map[string]interface{}{"is_active": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Model(&model.DataSource{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"is_active": true, "updated_at": now}).Error
	})
}

func (r *dataSourceRepository) BindTable(ctx context.Context, id uint, tableName string) error {
	return r.Update(ctx, id, map[string]interface{}{"backing_table_name": tableName})
}

func (r *dataSourceRepository) UnbindTable(ctx context.Context, id uint, tableName string) error {
	return r.db.WithContext(ctx).Model(&model.DataSource{}).
		Where("id = ? AND backing_table_name = ?", id, tableName).
		Update("backing_table_name", nil).Error
}
