// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"
	"smart-erp-go/internal/model"
)

// AutoMigrate 创建或更新元数据表结构。导入生成的动态表不在此管理。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.DataSource{}, &model.UploadedFile{})
}
