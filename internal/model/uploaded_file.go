package model

import (
	"path/filepath"
	"strings"
	"time"
)

// FileType 是上传文件的声明类型（不带点的小写扩展名）。
type FileType string

const (
	FileTypeCSV  FileType = "csv"
	FileTypeXLSX FileType = "xlsx"
	FileTypePDF  FileType = "pdf"
	FileTypeTXT  FileType = "txt"
	FileTypeDOCX FileType = "docx"
)

// FileTypeFromName 根据文件名推断 FileType，未知扩展名返回 false。
func FileTypeFromName(name string) (FileType, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ft := FileType(ext); ft {
	case FileTypeCSV, FileTypeXLSX, FileTypePDF, FileTypeTXT, FileTypeDOCX:
		return ft, true
	}
	return "", false
}

// Tabular 表示该类型可以被导入为关系表。
func (t FileType) Tabular() bool {
	return t == FileTypeCSV || t == FileTypeXLSX
}

// FileStatus 是上传文件的处理状态。
// PENDING -> PROCESSING -> COMPLETED | FAILED，后两者为终态。
type FileStatus string

const (
	StatusPending    FileStatus = "PENDING"
	StatusProcessing FileStatus = "PROCESSING"
	StatusCompleted  FileStatus = "COMPLETED"
	StatusFailed     FileStatus = "FAILED"
)

// Terminal 报告状态是否为终态。
func (s FileStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// UploadedFile 定义了 uploaded_files 表的 ORM 模型。
// 它记录了每个上传文件的元数据和后台处理状态。
type UploadedFile struct {
	ID               uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	DataSourceID     uint       `gorm:"column:datasource_id;not null;index" json:"datasourceId"`
	Filename         string     `gorm:"type:varchar(255);not null" json:"filename"`
	OriginalFilename string     `gorm:"type:varchar(255);not null" json:"originalFilename"`
	FileType         FileType   `gorm:"type:varchar(16);not null" json:"fileType"`
	FileSize         int64      `gorm:"not null" json:"fileSize"`
	Status           FileStatus `gorm:"type:varchar(16);not null;default:PENDING;index" json:"status"`
	RowCount         *int64     `json:"rowCount"`
	ErrorMessage     *string    `gorm:"type:text" json:"errorMessage"`
	// IngestedTable 是本文件导入生成的表，删除文件或数据源时据此回收。
	IngestedTable *string   `gorm:"type:varchar(64)" json:"ingestedTable"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UploadedFile) TableName() string {
	return "uploaded_files"
}
