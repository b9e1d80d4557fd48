// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// DefaultDataSourceID 是系统内置的默认数据源，不允许删除或直接停用。
const DefaultDataSourceID uint = 1

// DataSourceType 描述数据源的来源类型。
type DataSourceType string

const (
	DataSourceDefault       DataSourceType = "DEFAULT"
	DataSourceSQLTable      DataSourceType = "SQL_TABLE_FROM_FILE"
	DataSourceKnowledgeBase DataSourceType = "KNOWLEDGE_BASE"
)

// Valid 判断类型是否为已知取值。
func (t DataSourceType) Valid() bool {
	switch t {
	case DataSourceDefault, DataSourceSQLTable, DataSourceKnowledgeBase:
		return true
	}
	return false
}

// DataSource 定义了 datasources 表的 ORM 模型。
// 系统内任意时刻最多只有一个 IsActive 为 true 的数据源。
type DataSource struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string         `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Type        DataSourceType `gorm:"type:varchar(32);not null;default:DEFAULT" json:"type"`
	// BackingTable 指向当前承载该数据源数据的导入表，重新上传会改写它。
	BackingTable *string   `gorm:"column:backing_table_name;type:varchar(64)" json:"tableName"`
	IsActive     bool      `gorm:"not null;default:false;index" json:"isActive"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DataSource) TableName() string {
	return "datasources"
}
