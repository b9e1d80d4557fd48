package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"smart-erp-go/pkg/log"
)

var DB *gorm.DB

// sqlite 单文件存储的连接参数：WAL 允许读写并发，busy_timeout 让并发写入排队而不是立即失败。
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// Open 按驱动名打开 gorm 连接。driver 为 "sqlite" 时 dsn 是数据库文件路径。
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "sqlite":
		if dir := filepath.Dir(dsn); dir != "" {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return nil, fmt.Errorf("创建数据库目录失败: %w", err)
			}
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dialector = sqlite.Open(dsn + sep + sqlitePragmas)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// 唯一索引冲突统一翻译为 gorm.ErrDuplicatedKey
		TranslateError: true,
		// 批量插入的 SQL 很长，只记录错误
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// InitDB 初始化全局数据库连接
func InitDB(driver, dsn string) {
	var err error
	DB, err = Open(driver, dsn)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	log.Infof("%s database connected successfully", driver)
}
