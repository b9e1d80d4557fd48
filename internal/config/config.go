// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
// Driver 为 "sqlite"（默认，单文件存储）或 "mysql"。
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。Redis 仅用作处理状态缓存，可关闭。
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。启用后上传的原始文件会额外归档到存储桶。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// UploadConfig 存储上传接收相关的配置。
type UploadConfig struct {
	Dir       string `mapstructure:"dir"`
	MaxSizeMB int64  `mapstructure:"max_size_mb"`
}

// MaxSizeBytes 返回允许的最大上传字节数，0 表示不限制。
func (c UploadConfig) MaxSizeBytes() int64 {
	return c.MaxSizeMB * 1024 * 1024
}

// IngestConfig 存储后台导入任务相关的配置。
type IngestConfig struct {
	// Dispatcher 为 "local"（进程内 goroutine）或 "kafka"。
	Dispatcher       string        `mapstructure:"dispatcher"`
	MaxConcurrent    int64         `mapstructure:"max_concurrent"`
	PlaceholderDelay time.Duration `mapstructure:"placeholder_delay"`
	PlaceholderRows  int64         `mapstructure:"placeholder_rows"`
	NameAttempts     int           `mapstructure:"name_attempts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/smart_erp.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "file-ingestion")
	v.SetDefault("kafka.group_id", "smart-erp-ingest")
	v.SetDefault("upload.dir", "./data/uploads")
	v.SetDefault("upload.max_size_mb", 100)
	v.SetDefault("ingest.dispatcher", "local")
	v.SetDefault("ingest.max_concurrent", 4)
	v.SetDefault("ingest.placeholder_delay", 5*time.Second)
	v.SetDefault("ingest.placeholder_rows", 50)
	v.SetDefault("ingest.name_attempts", 3)
}

// Load 从指定路径读取 YAML 配置，环境变量（前缀 ERP_）可覆盖文件中的值。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
