// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"smart-erp-go/internal/config"
	"smart-erp-go/internal/handler"
	"smart-erp-go/internal/pipeline"
	"smart-erp-go/internal/repository"
	"smart-erp-go/internal/service"
	"smart-erp-go/pkg/database"
	"smart-erp-go/pkg/kafka"
	"smart-erp-go/pkg/log"
	"smart-erp-go/pkg/storage"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 和文件存储
	database.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	if err := repository.AutoMigrate(database.DB); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	if cfg.Database.Redis.Enabled {
		database.InitRedis(cfg.Database.Redis)
	}
	store, err := storage.NewLocalStore(cfg.Upload.Dir)
	if err != nil {
		log.Fatal("初始化上传目录失败", err)
	}
	var archive service.FileArchive
	if cfg.MinIO.Enabled {
		a, err := storage.InitMinIO(cfg.MinIO)
		if err != nil {
			log.Fatal("初始化 MinIO 失败", err)
		}
		archive = a
	}

	// 4. 初始化 Repository
	dataSourceRepo := repository.NewDataSourceRepository(database.DB)
	fileRepo := repository.NewFileRepository(database.DB)
	statusCache := repository.NewStatusCache(database.RDB)

	// 5. 初始化导入管道和任务调度
	tracker := pipeline.NewStatusTracker(fileRepo, statusCache)
	processor := pipeline.NewProcessor(database.DB, dataSourceRepo, tracker, cfg.Ingest)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	var (
		dispatcher service.Dispatcher
		local      *pipeline.LocalDispatcher
		producer   *kafka.Dispatcher
		consumed   chan struct{}
	)
	switch cfg.Ingest.Dispatcher {
	case "kafka":
		if !cfg.Kafka.Enabled {
			log.Fatalf("ingest.dispatcher 为 kafka 但 kafka.enabled 为 false")
		}
		producer = kafka.InitProducer(cfg.Kafka)
		dispatcher = producer
		consumed = make(chan struct{})
		go func() {
			defer close(consumed)
			kafka.StartConsumer(consumerCtx, cfg.Kafka, processor)
		}()
	default:
		local = pipeline.NewLocalDispatcher(processor, cfg.Ingest.MaxConcurrent)
		dispatcher = local
		log.Infof("使用进程内调度器，最大并发导入数: %d", cfg.Ingest.MaxConcurrent)
	}

	// 6. 初始化 Service (依赖注入)
	reclaimer := service.NewReclaimer(database.DB, store, archive, statusCache)
	dataSourceService := service.NewDataSourceService(dataSourceRepo, reclaimer)
	uploadService := service.NewUploadService(dataSourceRepo, fileRepo, store, archive, tracker, dispatcher, cfg.Upload)
	fileService := service.NewFileService(dataSourceRepo, fileRepo, statusCache, reclaimer)

	if err := dataSourceService.EnsureDefault(context.Background()); err != nil {
		log.Fatal("初始化默认数据源失败", err)
	}

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(
		handler.NewDataSourceHandler(dataSourceService),
		handler.NewFileHandler(uploadService, fileService),
	)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	stopConsumer()
	if consumed != nil {
		log.Info("等待 Kafka 消费者处理完当前任务...")
		<-consumed
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if local != nil {
		// 进行中的导入没有取消机制，等待它们写入终态
		log.Info("等待进行中的导入任务结束...")
		local.Wait()
	}
	log.Info("服务已优雅关闭")
}
