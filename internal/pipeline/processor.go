// Package pipeline 定义了文件导入的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"smart-erp-go/internal/config"
	"smart-erp-go/internal/model"
	"smart-erp-go/internal/repository"
	"smart-erp-go/pkg/log"
	"smart-erp-go/pkg/tasks"
)

// Processor 封装了文件导入的所有依赖和逻辑，每个上传文件对应一次 Process 调用。
type Processor struct {
	db          *gorm.DB
	datasources repository.DataSourceRepository
	tracker     *StatusTracker
	cfg         config.IngestConfig

	load func(path string, fileType model.FileType) (*Dataset, error)
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	db *gorm.DB,
	datasources repository.DataSourceRepository,
	tracker *StatusTracker,
	cfg config.IngestConfig,
) *Processor {
	if cfg.NameAttempts <= 0 {
		cfg.NameAttempts = 1
	}
	return &Processor{
		db:          db,
		datasources: datasources,
		tracker:     tracker,
		cfg:         cfg,
		load:        Load,
	}
}

// Process 是文件导入的主函数。除 ErrNotPending 外，任何错误或 panic 都会在这里
// 被转换为 FAILED 状态；返回的 error 仅供调度方记录日志。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) (err error) {
	log.Infof("[Processor] 开始处理文件, FileID: %d, DataSourceID: %d, Name: %s", task.FileID, task.DataSourceID, task.OriginalFilename)

	if err := p.tracker.Start(ctx, task.FileID); err != nil {
		if errors.Is(err, ErrNotPending) {
			log.Warnf("[Processor] 文件 %d 不是 PENDING 状态，跳过本次任务", task.FileID)
			return err
		}
		p.fail(ctx, task, err)
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			p.fail(ctx, task, err)
		}
		log.Infof("[Processor] 文件处理结束, FileID: %d, Name: %s", task.FileID, task.OriginalFilename)
	}()

	return p.run(ctx, task)
}

func (p *Processor) fail(ctx context.Context, task tasks.IngestTask, cause error) {
	log.Errorf("[Processor] 处理文件失败, FileID: %d, Name: %s, Error: %v", task.FileID, task.OriginalFilename, cause)
	if err := p.tracker.Fail(ctx, task.FileID, cause.Error()); err != nil {
		log.Error("[Processor] 写入 FAILED 状态失败", err)
	}
}

func (p *Processor) run(ctx context.Context, task tasks.IngestTask) error {
	ds, err := p.datasources.FindByID(ctx, task.DataSourceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDataSourceMissing
		}
		return fmt.Errorf("读取数据源 %d 失败: %w", task.DataSourceID, err)
	}

	fileType := model.FileType(task.FileType)
	if ds.Type != model.DataSourceSQLTable || !fileType.Tabular() {
		return p.placeholder(ctx, task)
	}

	// 1. 解析文件
	log.Infof("[Processor] 步骤1: 解析 %s 文件 %s", fileType, task.FilePath)
	dataset, err := p.load(task.FilePath, fileType)
	if err != nil {
		return err
	}
	if dataset.Empty() {
		log.Warnf("[Processor] 文件 %s 没有可导入的数据行", task.OriginalFilename)
		return p.tracker.Complete(ctx, task.FileID, 0, "", dataset.Note)
	}
	log.Infof("[Processor] 步骤1: 解析完成, 列数: %d, 行数: %d, 跳过格式错误行: %d", len(dataset.Columns), len(dataset.Rows), dataset.Skipped)

	// 2. 建表并批量写入
	tableName, inserted, err := p.ingest(ctx, task, dataset)
	if err != nil {
		return err
	}
	log.Infof("[Processor] 步骤2: 表 %s 写入成功, 行数: %d", tableName, inserted)

	// 3. 文件在处理期间可能已被删除，此时不再绑定，直接回收新表
	alive, err := p.tracker.Processing(ctx, task.FileID)
	if err != nil {
		p.discard(ctx, tableName)
		return err
	}
	if !alive {
		p.discard(ctx, tableName)
		return ErrFileGone
	}

	// 4. 把新表绑定到数据源
	if err := p.datasources.BindTable(ctx, task.DataSourceID, tableName); err != nil {
		p.discard(ctx, tableName)
		return fmt.Errorf("绑定表 %s 到数据源 %d 失败: %w", tableName, task.DataSourceID, err)
	}
	log.Infof("[Processor] 步骤4: 表 %s 已绑定到数据源 %d", tableName, task.DataSourceID)

	// 5. 记录终态。迁移没有生效说明文件记录已不存在，表不再被任何文件引用，撤销绑定并回收
	applied, err := p.tracker.complete(ctx, task.FileID, inserted, tableName, "")
	if err == nil && !applied {
		err = ErrFileGone
	}
	if err != nil {
		p.unbind(ctx, task.DataSourceID, tableName)
		p.discard(ctx, tableName)
		return err
	}
	return nil
}

func (p *Processor) unbind(ctx context.Context, datasourceID uint, tableName string) {
	if err := p.datasources.UnbindTable(context.WithoutCancel(ctx), datasourceID, tableName); err != nil {
		log.Warnf("[Processor] 解除数据源 %d 与表 %s 的绑定失败: %v", datasourceID, tableName, err)
	}
}

// discard 删除本次任务新建但不会被引用的表。
func (p *Processor) discard(ctx context.Context, tableName string) {
	if err := DropTable(context.WithoutCancel(ctx), p.db, tableName); err != nil {
		log.Warnf("[Processor] 清理表 %s 失败: %v", tableName, err)
		return
	}
	log.Infof("[Processor] 已清理未被引用的表 %s", tableName)
}

// ingest 在本任务独占的连接上分配表名，并在同一个事务中建表和写入数据。
// 连接在返回时归还连接池。
func (p *Processor) ingest(ctx context.Context, task tasks.IngestTask, dataset *Dataset) (string, int64, error) {
	var (
		tableName string
		inserted  int64
	)
	err := p.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		name, err := p.allocate(conn, task)
		if err != nil {
			return err
		}
		tableName = name

		return conn.Transaction(func(tx *gorm.DB) error {
			handle, err := Materialize(tx, name, dataset.Columns)
			if err != nil {
				return err
			}
			inserted, err = BulkInsert(tx, handle, dataset.Rows)
			return err
		})
	})
	return tableName, inserted, err
}

// allocate 生成表名，最多尝试 NameAttempts 次以避开已存在的表。
func (p *Processor) allocate(conn *gorm.DB, task tasks.IngestTask) (string, error) {
	for i := 0; i < p.cfg.NameAttempts; i++ {
		name := AllocateTableName(task.DataSourceID, task.OriginalFilename)
		if !TableExists(conn, name) {
			return name, nil
		}
		log.Warnf("[Processor] 表名 %s 已存在，重新生成", name)
	}
	return "", fmt.Errorf("failed to allocate a free table name after %d attempts", p.cfg.NameAttempts)
}

// placeholder 代替尚未实现的文档/知识库导入：固定等待后以固定行数完成。
func (p *Processor) placeholder(ctx context.Context, task tasks.IngestTask) error {
	log.Infof("[Processor] 文件 %d 不走建表流程，使用占位处理", task.FileID)
	if p.cfg.PlaceholderDelay > 0 {
		timer := time.NewTimer(p.cfg.PlaceholderDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.tracker.Complete(ctx, task.FileID, p.cfg.PlaceholderRows, "", "")
}
