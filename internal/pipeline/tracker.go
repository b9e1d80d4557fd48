package pipeline

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"smart-erp-go/internal/model"
	"smart-erp-go/internal/repository"
	"smart-erp-go/pkg/log"
)

// StatusTracker 负责文件处理状态的迁移：PENDING -> PROCESSING -> COMPLETED | FAILED。
// 每次写入都是独立于导入事务的单条条件更新，终态不可再改。
// 进程在 PROCESSING 期间被杀死时状态会停留在 PROCESSING，没有自动恢复。
type StatusTracker struct {
	files repository.FileRepository
	cache repository.StatusCache
}

// NewStatusTracker 创建一个新的 StatusTracker 实例。
func NewStatusTracker(files repository.FileRepository, cache repository.StatusCache) *StatusTracker {
	if cache == nil {
		cache = repository.NewStatusCache(nil)
	}
	return &StatusTracker{files: files, cache: cache}
}

// Start 把文件从 PENDING 认领为 PROCESSING。文件不处于 PENDING 时返回 ErrNotPending。
func (t *StatusTracker) Start(ctx context.Context, fileID uint) error {
	ok, err := t.files.Transition(ctx, fileID, []model.FileStatus{model.StatusPending}, model.StatusProcessing, nil)
	if err != nil {
		return fmt.Errorf("更新文件 %d 状态为 PROCESSING 失败: %w", fileID, err)
	}
	if !ok {
		return fmt.Errorf("%w: file %d", ErrNotPending, fileID)
	}
	t.publish(ctx, fileID)
	return nil
}

// Complete 记录成功终态。tableName 和 note 为空时对应列写入 NULL。
func (t *StatusTracker) Complete(ctx context.Context, fileID uint, rowCount int64, tableName, note string) error {
	_, err := t.complete(ctx, fileID, rowCount, tableName, note)
	return err
}

// complete 同 Complete，并报告迁移是否真正生效（文件仍处于 PROCESSING）。
func (t *StatusTracker) complete(ctx context.Context, fileID uint, rowCount int64, tableName, note string) (bool, error) {
	ctx = context.WithoutCancel(ctx)
	fields := map[string]interface{}{
		"row_count":      rowCount,
		"error_message":  nullable(note),
		"ingested_table": nullable(tableName),
	}
	return t.finish(ctx, fileID, []model.FileStatus{model.StatusProcessing}, model.StatusCompleted, fields)
}

// Processing 报告文件记录是否仍存在且处于 PROCESSING。
func (t *StatusTracker) Processing(ctx context.Context, fileID uint) (bool, error) {
	f, err := t.files.FindByID(ctx, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("读取文件 %d 失败: %w", fileID, err)
	}
	return f.Status == model.StatusProcessing, nil
}

// Fail 记录失败终态。尚未开始（PENDING）的文件也可以直接失败。
func (t *StatusTracker) Fail(ctx context.Context, fileID uint, message string) error {
	ctx = context.WithoutCancel(ctx)
	fields := map[string]interface{}{"error_message": message}
	_, err := t.finish(ctx, fileID, []model.FileStatus{model.StatusPending, model.StatusProcessing}, model.StatusFailed, fields)
	return err
}

func (t *StatusTracker) finish(ctx context.Context, fileID uint, from []model.FileStatus, to model.FileStatus, fields map[string]interface{}) (bool, error) {
	ok, err := t.files.Transition(ctx, fileID, from, to, fields)
	if err != nil {
		return false, fmt.Errorf("更新文件 %d 状态为 %s 失败: %w", fileID, to, err)
	}
	if !ok {
		// 文件在处理期间被删除，或者已经处于终态
		log.Warnf("[StatusTracker] 文件 %d 未处于 %v，忽略到 %s 的迁移", fileID, from, to)
		return false, nil
	}
	t.publish(ctx, fileID)
	return true, nil
}

// publish 把最新状态写入缓存，失败只记录日志。写入失败时尝试删除旧条目，
// 避免缓存里留下过期的非终态。
func (t *StatusTracker) publish(ctx context.Context, fileID uint) {
	f, err := t.files.FindByID(ctx, fileID)
	if err != nil {
		log.Warnf("[StatusTracker] 读取文件 %d 用于刷新状态缓存失败: %v", fileID, err)
		t.invalidate(ctx, fileID)
		return
	}
	if err := t.cache.Set(ctx, f.Snapshot()); err != nil {
		log.Warnf("[StatusTracker] 刷新文件 %d 状态缓存失败: %v", fileID, err)
		t.invalidate(ctx, fileID)
	}
}

func (t *StatusTracker) invalidate(ctx context.Context, fileID uint) {
	if err := t.cache.Delete(ctx, fileID); err != nil {
		log.Warnf("[StatusTracker] 删除文件 %d 状态缓存失败: %v", fileID, err)
	}
}

// nullable 把空字符串写成 NULL。
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
