package service

import (
	"context"

	"gorm.io/gorm"
	"smart-erp-go/internal/model"
	"smart-erp-go/internal/pipeline"
	"smart-erp-go/internal/repository"
	"smart-erp-go/pkg/log"
	"smart-erp-go/pkg/storage"
)

// FileArchive 是上传原始文件的远端镜像，未启用时为 nil。
type FileArchive interface {
	Put(ctx context.Context, objectName, path string) error
	Remove(ctx context.Context, objectName string) error
}

// Reclaimer 回收文件记录删除后遗留的资源：导入表、本地文件、归档对象和状态缓存。
// 每一步都是尽力而为，失败只记录日志。
type Reclaimer struct {
	db      *gorm.DB
	store   *storage.LocalStore
	archive FileArchive
	cache   repository.StatusCache
}

// NewReclaimer 创建一个 Reclaimer。archive 可以为 nil。
func NewReclaimer(db *gorm.DB, store *storage.LocalStore, archive FileArchive, cache repository.StatusCache) *Reclaimer {
	if cache == nil {
		cache = repository.NewStatusCache(nil)
	}
	return &Reclaimer{db: db, store: store, archive: archive, cache: cache}
}

func (r *Reclaimer) dropTables(ctx context.Context, tables map[string]struct{}) {
	for name := range tables {
		if err := pipeline.DropTable(ctx, r.db, name); err != nil {
			log.Warnf("[Reclaim] 删除导入表 %s 失败: %v", name, err)
			continue
		}
		log.Infof("[Reclaim] 已删除导入表 %s", name)
	}
}

func (r *Reclaimer) removeFile(ctx context.Context, f model.UploadedFile) {
	if err := r.store.Remove(f.Filename); err != nil {
		log.Warnf("[Reclaim] 删除本地文件 %s 失败: %v", f.Filename, err)
	}
	if r.archive != nil {
		if err := r.archive.Remove(ctx, f.Filename); err != nil {
			log.Warnf("[Reclaim] 删除归档对象 %s 失败: %v", f.Filename, err)
		}
	}
	if err := r.cache.Delete(ctx, f.ID); err != nil {
		log.Warnf("[Reclaim] 删除文件 %d 的状态缓存失败: %v", f.ID, err)
	}
}

// reclaim 回收一组文件及其导入表，extra 为额外需要删除的表（如数据源当前的承载表）。
func (r *Reclaimer) reclaim(ctx context.Context, files []model.UploadedFile, extra ...*string) {
	ctx = context.WithoutCancel(ctx)
	tables := make(map[string]struct{})
	for _, f := range files {
		if f.IngestedTable != nil && *f.IngestedTable != "" {
			tables[*f.IngestedTable] = struct{}{}
		}
		r.removeFile(ctx, f)
	}
	for _, t := range extra {
		if t != nil && *t != "" {
			tables[*t] = struct{}{}
		}
	}
	r.dropTables(ctx, tables)
}
