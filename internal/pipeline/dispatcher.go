package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"smart-erp-go/pkg/tasks"
)

// TaskProcessor 是可以执行导入任务的服务。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

// LocalDispatcher 在进程内为每个任务启动一个 goroutine，并用信号量限制同时运行的任务数。
// 任务不持久化：进程退出时排队或运行中的任务会丢失。
type LocalDispatcher struct {
	processor TaskProcessor
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
}

// NewLocalDispatcher 创建一个最多同时运行 maxConcurrent 个任务的调度器。
func NewLocalDispatcher(processor TaskProcessor, maxConcurrent int64) *LocalDispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &LocalDispatcher{
		processor: processor,
		sem:       semaphore.NewWeighted(maxConcurrent),
	}
}

// Dispatch 立即返回，任务在后台执行，处理结束时 Job 完成。
// 任务与调用方的 ctx 生命周期解绑，不支持取消。
func (d *LocalDispatcher) Dispatch(ctx context.Context, task tasks.IngestTask) (*tasks.Job, error) {
	job := tasks.NewJob(task.FileID)
	bg := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(bg, 1); err != nil {
			job.Finish(err)
			return
		}
		defer d.sem.Release(1)
		job.Finish(d.processor.Process(bg, task))
	}()
	return job, nil
}

// Wait 阻塞直到所有已派发的任务结束，用于优雅停机。
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
