// Package tasks defines the structure for ingestion tasks handed to a dispatcher.
package tasks

import (
	"context"
	"sync"
)

// IngestTask represents one background ingestion job for an uploaded file.
// It carries everything the processor needs without re-reading the upload request.
type IngestTask struct {
	FileID           uint   `json:"file_id"`
	DataSourceID     uint   `json:"datasource_id"`
	FilePath         string `json:"file_path"`
	OriginalFilename string `json:"original_filename"`
	FileType         string `json:"file_type"`
}

// Job is a handle on a dispatched task. What "done" means depends on the
// dispatcher: the local dispatcher finishes the job when processing ends, the
// Kafka dispatcher when the task has been published. Jobs are not durable.
type Job struct {
	FileID uint

	once sync.Once
	done chan struct{}
	err  error
}

// NewJob 创建一个未完成的 Job。
func NewJob(fileID uint) *Job {
	return &Job{FileID: fileID, done: make(chan struct{})}
}

// Finish 记录结果并关闭 Done 通道，只有第一次调用生效。
func (j *Job) Finish(err error) {
	j.once.Do(func() {
		j.err = err
		close(j.done)
	})
}

// Done 在 Job 结束后关闭。
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err 返回 Job 的结果，Job 未结束时为 nil。
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Wait 阻塞直到 Job 结束或 ctx 取消。
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
