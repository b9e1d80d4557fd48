package model

import "time"

// StatusSnapshot 是供轮询方读取的文件处理状态快照。
type StatusSnapshot struct {
	FileID       uint       `json:"fileId"`
	DataSourceID uint       `json:"datasourceId"`
	Status       FileStatus `json:"status"`
	RowCount     *int64     `json:"rowCount"`
	ErrorMessage *string    `json:"errorMessage"`
	UpdatedAt    LocalTime  `json:"updatedAt"`
}

// Snapshot 从文件记录生成状态快照。
func (f *UploadedFile) Snapshot() StatusSnapshot {
	updated := f.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return StatusSnapshot{
		FileID:       f.ID,
		DataSourceID: f.DataSourceID,
		Status:       f.Status,
		RowCount:     f.RowCount,
		ErrorMessage: f.ErrorMessage,
		UpdatedAt:    LocalTime(updated),
	}
}
