package pipeline

import "errors"

var (
	// ErrSourceFileMissing 表示处理开始时上传文件已不在磁盘上。
	ErrSourceFileMissing = errors.New("source file not found")
	// ErrEmptySheet 表示工作簿中没有任何工作表，属于致命的校验错误。
	ErrEmptySheet = errors.New("excel file contains no sheets")
	// ErrUnsupportedFormat 表示加载器不认识声明的文件类型。
	ErrUnsupportedFormat = errors.New("unsupported tabular format")
	// ErrDataSourceMissing 表示任务引用的数据源不存在。
	ErrDataSourceMissing = errors.New("datasource not found")
	// ErrNotPending 表示文件已被其他任务认领或已处于终态，本次任务不再处理。
	ErrNotPending = errors.New("file is not pending")
	// ErrFileGone 表示文件记录在处理期间被删除，新建的表已被回收。
	ErrFileGone = errors.New("file record was deleted during processing")
)
