package service

import "errors"

var (
	ErrDataSourceNotFound  = errors.New("datasource not found")
	ErrFileNotFound        = errors.New("file not found")
	ErrDuplicateName       = errors.New("datasource name already exists")
	ErrDefaultDataSource   = errors.New("the default datasource cannot be deleted or deactivated")
	ErrInvalidDataSource   = errors.New("invalid datasource")
	ErrUnsupportedFileType = errors.New("file type is not supported for this datasource")
	ErrFileTooLarge        = errors.New("file exceeds the maximum upload size")
)
