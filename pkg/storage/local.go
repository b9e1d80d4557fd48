package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge 表示写入的内容超过了允许的大小。
var ErrTooLarge = errors.New("file exceeds the maximum upload size")

// LocalStore 把上传文件以随机文件名保存到本地目录，导入流程从这里读取原始字节。
type LocalStore struct {
	dir string
}

// StoredFile 描述一次保存的结果。
type StoredFile struct {
	Name string
	Path string
	Size int64
}

// NewLocalStore 创建存储目录（若不存在）。
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建上传目录 %s 失败: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save 把 r 写入 <uuid>.<ext>。limit 大于 0 时超过限制返回 ErrTooLarge，且不留下文件。
func (s *LocalStore) Save(r io.Reader, ext string, limit int64) (*StoredFile, error) {
	name := uuid.NewString()
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	path := s.Path(name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && limit > 0 && n > limit {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &StoredFile{Name: name, Path: path, Size: n}, nil
}

// Path 返回存储文件名对应的本地路径。
func (s *LocalStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Remove 删除存储文件，文件不存在不算错误。
func (s *LocalStore) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
