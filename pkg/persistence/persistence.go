package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/betbot/kistrade/pkg/logger"
)

// ErrNotExists 表示数据不存在
var ErrNotExists = errors.New("persistence data not exists")

// 默认权限：文件仅所有者可读写，目录仅所有者可访问
const (
	DefaultFileMode os.FileMode = 0o600
	DefaultDirMode  os.FileMode = 0o700
)

// JSONFile 单个 JSON 文件存储（原子写入：临时文件 + rename）
type JSONFile struct {
	path     string
	fileMode os.FileMode
	dirMode  os.FileMode
}

// NewJSONFile 创建 JSON 文件存储，权限使用默认值
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{
		path:     path,
		fileMode: DefaultFileMode,
		dirMode:  DefaultDirMode,
	}
}

// Path 返回文件路径
func (f *JSONFile) Path() string {
	return f.path
}

// Save 原子保存数据。临时文件建在同一目录下，读者永远看不到写了一半的文件。
func (f *JSONFile) Save(data interface{}) error {
	logger.Debugf("[persistence] Save: path=%s", f.path)

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, f.dirMode); err != nil {
		return errors.Wrapf(err, "create dir %s", dir)
	}

	b, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := tmp.Chmod(f.fileMode); err != nil {
		cleanup()
		return errors.Wrap(err, "chmod temp file")
	}
	if _, err := tmp.Write(b); err != nil {
		cleanup()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "rename to %s", f.path)
	}
	return nil
}

// Load 加载数据，文件不存在或为空时返回 ErrNotExists
func (f *JSONFile) Load(data interface{}) error {
	logger.Debugf("[persistence] Load: path=%s", f.path)
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return errors.Wrapf(err, "read %s", f.path)
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	if err := json.Unmarshal(b, data); err != nil {
		return errors.Wrapf(err, "decode %s", f.path)
	}
	return nil
}

// Remove 删除文件，文件不存在不算错误
func (f *JSONFile) Remove() error {
	logger.Debugf("[persistence] Remove: path=%s", f.path)
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", f.path)
	}
	return nil
}
