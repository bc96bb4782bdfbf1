package localstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const fileSuffix = ".json"

// File keeps one file per key under Dir.
type File struct {
	Dir string
}

func NewFile(dir string) (*File, error) {
	target := strings.TrimSpace(dir)
	if target == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if err := Mkdir(target); err != nil {
		return nil, err
	}
	return &File{Dir: target}, nil
}

func (f *File) Path(key string) string {
	return filepath.Join(f.Dir, key+fileSuffix)
}

func (f *File) Get(key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read file %s: %w", f.Path(key), err)
	}
	return data, true, nil
}

func (f *File) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return WriteBytes(f.Path(key), value)
}

func (f *File) Lock() (func() error, error) {
	lock, err := AcquireLock(f.Dir)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

func Mkdir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// WriteBytes replaces path through a temp file and rename so a crash never
// leaves a partially written file behind.
func WriteBytes(path string, data []byte) error {
	_, err := WriteFrom(path, bytes.NewReader(data))
	return err
}

// WriteFrom streams r into path with the same temp file and rename
// guarantee as WriteBytes. It returns the number of bytes written.
func WriteFrom(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".vidgen-tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return n, fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return n, fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return n, fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return n, fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return n, fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return n, nil
}
