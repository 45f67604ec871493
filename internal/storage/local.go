package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"agriconnect/internal/utils"
	"agriconnect/pkg/types"
)

// LocalStorage writes blobs into a directory on the local filesystem.
type LocalStorage struct {
	dir     string
	newName func(ext string) string
}

func NewLocalStorage(dir string) *LocalStorage {
	return &LocalStorage{
		dir:     dir,
		newName: utils.BlobName,
	}
}

// Put writes data to a temporary file, syncs it and hard links it to a
// fresh name. os.Link fails when the name exists, so an existing blob is
// never replaced.
func (s *LocalStorage) Put(_ context.Context, data []byte, ext string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create image dir: %v", types.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp image: %v", types.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write image: %v", types.ErrStorage, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: sync image: %v", types.ErrStorage, err)
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close image: %v", types.ErrStorage, err)
	}

	for range maxPutAttempts {
		name := s.newName(ext)
		err := os.Link(tmp.Name(), filepath.Join(s.dir, name))
		if err == nil {
			syncDir(s.dir)
			return name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: link image: %v", types.ErrStorage, err)
		}
	}

	return "", fmt.Errorf("%w: no free image name after %d attempts", types.ErrStorage, maxPutAttempts)
}

func (s *LocalStorage) Get(_ context.Context, ref string) ([]byte, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", types.ErrImageNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read image: %v", types.ErrStorage, err)
	}

	return data, nil
}

// Delete removes ref. Deleting a blob that is already gone is not an error.
func (s *LocalStorage) Delete(_ context.Context, ref string) error {
	if err := checkRef(ref); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove image: %v", types.ErrStorage, err)
	}

	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
