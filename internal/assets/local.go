package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

type LocalStorage struct {
	root string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("assets dir: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

func (s *LocalStorage) Open(_ context.Context, locator string) (Asset, error) {
	key, err := cleanLocator(locator)
	if err != nil {
		return Asset{}, err
	}

	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Asset{}, ErrNotFound
		}
		return Asset{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return Asset{}, err
	}
	if info.IsDir() {
		f.Close()
		return Asset{}, ErrNotFound
	}

	return Asset{
		Body:        f,
		Size:        info.Size(),
		ContentType: contentType(key),
		Name:        path.Base(key),
	}, nil
}

func (s *LocalStorage) Put(_ context.Context, locator string, body io.Reader, _ int64) error {
	key, err := cleanLocator(locator)
	if err != nil {
		return err
	}

	name := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
