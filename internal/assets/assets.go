// Package assets serves the files behind listings. A file locator is a
// slash-separated key relative to the storage root.
package assets

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/iurnickita/digimart/internal/assets/config"
)

var (
	ErrNotFound   = errors.New("asset not found")
	ErrBadLocator = errors.New("bad asset locator")
)

// Asset is an opened file. The caller closes Body.
type Asset struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	Name        string
}

type Storage interface {
	Open(ctx context.Context, locator string) (Asset, error)
	Put(ctx context.Context, locator string, body io.Reader, size int64) error
}

// NewStorage uses S3 when an endpoint is configured and the local directory otherwise.
func NewStorage(ctx context.Context, cfg config.Config) (Storage, error) {
	if cfg.S3Endpoint != "" {
		return NewS3Storage(ctx, cfg)
	}
	return NewLocalStorage(cfg.Dir)
}

// cleanLocator rejects locators that would escape the storage root.
func cleanLocator(locator string) (string, error) {
	if locator == "" || strings.Contains(locator, "\\") || strings.HasPrefix(locator, "/") {
		return "", ErrBadLocator
	}
	cleaned := path.Clean(locator)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrBadLocator
	}
	return cleaned, nil
}

func contentType(locator string) string {
	if ct := mime.TypeByExtension(path.Ext(locator)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
