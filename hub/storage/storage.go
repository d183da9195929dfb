package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
)

var (
	ErrFileNotFound       = errors.New("file not found")
	ErrUsageNotSupported  = errors.New("storage backend does not report usage")
	ErrInvalidStoragePath = errors.New("invalid storage path")
)

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

type Storage interface {
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	Write(ctx context.Context, path string, data io.Reader, contentType string) error

	Delete(ctx context.Context, path string) error

	Size(ctx context.Context, path string) (int64, error)

	// Usage returns ErrUsageNotSupported for backends without a capacity limit.
	Usage() (UsageStats, error)

	// URL is the public address clients use to fetch the stored file.
	URL(path string) string

	// PathFromUrl maps a url returned by URL back to its storage path. It
	// reports false for urls that point elsewhere.
	PathFromUrl(fileUrl string) (string, bool)
}

func pathFromPublicUrl(publicUrl, fileUrl string) (string, bool) {
	rest, found := strings.CutPrefix(fileUrl, publicUrl+"/")
	if !found || rest == "" {
		return "", false
	}
	unescaped, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return unescaped, true
}
