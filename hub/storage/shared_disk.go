package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// SharedDiskStorage keeps uploads on a local or network mounted directory.
// Files are served back by the hub under publicUrl.
type SharedDiskStorage struct {
	basepath  string
	publicUrl string
	logger    *slog.Logger
}

func NewSharedDisk(basepath, publicUrl string, logger *slog.Logger) Storage {
	logger.Info("creating new shared disk storage", "basepath", basepath)
	if err := os.MkdirAll(basepath, 0777); err != nil {
		logger.Error("error creating shared disk storage root", "basepath", basepath, "error", err)
	}
	return &SharedDiskStorage{basepath: basepath, publicUrl: strings.TrimSuffix(publicUrl, "/"), logger: logger}
}

func (s *SharedDiskStorage) fullpath(path string) (string, error) {
	cleaned := filepath.Clean("/" + path)
	if cleaned == "/" {
		return "", fmt.Errorf("%w: '%v'", ErrInvalidStoragePath, path)
	}
	return filepath.Join(s.basepath, cleaned), nil
}

func (s *SharedDiskStorage) Read(_ context.Context, path string) (io.ReadCloser, error) {
	fullpath, err := s.fullpath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullpath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrFileNotFound, path)
		}
		s.logger.Error("error opening file for read", "path", fullpath, "error", err)
		return nil, fmt.Errorf("error reading file %v: %v", path, err)
	}

	return file, nil
}

func (s *SharedDiskStorage) Write(_ context.Context, path string, data io.Reader, _ string) error {
	fullpath, err := s.fullpath(path)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(fullpath), 0777)
	if err != nil {
		s.logger.Error("error creating parent directory", "path", fullpath, "error", err)
		return fmt.Errorf("error creating parent directory %v: %v", path, err)
	}

	file, err := os.OpenFile(fullpath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		s.logger.Error("error opening file for writing", "path", fullpath, "error", err)
		return fmt.Errorf("error opening file %v: %v", path, err)
	}
	defer file.Close()

	_, err = io.Copy(file, data)
	if err != nil {
		s.logger.Error("error writing to file", "path", fullpath, "error", err)
		return fmt.Errorf("error writing to file %v: %v", path, err)
	}

	return nil
}

func (s *SharedDiskStorage) Delete(_ context.Context, path string) error {
	fullpath, err := s.fullpath(path)
	if err != nil {
		return err
	}

	err = os.RemoveAll(fullpath)
	if err != nil {
		s.logger.Error("error deleting file", "path", fullpath, "error", err)
		return fmt.Errorf("error deleting file %v: %v", path, err)
	}
	return nil
}

func (s *SharedDiskStorage) Size(_ context.Context, path string) (int64, error) {
	fullpath, err := s.fullpath(path)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(fullpath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %v", ErrFileNotFound, path)
		}
		s.logger.Error("error getting stats for file", "path", fullpath, "error", err)
		return 0, fmt.Errorf("error gettings stats for file %v: %w", fullpath, err)
	}

	return info.Size(), nil
}

func (s *SharedDiskStorage) Usage() (UsageStats, error) {
	var stat unix.Statfs_t

	err := unix.Statfs(s.basepath, &stat)
	if err != nil {
		s.logger.Error("error getting disk usage for shared storage", "path", s.basepath, "error", err)
		return UsageStats{}, fmt.Errorf("error getting disk usage stats: %w", err)
	}

	return UsageStats{
		TotalBytes: stat.Blocks * uint64(stat.Bsize),
		FreeBytes:  stat.Bfree * uint64(stat.Bsize),
	}, nil
}

func (s *SharedDiskStorage) URL(path string) string {
	segments := strings.Split(strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+path)), "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return s.publicUrl + "/" + strings.Join(segments, "/")
}

func (s *SharedDiskStorage) PathFromUrl(fileUrl string) (string, bool) {
	return pathFromPublicUrl(s.publicUrl, fileUrl)
}
