package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"campus_hub/utils/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFileUrl(t *testing.T) {
	tests := []struct {
		url      string
		fileType string
		expected string
	}{
		{
			url:      "https://res.cloudinary.com/demo/image/upload/v1712/project-management/report.pdf",
			fileType: "application/pdf",
			expected: "https://res.cloudinary.com/demo/raw/upload/report.pdf",
		},
		{
			url:      "https://res.cloudinary.com/demo/image/upload/c_fill,w_200/v1/report.pdf",
			fileType: "APPLICATION/PDF",
			expected: "https://res.cloudinary.com/demo/raw/upload/report.pdf",
		},
		{
			url:      "https://res.cloudinary.com/demo/raw/upload/project-management/report.pdf",
			fileType: "application/pdf",
			expected: "https://res.cloudinary.com/demo/raw/upload/project-management/report.pdf",
		},
		{
			url:      "https://res.cloudinary.com/demo/image/upload/v1/diagram.png",
			fileType: "image/png",
			expected: "https://res.cloudinary.com/demo/image/upload/v1/diagram.png",
		},
		{
			url:      "https://files.example.edu/uploads/report.pdf",
			fileType: "application/pdf",
			expected: "https://files.example.edu/uploads/report.pdf",
		},
		{
			url:      "",
			fileType: "application/pdf",
			expected: "",
		},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, NormalizeFileUrl(test.url, test.fileType), test.url)
	}
}

func TestFileTypeFromUrl(t *testing.T) {
	assert.Equal(t, "application/pdf", FileTypeFromUrl("https://x.edu/a/report.PDF"))
	assert.Equal(t, "image/jpeg", FileTypeFromUrl("photo.jpeg"))
	assert.Equal(t, "image/png", FileTypeFromUrl("diagram.png"))
	assert.Equal(t, "application/octet-stream", FileTypeFromUrl("archive.tar.gz"))
	assert.Equal(t, "application/octet-stream", FileTypeFromUrl("noext"))
}

func TestSharedDiskStorage(t *testing.T) {
	ctx := context.Background()
	store := NewSharedDisk(t.TempDir(), "http://localhost:8000/api/v1/files/", logging.Discard())

	path := "project-management/abc-report final.pdf"
	require.NoError(t, store.Write(ctx, path, strings.NewReader("pdf contents"), "application/pdf"))

	size, err := store.Size(ctx, path)
	require.NoError(t, err)
	assert.EqualValues(t, len("pdf contents"), size)

	reader, err := store.Read(ctx, path)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	reader.Close()
	require.NoError(t, err)
	assert.Equal(t, "pdf contents", string(data))

	fileUrl := store.URL(path)
	assert.Equal(t, "http://localhost:8000/api/v1/files/project-management/abc-report%20final.pdf", fileUrl)

	back, ok := store.PathFromUrl(fileUrl)
	require.True(t, ok)
	assert.Equal(t, path, back)

	_, ok = store.PathFromUrl("https://res.cloudinary.com/demo/raw/upload/report.pdf")
	assert.False(t, ok)
	_, ok = store.PathFromUrl("http://localhost:8000/api/v1/files/")
	assert.False(t, ok)

	usage, err := store.Usage()
	require.NoError(t, err)
	assert.Greater(t, usage.TotalBytes, uint64(0))

	require.NoError(t, store.Delete(ctx, path))

	_, err = store.Read(ctx, path)
	assert.True(t, errors.Is(err, ErrFileNotFound))

	_, err = store.Size(ctx, path)
	assert.True(t, errors.Is(err, ErrFileNotFound))
}

func TestSharedDiskCreatesMissingRoot(t *testing.T) {
	base := filepath.Join(t.TempDir(), "data", "storage")
	store := NewSharedDisk(base, "http://localhost/files", logging.Discard())

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	usage, err := store.Usage()
	require.NoError(t, err)
	assert.Greater(t, usage.FreeBytes, uint64(0))
}

func TestSharedDiskRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store := NewSharedDisk(base, "http://localhost/files", logging.Discard())

	require.NoError(t, store.Write(ctx, "../../outside.txt", strings.NewReader("x"), ""))

	_, err := os.Stat(filepath.Join(base, "outside.txt"))
	assert.NoError(t, err, "paths are resolved relative to the storage root")

	assert.ErrorIs(t, store.Write(ctx, "", strings.NewReader("x"), ""), ErrInvalidStoragePath)
	assert.ErrorIs(t, store.Write(ctx, "../", strings.NewReader("x"), ""), ErrInvalidStoragePath)
}
