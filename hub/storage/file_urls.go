package storage

import (
	"path"
	"strings"
)

const (
	rawUploadSegment   = "/raw/upload/"
	imageUploadSegment = "/image/upload/"
)

// NormalizeFileUrl fixes pdf urls that were stored under the image delivery
// path of the asset host. Those urls drop any transformation segments and are
// rewritten to the raw delivery path so the file downloads unchanged.
func NormalizeFileUrl(fileUrl, fileType string) string {
	if fileUrl == "" || strings.Contains(fileUrl, rawUploadSegment) {
		return fileUrl
	}

	if !strings.EqualFold(fileType, "application/pdf") {
		return fileUrl
	}

	parts := strings.Split(fileUrl, imageUploadSegment)
	if len(parts) != 2 {
		return fileUrl
	}

	base, rest := parts[0], parts[1]
	segments := strings.Split(rest, "/")
	return base + rawUploadSegment + segments[len(segments)-1]
}

// FileTypeFromUrl guesses the mime type from the url's extension.
func FileTypeFromUrl(fileUrl string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(fileUrl), ".")) {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
