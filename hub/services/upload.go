package services

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"campus_hub/hub/auth"
	"campus_hub/hub/storage"
	"campus_hub/utils"
	"campus_hub/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	uploadFolder   = "project-management"
	maxUploadBytes = 25 << 20
)

type UploadService struct {
	storage  storage.Storage
	userAuth auth.IdentityProvider
	logger   *slog.Logger
}

func (s *UploadService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)
	r.Use(checkSufficientStorage(s.storage, s.logger))

	r.Post("/", s.Upload)

	return r
}

type UploadResponse struct {
	FileUrl  string `json:"fileUrl"`
	FileType string `json:"fileType"`
	Size     int64  `json:"size"`
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r < 0x20:
			return '_'
		default:
			return r
		}
	}, name)
}

func (s *UploadService) Upload(w http.ResponseWriter, r *http.Request) {
	userId, err := auth.UserIdFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+(1<<20))

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, fmt.Sprintf("file exceeds the maximum size of %d bytes", maxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("error reading uploaded file: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		http.Error(w, fmt.Sprintf("file exceeds the maximum size of %d bytes", maxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	name := sanitizeFilename(header.Filename)
	fileType := header.Header.Get("Content-Type")
	if fileType == "" || fileType == "application/octet-stream" {
		fileType = storage.FileTypeFromUrl(name)
	}

	storagePath := path.Join(uploadFolder, fmt.Sprintf("%v-%v", uuid.New(), name))

	if err := s.storage.Write(r.Context(), storagePath, file, fileType); err != nil {
		s.logger.Error("error storing upload", "path", storagePath, "error", err, "code", logging.STORAGE)
		writeError(w, s.logger, "uploading file", CodedError(errors.New("unable to store file"), http.StatusInternalServerError))
		return
	}

	uploadBytesMetric.Observe(float64(header.Size))
	s.logger.Info("stored upload", "path", storagePath, "size", header.Size, "user_id", userId, "code", logging.STORAGE)

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, UploadResponse{
		FileUrl:  s.storage.URL(storagePath),
		FileType: fileType,
		Size:     header.Size,
	})
}

// ServeFile streams a stored upload back to the client. Only pdf and image
// types are rendered inline, everything else is sent as a download.
func (s *UploadService) ServeFile(w http.ResponseWriter, r *http.Request) {
	filePath := chi.URLParam(r, "*")
	if filePath == "" {
		http.Error(w, "missing file path", http.StatusBadRequest)
		return
	}

	reader, err := s.storage.Read(r.Context(), filePath)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) || errors.Is(err, storage.ErrInvalidStoragePath) {
			http.Error(w, storage.ErrFileNotFound.Error(), http.StatusNotFound)
			return
		}
		s.logger.Error("error reading stored file", "path", filePath, "error", err, "code", logging.STORAGE)
		http.Error(w, "unable to read file", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	header := w.Header()
	header.Set("X-Content-Type-Options", "nosniff")

	contentType := storage.FileTypeFromUrl(filePath)
	header.Set("Content-Type", contentType)
	if contentType == "application/octet-stream" {
		header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(filePath)}))
	}

	if size, err := s.storage.Size(r.Context(), filePath); err == nil {
		header.Set("Content-Length", strconv.FormatInt(size, 10))
	}

	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Warn("error streaming file", "path", filePath, "error", err, "code", logging.STORAGE)
	}
}
