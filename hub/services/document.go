package services

import (
	"log/slog"
	"net/http"
	"time"

	"campus_hub/hub/auth"
	"campus_hub/hub/schema"
	"campus_hub/hub/storage"
	"campus_hub/utils"
	"campus_hub/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentService is mounted below the project router like TaskService.
type DocumentService struct {
	db     *gorm.DB
	logger *slog.Logger
}

func (s *DocumentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", s.List)
	r.Post("/", s.CreateDocument)

	return r
}

type DocumentInfo struct {
	Id          uuid.UUID      `json:"id"`
	ProjectId   uuid.UUID      `json:"projectId"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	FileUrl     string         `json:"fileUrl"`
	FileType    string         `json:"fileType"`
	Size        int64          `json:"size"`
	Status      string         `json:"status"`
	UploaderId  uuid.UUID      `json:"uploaderId"`
	VerifierId  *uuid.UUID     `json:"verifierId"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func convertToDocumentInfo(doc schema.Document) DocumentInfo {
	return DocumentInfo{
		Id:          doc.Id,
		ProjectId:   doc.ProjectId,
		Title:       doc.Title,
		Description: doc.Description,
		FileUrl:     doc.FileUrl,
		FileType:    doc.FileType,
		Size:        doc.Size,
		Status:      doc.Status,
		UploaderId:  doc.UploaderId,
		VerifierId:  doc.VerifierId,
		Metadata:    doc.Metadata,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func (s *DocumentService) List(w http.ResponseWriter, r *http.Request) {
	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var docs []schema.Document
	result := s.db.WithContext(r.Context()).Where("project_id = ?", project.Id).Order("created_at").Find(&docs)
	if result.Error != nil {
		writeError(w, s.logger, "listing documents", dbFailure(s.logger, "sql error listing documents", result.Error, "project_id", project.Id))
		return
	}

	infos := make([]DocumentInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, convertToDocumentInfo(doc))
	}

	utils.WriteJsonResponse(w, infos)
}

type createDocumentRequest struct {
	Title       string         `json:"title" validate:"required,max=255"`
	Description string         `json:"description"`
	FileUrl     string         `json:"fileUrl" validate:"required"`
	FileType    string         `json:"fileType" validate:"max=100"`
	Size        int64          `json:"size" validate:"gte=0"`
	Metadata    datatypes.JSON `json:"metadata"`
}

func (s *DocumentService) CreateDocument(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createDocumentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	fileType := params.FileType
	if fileType == "" {
		fileType = storage.FileTypeFromUrl(params.FileUrl)
	}

	doc := schema.Document{
		Id:          uuid.New(),
		ProjectId:   project.Id,
		Title:       params.Title,
		Description: params.Description,
		FileUrl:     storage.NormalizeFileUrl(params.FileUrl, fileType),
		FileType:    fileType,
		Size:        params.Size,
		Status:      schema.Draft,
		UploaderId:  user.Id,
		Metadata:    params.Metadata,
	}

	if result := s.db.WithContext(r.Context()).Create(&doc); result.Error != nil {
		writeError(w, s.logger, "creating document", dbFailure(s.logger, "sql error creating document", result.Error, "project_id", project.Id))
		return
	}

	documentsCreatedMetric.Inc()
	s.logger.Info("created document", "project_id", project.Id, "document_id", doc.Id, "uploader_id", user.Id, "code", logging.DOCUMENT_UPDATE)

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, convertToDocumentInfo(doc))
}
