package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/amplify-storage/internal/domain"
	"github.com/prn-tf/amplify-storage/internal/repository"
	"github.com/prn-tf/amplify-storage/internal/service"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

// UserIDHeader carries the caller's identity, set by the upstream gateway.
const UserIDHeader = "X-User-ID"

const (
	multipartMemory   = 32 << 20
	defaultMaxUpload  = 512 << 20
	uploadSourceAPI   = "api"
	multipartFileName = "file"
)

// FilesHandler serves the file and usage API.
type FilesHandler struct {
	storage       *service.StorageService
	health        *service.HealthService
	maxUploadSize int64
	logger        zerolog.Logger
}

// FilesConfig contains configuration for the files handler.
type FilesConfig struct {
	Storage       *service.StorageService
	Health        *service.HealthService
	MaxUploadSize int64
	Logger        zerolog.Logger
}

// NewFilesHandler creates a new files handler.
func NewFilesHandler(cfg FilesConfig) *FilesHandler {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaultMaxUpload
	}
	return &FilesHandler{
		storage:       cfg.Storage,
		health:        cfg.Health,
		maxUploadSize: cfg.MaxUploadSize,
		logger:        cfg.Logger.With().Str("handler", "files").Logger(),
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers the API routes.
func (h *FilesHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Post("/files", h.handleUpload)
			r.Get("/files", h.handleListFiles)
			r.Delete("/files/{id}", h.handleDeleteFile)
			r.Get("/files/{id}/url", h.handleFileURL)

			r.Get("/usage", h.handleUsage)
			r.Get("/usage/categories", h.handleUsageByCategory)
			r.Get("/usage/analytics", h.handleAnalytics)
		})

		r.Get("/storage/health", h.handleStorageHealth)
		r.Get("/storage/costs", h.handleStorageCosts)
	})
}

// =============================================================================
// Files
// =============================================================================

func (h *FilesHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, APIError{
				ErrorResponse:  ErrorResponse{Code: "RequestTooLarge", Message: "The request body is too large."},
				HTTPStatusCode: http.StatusRequestEntityTooLarge,
			})
			return
		}
		writeError(w, badRequest("MalformedForm", "The request must be multipart/form-data."))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(multipartFileName)
	if err != nil {
		writeError(w, badRequest("MissingFile", "The form field \"file\" is required."))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, badRequest("IncompleteBody", "Failed to read the uploaded file."))
		return
	}

	input := service.UploadInput{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		UserID:      userID,
		Source:      uploadSourceAPI,
	}
	if v := r.FormValue("campaign_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, badRequest("InvalidCampaignID", "campaign_id must be a UUID."))
			return
		}
		input.CampaignID = &id
	}

	res, err := h.storage.UploadWithQuotaCheck(r.Context(), input)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// FileListResponse is a page of files.
type FileListResponse struct {
	Files   []*domain.UserStorageRecord `json:"files"`
	Total   int64                       `json:"total"`
	Offset  int                         `json:"offset"`
	Limit   int                         `json:"limit"`
	HasMore bool                        `json:"has_more"`
}

func (h *FilesHandler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	q := r.URL.Query()

	opts := repository.FileListOptions{
		ListOptions: repository.ListOptions{
			OrderBy:    q.Get("order_by"),
			Descending: q.Get("order") == "desc",
		},
		Category:       domain.ContentCategory(q.Get("category")),
		IncludeDeleted: q.Get("include_deleted") == "true",
	}
	if opts.Category != "" && !opts.Category.Valid() {
		writeError(w, badRequest("InvalidCategory", "category must be image, video or document."))
		return
	}

	var ok bool
	if opts.Limit, ok = intParam(q.Get("limit"), 0); !ok {
		writeError(w, badRequest("InvalidLimit", "limit must be an integer."))
		return
	}
	if opts.Offset, ok = intParam(q.Get("offset"), 0); !ok {
		writeError(w, badRequest("InvalidOffset", "offset must be an integer."))
		return
	}
	if v := q.Get("campaign_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, badRequest("InvalidCampaignID", "campaign_id must be a UUID."))
			return
		}
		opts.CampaignID = &id
	}

	res, err := h.storage.GetUserFiles(r.Context(), userID, opts)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	files := res.Items
	if files == nil {
		files = []*domain.UserStorageRecord{}
	}
	writeJSON(w, http.StatusOK, FileListResponse{
		Files:   files,
		Total:   res.Total,
		Offset:  res.Offset,
		Limit:   res.Limit,
		HasMore: res.HasMore(),
	})
}

func (h *FilesHandler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	fileID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, ErrInvalidFileID)
		return
	}

	res, err := h.storage.DeleteFileWithQuotaUpdate(r.Context(), fileID, userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *FilesHandler) handleFileURL(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	fileID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, ErrInvalidFileID)
		return
	}

	preferred := storage.RolePrimary
	if r.URL.Query().Get("prefer") == string(storage.RoleBackup) {
		preferred = storage.RoleBackup
	}

	res, err := h.storage.GetFileURL(r.Context(), fileID, userID, preferred)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// Usage
// =============================================================================

// UsageResponse combines ledger usage and quota position.
type UsageResponse struct {
	Usage *domain.StorageUsage `json:"usage"`
	Quota *domain.QuotaInfo    `json:"quota"`
}

func (h *FilesHandler) handleUsage(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	usage, err := h.storage.CalculateUserStorageUsage(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	quota, err := h.storage.GetQuotaInfo(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, UsageResponse{Usage: usage, Quota: quota})
}

func (h *FilesHandler) handleUsageByCategory(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	categories, err := h.storage.GetStorageUsageByCategory(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if categories == nil {
		categories = []domain.CategoryUsage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *FilesHandler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	days, ok := intParam(r.URL.Query().Get("days"), 0)
	if !ok {
		writeError(w, badRequest("InvalidDays", "days must be an integer."))
		return
	}

	analytics, err := h.storage.GetStorageAnalytics(r.Context(), userID, days)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// =============================================================================
// Storage
// =============================================================================

// StorageHealthResponse is the provider health report.
type StorageHealthResponse struct {
	Status    string                   `json:"status"`
	Providers []service.ProviderHealth `json:"providers"`
}

func (h *FilesHandler) handleStorageHealth(w http.ResponseWriter, r *http.Request) {
	providers := h.health.GetStorageHealth(r.Context())
	status := service.OverallStatus(providers)

	code := http.StatusOK
	if status == service.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, StorageHealthResponse{Status: status, Providers: providers})
}

func (h *FilesHandler) handleStorageCosts(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("stored_gb"); v != "" {
		gb, err := strconv.ParseFloat(v, 64)
		if err != nil || gb < 0 {
			writeError(w, badRequest("InvalidStoredGB", "stored_gb must be a non-negative number."))
			return
		}
		writeJSON(w, http.StatusOK, h.health.ProjectCosts(int64(gb*float64(domain.GB))))
		return
	}

	report, err := h.health.PlatformCostReport(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func intParam(v string, def int) (int, bool) {
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
