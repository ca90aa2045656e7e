package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/amplify-storage/internal/domain"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// APIError pairs an ErrorResponse with its HTTP status.
type APIError struct {
	ErrorResponse
	HTTPStatusCode int `json:"-"`
}

// Common API errors.
var (
	ErrMissingUser = APIError{
		ErrorResponse:  ErrorResponse{Code: "MissingUser", Message: "X-User-ID header is required."},
		HTTPStatusCode: http.StatusUnauthorized,
	}
	ErrInvalidUser = APIError{
		ErrorResponse:  ErrorResponse{Code: "InvalidUser", Message: "X-User-ID must be a UUID."},
		HTTPStatusCode: http.StatusUnauthorized,
	}
	ErrInvalidFileID = APIError{
		ErrorResponse:  ErrorResponse{Code: "InvalidFileID", Message: "File ID must be a UUID."},
		HTTPStatusCode: http.StatusBadRequest,
	}
	ErrStorageUnavailable = APIError{
		ErrorResponse:  ErrorResponse{Code: "StorageUnavailable", Message: "Storage temporarily unavailable."},
		HTTPStatusCode: http.StatusServiceUnavailable,
	}
	ErrInternal = APIError{
		ErrorResponse:  ErrorResponse{Code: "InternalError", Message: "We encountered an internal error. Please try again."},
		HTTPStatusCode: http.StatusInternalServerError,
	}
)

func badRequest(code, message string) APIError {
	return APIError{
		ErrorResponse:  ErrorResponse{Code: code, Message: message},
		HTTPStatusCode: http.StatusBadRequest,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, e APIError) {
	writeJSON(w, e.HTTPStatusCode, e.ErrorResponse)
}

// mapError translates service and domain errors into API errors.
// Provider internals are never exposed.
func mapError(err error) APIError {
	var (
		qerr *domain.QuotaExceededError
		serr *domain.FileSizeExceededError
		cerr *domain.ContentTypeNotAllowedError
	)

	switch {
	case errors.As(err, &cerr):
		return APIError{
			ErrorResponse: ErrorResponse{
				Code:    "ContentTypeNotAllowed",
				Message: cerr.Error(),
				Details: map[string]any{
					"content_type":  cerr.ContentType,
					"tier":          cerr.Tier,
					"allowed_types": cerr.AllowedTypes,
				},
			},
			HTTPStatusCode: http.StatusUnsupportedMediaType,
		}
	case errors.As(err, &serr):
		return APIError{
			ErrorResponse: ErrorResponse{
				Code:    "FileSizeExceeded",
				Message: serr.Error(),
				Details: map[string]any{
					"file_size":   serr.FileSize,
					"max_allowed": serr.MaxAllowed,
					"tier":        serr.Tier,
				},
			},
			HTTPStatusCode: http.StatusRequestEntityTooLarge,
		}
	case errors.As(err, &qerr):
		details := map[string]any{
			"current_usage":    qerr.CurrentUsage,
			"current_usage_mb": domain.BytesToMB(qerr.CurrentUsage),
			"limit":            qerr.Limit,
			"limit_mb":         domain.BytesToMB(qerr.Limit),
			"attempted_size":   qerr.AttemptedSize,
			"available":        qerr.Available(),
			"tier":             qerr.Tier,
		}
		if qerr.SuggestedTier != "" {
			details["suggested_tier"] = qerr.SuggestedTier
		}
		return APIError{
			ErrorResponse: ErrorResponse{
				Code:    "QuotaExceeded",
				Message: qerr.Error(),
				Details: details,
			},
			HTTPStatusCode: http.StatusForbidden,
		}
	case errors.Is(err, domain.ErrInvalidSortField):
		return badRequest("InvalidSortField", "The requested sort field is not supported.")
	case errors.Is(err, domain.ErrUserNotFound):
		return APIError{
			ErrorResponse:  ErrorResponse{Code: "UserNotFound", Message: "The user does not exist."},
			HTTPStatusCode: http.StatusNotFound,
		}
	case errors.Is(err, domain.ErrRecordNotFound):
		return APIError{
			ErrorResponse:  ErrorResponse{Code: "FileNotFound", Message: "The file does not exist."},
			HTTPStatusCode: http.StatusNotFound,
		}
	case errors.Is(err, domain.ErrOwnershipMismatch):
		return APIError{
			ErrorResponse:  ErrorResponse{Code: "AccessDenied", Message: "The file belongs to another user."},
			HTTPStatusCode: http.StatusForbidden,
		}
	case errors.Is(err, domain.ErrAlreadyDeleted):
		return APIError{
			ErrorResponse:  ErrorResponse{Code: "AlreadyDeleted", Message: "The file is already deleted."},
			HTTPStatusCode: http.StatusConflict,
		}
	case errors.Is(err, domain.ErrDuplicatePath):
		return APIError{
			ErrorResponse:  ErrorResponse{Code: "DuplicatePath", Message: "A file with this path already exists."},
			HTTPStatusCode: http.StatusConflict,
		}
	case errors.Is(err, domain.ErrUploadFailed), errors.Is(err, domain.ErrStorageBusy):
		return ErrStorageUnavailable
	default:
		return ErrInternal
	}
}

// writeServiceError maps err and logs anything the caller cannot act on.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	apiErr := mapError(err)
	if apiErr.HTTPStatusCode >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("code", apiErr.Code).Msg("request failed")
	}
	writeError(w, apiErr)
}
