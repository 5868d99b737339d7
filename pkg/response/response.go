package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orchids/video-gallery/internal/domain"
)

type Response struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PaginationMeta struct {
	Total       int64 `json:"total"`
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

type ListResponse struct {
	Success    bool           `json:"success"`
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

func NewPaginationMeta(total int64, page, limit int) PaginationMeta {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return PaginationMeta{
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}

func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

func SuccessWithList(c *gin.Context, data interface{}, meta PaginationMeta) {
	c.JSON(http.StatusOK, ListResponse{
		Success:    true,
		Data:       data,
		Pagination: meta,
	})
}

func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "VALIDATION_ERROR", message)
}

func ServiceUnavailable(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message)
}

// Classify maps a domain error to its HTTP status and error code. Order
// matters: an expired signature is also a transfer failure.
func Classify(err error) (int, string) {
	var remoteErr *domain.RemoteServiceError

	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"
	case errors.Is(err, domain.ErrGalleryNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrGalleryExists):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrExpiredSignature):
		return http.StatusGatewayTimeout, "SIGNATURE_EXPIRED"
	case errors.Is(err, domain.ErrTransferFailed):
		return http.StatusBadGateway, "TRANSFER_FAILED"
	case errors.As(err, &remoteErr):
		return http.StatusBadGateway, "REMOTE_SERVICE_ERROR"
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusInternalServerError, "CONFIGURATION_ERROR"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// FromError writes the envelope for err. Internal errors get a generic
// message so storage details do not leak to clients.
func FromError(c *gin.Context, err error, fallback string) {
	status, code := Classify(err)
	message := err.Error()
	if code == "INTERNAL_ERROR" || code == "CONFIGURATION_ERROR" {
		message = fallback
	}
	Error(c, status, code, message)
}
