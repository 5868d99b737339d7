package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orchids/video-gallery/internal/domain"
	"github.com/orchids/video-gallery/internal/service"
	"github.com/orchids/video-gallery/pkg/logger"
	"github.com/orchids/video-gallery/pkg/response"
)

const (
	fileField  = "file"
	titleField = "title"

	// Room for the multipart envelope and the title field on top of the file.
	multipartOverhead = 1 << 20
	readBufferSize    = 32 << 10
	maxTitleFieldSize = 4 << 10
)

type GalleryService interface {
	Upload(ctx context.Context, in service.UploadInput) (*domain.Gallery, error)
	CreateCollection(ctx context.Context, name string) (string, error)
	CreateGallery(ctx context.Context, name string) (*domain.Gallery, error)
	GetGallery(ctx context.Context, id string) (*domain.Gallery, error)
	ListGalleries(ctx context.Context, page, limit int) ([]*domain.Gallery, int64, error)
}

type GalleryHandler struct {
	galleryService GalleryService
	maxFileSize    int64
	log            *logger.Logger
}

func NewGalleryHandler(galleryService GalleryService, maxFileSize int64, log *logger.Logger) *GalleryHandler {
	return &GalleryHandler{
		galleryService: galleryService,
		maxFileSize:    maxFileSize,
		log:            log,
	}
}

func (h *GalleryHandler) RegisterRoutes(api *gin.RouterGroup) {
	galleries := api.Group("/galleries")
	{
		galleries.POST("", h.CreateGallery)
		galleries.GET("", h.ListGalleries)
		galleries.GET("/:id", h.GetGallery)
		galleries.POST("/:id/videos", h.UploadVideo)
	}
	api.POST("/collections", h.CreateCollection)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *GalleryHandler) CreateGallery(c *gin.Context) {
	ctx := c.Request.Context()

	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	gallery, err := h.galleryService.CreateGallery(ctx, req.Name)
	if err != nil {
		h.logFailure(ctx, "failed to create gallery", err, nil)
		response.FromError(c, err, "Failed to create gallery")
		return
	}

	response.Success(c, http.StatusCreated, gallery)
}

func (h *GalleryHandler) ListGalleries(c *gin.Context) {
	ctx := c.Request.Context()

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		response.ValidationError(c, "page must be a number")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		response.ValidationError(c, "limit must be a number")
		return
	}

	galleries, total, err := h.galleryService.ListGalleries(ctx, page, limit)
	if err != nil {
		h.logFailure(ctx, "failed to list galleries", err, nil)
		response.FromError(c, err, "Failed to list galleries")
		return
	}

	response.SuccessWithList(c, galleries, response.NewPaginationMeta(total, page, limit))
}

func (h *GalleryHandler) GetGallery(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	gallery, err := h.galleryService.GetGallery(ctx, id)
	if err != nil {
		h.logFailure(ctx, "failed to get gallery", err, map[string]interface{}{
			"gallery_id": id,
		})
		response.FromError(c, err, "Failed to retrieve gallery")
		return
	}

	response.Success(c, http.StatusOK, gallery)
}

func (h *GalleryHandler) CreateCollection(c *gin.Context) {
	ctx := c.Request.Context()

	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	collectionID, err := h.galleryService.CreateCollection(ctx, req.Name)
	if err != nil {
		h.logFailure(ctx, "failed to create collection", err, nil)
		response.FromError(c, err, "Failed to create collection")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"collection_id": collectionID,
	})
}

// UploadVideo streams the multipart body instead of letting the form parser
// spool it to disk, so the size limit is enforced while reading.
func (h *GalleryHandler) UploadVideo(c *gin.Context) {
	ctx := c.Request.Context()
	galleryID := c.Param("id")

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+multipartOverhead)

	form, err := h.readUploadForm(c.Request)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrFileTooLarge, maxErr.Limit)
		}
		h.logFailure(ctx, "failed to read upload", err, map[string]interface{}{
			"gallery_id": galleryID,
		})
		response.FromError(c, err, "Failed to read upload")
		return
	}

	gallery, err := h.galleryService.Upload(ctx, service.UploadInput{
		GalleryID: galleryID,
		Title:     form.title,
		Filename:  form.filename,
		MimeType:  form.mimeType,
		Data:      form.data,
	})
	if err != nil {
		h.logFailure(ctx, "upload failed", err, map[string]interface{}{
			"gallery_id": galleryID,
			"filename":   form.filename,
			"size":       len(form.data),
		})
		response.FromError(c, err, "Failed to upload video")
		return
	}

	response.Success(c, http.StatusCreated, gallery)
}

type uploadForm struct {
	title    string
	filename string
	mimeType string
	data     []byte
}

func (h *GalleryHandler) readUploadForm(r *http.Request) (*uploadForm, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, domain.NewValidationError("expected multipart/form-data body: %v", err)
	}

	form := &uploadForm{}
	seenFile := false

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapReadError("read multipart", err)
		}

		switch part.FormName() {
		case fileField:
			if seenFile {
				part.Close()
				return nil, domain.NewValidationError("only one file may be uploaded per request")
			}
			seenFile = true
			form.filename = part.FileName()
			form.mimeType = partContentType(part)
			form.data, err = readBounded(part, h.maxFileSize)
		case titleField:
			var raw []byte
			raw, err = readBounded(part, maxTitleFieldSize)
			if errors.Is(err, domain.ErrFileTooLarge) {
				err = domain.NewValidationError("title field is too long")
			}
			form.title = string(raw)
		default:
			_, err = io.Copy(io.Discard, part)
		}
		part.Close()

		if err != nil {
			return nil, err
		}
	}

	if !seenFile {
		return nil, domain.NewValidationError("multipart field %q is required", fileField)
	}
	return form, nil
}

// readBounded reads r fully into memory and fails once more than limit bytes
// have been seen.
func readBounded(r io.Reader, limit int64) ([]byte, error) {
	buf := make([]byte, readBufferSize)
	data := make([]byte, 0, readBufferSize)
	var total int64

	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > limit {
				return nil, fmt.Errorf("%w: maximum is %d bytes", domain.ErrFileTooLarge, limit)
			}
			data = append(data, buf[:n]...)
		}
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, wrapReadError("read part", err)
		}
	}
}

func wrapReadError(op string, err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return domain.NewValidationError("%s: %v", op, err)
}

func partContentType(part *multipart.Part) string {
	contentType := strings.TrimSpace(part.Header.Get("Content-Type"))
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mediaType
}

// Client mistakes are expected traffic and stay at warn level.
func (h *GalleryHandler) logFailure(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	status, _ := response.Classify(err)
	if status < http.StatusInternalServerError {
		if fields == nil {
			fields = map[string]interface{}{}
		}
		fields["error"] = err.Error()
		h.log.Warn(ctx, msg, fields)
		return
	}
	h.log.Error(ctx, msg, err, fields)
}
