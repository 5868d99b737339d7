package validator

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/orchids/video-gallery/internal/domain"
)

var (
	ErrInvalidTitle          = fmt.Errorf("%w: invalid title", domain.ErrValidation)
	ErrInvalidGalleryID      = fmt.Errorf("%w: invalid gallery id", domain.ErrValidation)
	ErrInvalidCollectionName = fmt.Errorf("%w: invalid collection name", domain.ErrValidation)
	ErrEmptyFile             = fmt.Errorf("%w: file is empty", domain.ErrValidation)
	ErrInvalidPagination     = fmt.Errorf("%w: invalid pagination parameters", domain.ErrValidation)
)

// Gallery ids are caller supplied and end up in URLs and document keys.
var galleryIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

func ValidateGalleryID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: gallery id cannot be empty", ErrInvalidGalleryID)
	}
	if !galleryIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q must be 1-128 letters, digits, '.', '_', ':' or '-'", ErrInvalidGalleryID, id)
	}
	return nil
}

func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalidTitle)
	}
	if len(title) > 255 {
		return fmt.Errorf("%w: title cannot exceed 255 characters", ErrInvalidTitle)
	}
	return nil
}

func ValidateCollectionName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidCollectionName)
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: name cannot exceed 255 characters", ErrInvalidCollectionName)
	}
	return nil
}

// ValidateFileSize rejects empty payloads and payloads over maxSize. A
// maxSize of zero or less disables the upper bound.
func ValidateFileSize(size, maxSize int64) error {
	if size <= 0 {
		return ErrEmptyFile
	}
	if maxSize > 0 && size > maxSize {
		return fmt.Errorf("%w: file is %d bytes, maximum is %d bytes", domain.ErrFileTooLarge, size, maxSize)
	}
	return nil
}

func ValidatePageParams(page, limit int) error {
	if page < 1 {
		return fmt.Errorf("%w: page must be >= 1", ErrInvalidPagination)
	}
	if limit < 1 || limit > 100 {
		return fmt.Errorf("%w: limit must be between 1 and 100", ErrInvalidPagination)
	}
	return nil
}

func SanitizeString(s string) string {
	return strings.TrimSpace(s)
}

// TitleFromFilename is the fallback title for uploads that do not carry one:
// the base name without directories or extension.
func TitleFromFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.TrimSpace(base)
}
