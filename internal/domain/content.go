package domain

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ContentCategory groups content types for tier rules and folder layout.
type ContentCategory string

const (
	CategoryImage    ContentCategory = "image"
	CategoryDocument ContentCategory = "document"
	CategoryVideo    ContentCategory = "video"
)

// DefaultContentType is used when nothing more specific is known.
const DefaultContentType = "application/octet-stream"

// maxSanitizedFilenameLength bounds the filename component of object keys.
const maxSanitizedFilenameLength = 128

// Folder returns the plural folder name used in object keys.
func (c ContentCategory) Folder() string {
	return string(c) + "s"
}

// Valid reports whether c is a known category.
func (c ContentCategory) Valid() bool {
	switch c {
	case CategoryImage, CategoryDocument, CategoryVideo:
		return true
	}
	return false
}

var mimeCategories = map[string]ContentCategory{
	// Images
	"image/jpeg":    CategoryImage,
	"image/jpg":     CategoryImage,
	"image/png":     CategoryImage,
	"image/gif":     CategoryImage,
	"image/webp":    CategoryImage,
	"image/svg+xml": CategoryImage,
	"image/bmp":     CategoryImage,
	"image/tiff":    CategoryImage,
	"image/heic":    CategoryImage,

	// Documents
	"application/pdf":    CategoryDocument,
	"application/msword": CategoryDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": CategoryDocument,
	"application/vnd.ms-excel": CategoryDocument,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         CategoryDocument,
	"application/vnd.ms-powerpoint":                                             CategoryDocument,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": CategoryDocument,
	"text/plain":       CategoryDocument,
	"text/csv":         CategoryDocument,
	"text/markdown":    CategoryDocument,
	"text/html":        CategoryDocument,
	"application/json": CategoryDocument,
	"application/rtf":  CategoryDocument,

	// Videos
	"video/mp4":        CategoryVideo,
	"video/mpeg":       CategoryVideo,
	"video/quicktime":  CategoryVideo,
	"video/x-msvideo":  CategoryVideo,
	"video/webm":       CategoryVideo,
	"video/x-matroska": CategoryVideo,
}

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".heic": "image/heic",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".md":   "text/markdown",
	".html": "text/html",
	".htm":  "text/html",
	".json": "application/json",
	".rtf":  "application/rtf",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// NormalizeContentType lowercases a MIME type and strips parameters.
func NormalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// GetContentCategory maps a MIME type to its category.
// Unmapped types classify as documents.
func GetContentCategory(contentType string) ContentCategory {
	if c, ok := mimeCategories[NormalizeContentType(contentType)]; ok {
		return c
	}
	return CategoryDocument
}

// GetContentTypeFromFilename guesses a MIME type from the file extension.
func GetContentTypeFromFilename(filename string) string {
	if ct, ok := extensionTypes[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return DefaultContentType
}

// DetectContentType sniffs the MIME type from the leading bytes of data.
func DetectContentType(data []byte) string {
	return NormalizeContentType(mimetype.Detect(data).String())
}

// IsGenericContentType reports whether ct carries no useful type information.
func IsGenericContentType(ct string) bool {
	switch NormalizeContentType(ct) {
	case "", DefaultContentType, "binary/octet-stream":
		return true
	}
	return false
}

// SanitizeFilename reduces name to [A-Za-z0-9._-], dropping any directory part.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if out == "" || strings.Trim(out, "_") == "" {
		return "file"
	}

	if len(out) > maxSanitizedFilenameLength {
		ext := path.Ext(out)
		if len(ext) >= maxSanitizedFilenameLength/2 {
			ext = ""
		}
		out = out[:maxSanitizedFilenameLength-len(ext)] + ext
	}
	return out
}

// GenerateFilePath builds the canonical object key:
// users/{user_id}/{category}s/{YYYYMMDD_HHMMSS}_{uuid8}_{sanitized_filename}
func GenerateFilePath(userID, filename, contentType string) string {
	return generateFilePathAt(userID, filename, contentType, time.Now().UTC())
}

func generateFilePathAt(userID, filename, contentType string, now time.Time) string {
	category := GetContentCategory(contentType)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("users/%s/%s/%s_%s_%s",
		userID,
		category.Folder(),
		now.Format("20060102_150405"),
		suffix,
		SanitizeFilename(filename),
	)
}
