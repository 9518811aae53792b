package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// FolderThumbnails is the key prefix for event thumbnails.
const FolderThumbnails = "thumbnails"

// AllowedThumbnailTypes maps accepted image MIME types to file extensions.
var AllowedThumbnailTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

var allowedThumbnailExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ObjectStore stores event thumbnails. Keys are relative paths such as thumbnails/{uuid}.png.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// ThumbnailContentType resolves the MIME type of an upload from its header or extension.
// It returns "" when the file is not an accepted image.
func ThumbnailContentType(contentType, filename string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if _, ok := AllowedThumbnailTypes[ct]; ok {
		if ct == "image/jpg" {
			return "image/jpeg"
		}
		return ct
	}
	if ct, ok := allowedThumbnailExtensions[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return ""
}

// ThumbnailKey returns a fresh object key for a thumbnail of the given content type.
func ThumbnailKey(contentType string) string {
	return path.Join(FolderThumbnails, uuid.NewString()+AllowedThumbnailTypes[contentType])
}
