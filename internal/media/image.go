package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"net/http"
	"strings"

	"pivot/internal/models"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DefaultMaxUploadMB caps an image upload when no limit is configured.
const DefaultMaxUploadMB = 5

// PostImagePrefix is the key prefix of every post image.
const PostImagePrefix = "posts/"

// Image is a validated upload ready to be stored.
type Image struct {
	ContentType string
	Ext         string
	Width       int
	Height      int
	Data        []byte
}

// DetectImage checks that data is a GIF, PNG, JPEG or WebP image no larger
// than maxBytes. Failures are validation errors.
func DetectImage(data []byte, maxBytes int64) (*Image, error) {
	if len(data) == 0 {
		return nil, models.NewValidationError("Uploaded image is empty")
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("Image too large (max %dMB)", maxBytes/(1024*1024)))
	}

	// DetectContentType knows webp only as a RIFF container, so the sniff is
	// a first filter and the decoder has the last word.
	sniffed := http.DetectContentType(data)
	if !strings.HasPrefix(sniffed, "image/") && sniffed != "application/octet-stream" {
		return nil, models.NewValidationError("Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, models.NewValidationError("Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}
	contentType, ext := formatInfo(format)
	if contentType == "" {
		return nil, models.NewValidationError("Unsupported image format")
	}
	return &Image{
		ContentType: contentType,
		Ext:         ext,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Data:        data,
	}, nil
}

func formatInfo(format string) (contentType, ext string) {
	switch strings.ToLower(format) {
	case "jpeg":
		return "image/jpeg", ".jpg"
	case "png":
		return "image/png", ".png"
	case "gif":
		return "image/gif", ".gif"
	case "webp":
		return "image/webp", ".webp"
	default:
		return "", ""
	}
}

// NewPostImageKey returns a fresh object key such as posts/<uuid>.gif.
func NewPostImageKey(ext string) string {
	return PostImagePrefix + uuid.NewString() + ext
}

// IsPostImageKey reports whether key names a post image. Used to refuse
// arbitrary keys on the public media route.
func IsPostImageKey(key string) bool {
	return strings.HasPrefix(key, PostImagePrefix) &&
		!strings.Contains(key, "..") &&
		len(key) > len(PostImagePrefix)
}
