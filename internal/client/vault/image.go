package vault

import (
	"net/http"
	"time"
)

// Image is a vault entry as recorded in the manifest.
type Image struct {
	ID            string    `json:"id"`
	FileName      string    `json:"fileName"`
	AddedAt       time.Time `json:"addedAt"`
	EncryptedPath string    `json:"encryptedPath"`
	ThumbnailPath string    `json:"thumbnailPath"`
}

func extensionFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
