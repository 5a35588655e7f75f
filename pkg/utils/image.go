package utils

import (
	"net/http"
	"path"
	"strings"
)

// ImageExtension picks a file extension from the content type, falling back
// to the extension of filename and then ".jpg".
func ImageExtension(contentType, filename string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		return ext
	}
	return ".jpg"
}

// SniffImageType returns the content type of data when the server did not send one.
func SniffImageType(contentType string, data []byte) string {
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	return http.DetectContentType(data)
}
