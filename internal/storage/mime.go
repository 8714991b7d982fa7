package storage

import (
	"mime"
	"strings"
)

// ExtensionForMIME maps the media types the pipeline produces to file extensions.
func ExtensionForMIME(contentType string) string {
	base := normalizeMIME(contentType)
	switch base {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ""
	}
}

// MIMEForExtension is the inverse of ExtensionForMIME for locators read back from disk.
func MIMEForExtension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "application/octet-stream"
	}
	switch strings.ToLower(name[idx:]) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// CategoryForMIME groups artifacts on disk by media family.
func CategoryForMIME(contentType string) string {
	base := normalizeMIME(contentType)
	switch {
	case strings.HasPrefix(base, "video/"):
		return "videos"
	case strings.HasPrefix(base, "audio/"):
		return "audio"
	case strings.HasPrefix(base, "image/"):
		return "images"
	default:
		return "misc"
	}
}

func normalizeMIME(contentType string) string {
	base, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return base
}
