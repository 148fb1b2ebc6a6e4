package model

import (
	"path"
	"strings"
)

type MediaKind string

const (
	MediaKindImage   MediaKind = "image"
	MediaKindVideo   MediaKind = "video"
	MediaKindUnknown MediaKind = "unknown"
)

// MediaItem is one media file referenced by a media manifest
type MediaItem struct {
	URL         string `json:"url"`
	UniqueName  string `json:"unique_name"`
	Filename    string `json:"filename"`
	MediaType   string `json:"media_type"`
	ContentType string `json:"content_type"`
	Source      string `json:"source"`
	Date        string `json:"date"`
	Size        int64  `json:"size"`
}

// MediaStats counts the media known to a media lookup
type MediaStats struct {
	TotalImages int `json:"total_images"`
	TotalVideos int `json:"total_videos"`
}

var (
	imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
	videoExts = []string{".mp4", ".mov", ".webm", ".mkv"}
)

// Kind classifies the item by content type, falling back to the file extension
func (m *MediaItem) Kind() MediaKind {
	switch {
	case strings.HasPrefix(m.ContentType, "image/"):
		return MediaKindImage
	case strings.HasPrefix(m.ContentType, "video/"):
		return MediaKindVideo
	}

	name := m.Filename
	if name == "" {
		name = m.UniqueName
	}
	ext := strings.ToLower(path.Ext(name))
	for _, e := range imageExts {
		if ext == e {
			return MediaKindImage
		}
	}
	for _, e := range videoExts {
		if ext == e {
			return MediaKindVideo
		}
	}
	return MediaKindUnknown
}
