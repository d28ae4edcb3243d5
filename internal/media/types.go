package media

import (
	"path"
	"strings"
)

// Kind classifies a browse entry.
type Kind string

// Entry kinds.
const (
	KindFolder Kind = "folder"
	KindImage  Kind = "image"
	KindVideo  Kind = "video"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".mov": true, ".avi": true, ".mkv": true,
}

// Classify returns the media kind of a file name by extension. ok is false
// for anything outside the allow-list.
func Classify(name string) (kind Kind, ok bool) {
	ext := strings.ToLower(path.Ext(name))
	switch {
	case imageExtensions[ext]:
		return KindImage, true
	case videoExtensions[ext]:
		return KindVideo, true
	default:
		return "", false
	}
}

// Entry is one folder or media file in a listing.
type Entry struct {
	Name         string `json:"name"`
	Type         Kind   `json:"type"`
	RelativePath string `json:"relativePath"`
}

// Listing is the content of one directory.
type Listing struct {
	CurrentPath string  `json:"currentPath"`
	Folders     []Entry `json:"folders"`
	Files       []Entry `json:"files"`
}
