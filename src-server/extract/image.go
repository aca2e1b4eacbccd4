package extract

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const DefaultMaxImageBytes int64 = 20 << 20

var supportedImageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// IsSupportedImage reports whether the file extension is one we accept.
func IsSupportedImage(name string) bool {
	_, ok := supportedImageTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}

// LoadImage reads an image from disk. maxBytes <= 0 means
// DefaultMaxImageBytes.
func LoadImage(path string, maxBytes int64) (Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	name := filepath.Base(path)
	if filepath.Ext(name) != "" && !IsSupportedImage(name) {
		return Image{}, &ImageError{Name: name, Reason: "unsupported image type " + filepath.Ext(name)}
	}
	info, err := os.Stat(path)
	if err != nil {
		return Image{}, &ImageError{Name: name, Reason: "can't read file", Err: err}
	}
	if info.IsDir() {
		return Image{}, &ImageError{Name: name, Reason: "is a directory"}
	}
	if info.Size() > maxBytes {
		return Image{}, &ImageError{Name: name, Reason: fmt.Sprintf("larger than %d bytes", maxBytes)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, &ImageError{Name: name, Reason: "can't read file", Err: err}
	}
	return NewImage(name, data, maxBytes)
}

// NewImage checks an in-memory image. The mime type comes from the file
// extension, or from the content when the name has none.
func NewImage(name string, data []byte, maxBytes int64) (Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if len(data) == 0 {
		return Image{}, &ImageError{Name: name, Reason: "empty image"}
	}
	if int64(len(data)) > maxBytes {
		return Image{}, &ImageError{Name: name, Reason: fmt.Sprintf("larger than %d bytes", maxBytes)}
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		mimeType, ok := supportedImageTypes[ext]
		if !ok {
			return Image{}, &ImageError{Name: name, Reason: "unsupported image type " + ext}
		}
		return Image{Name: name, MimeType: mimeType, Data: data}, nil
	}

	sniffed := http.DetectContentType(data)
	for _, mimeType := range supportedImageTypes {
		if sniffed == mimeType {
			return Image{Name: name, MimeType: mimeType, Data: data}, nil
		}
	}
	return Image{}, &ImageError{Name: name, Reason: "unsupported content type " + sniffed}
}
