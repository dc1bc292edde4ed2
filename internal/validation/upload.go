package validation

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrFileEmpty        = errors.New("file is empty")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

// ImageTypes maps sniffed content types to the extension used for storage.
var ImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// SniffImage detects the content type from the first 512 bytes and rewinds r.
// The declared filename is ignored; only magic numbers count.
func SniffImage(r io.ReadSeeker, size, maxSize int64) (contentType, ext string, err error) {
	if size == 0 {
		return "", "", ErrFileEmpty
	}
	if maxSize > 0 && size > maxSize {
		return "", "", fmt.Errorf("%w: maximum size is %d MB", ErrFileTooLarge, maxSize/(1<<20))
	}

	buffer := make([]byte, 512)
	n, err := io.ReadFull(r, buffer)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", "", fmt.Errorf("failed to read file: %w", err)
	}

	_, err = r.Seek(0, io.SeekStart)
	if err != nil {
		return "", "", fmt.Errorf("failed to reset file pointer: %w", err)
	}

	contentType = http.DetectContentType(buffer[:n])
	ext, ok := ImageTypes[contentType]
	if !ok {
		return "", "", fmt.Errorf("%w (detected: %s)", ErrUnsupportedImage, contentType)
	}
	return contentType, ext, nil
}

// SafeFilename keeps the base name of an uploaded file for display purposes.
func SafeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
