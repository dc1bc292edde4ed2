package model

import (
	"fmt"
	"time"
)

// ThumbnailSize is a global bounding box shared across plans.
type ThumbnailSize struct {
	ID     string `db:"id" json:"id"`
	Width  int    `db:"width" json:"width"`
	Height int    `db:"height" json:"height"`
}

// SizeID is the natural key of a bounding box, "<w>x<h>".
func SizeID(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

func (s ThumbnailSize) Descriptor() string {
	return SizeID(s.Width, s.Height)
}

func (s ThumbnailSize) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

type Thumbnail struct {
	ID          string    `db:"id"`
	ImageID     string    `db:"image_id"`
	SizeID      string    `db:"size_id"`
	StoragePath string    `db:"storage_path"`
	CreatedAt   time.Time `db:"created_at"`

	// Joined from thumbnail_sizes
	Width  int `db:"width"`
	Height int `db:"height"`
}

func (t *Thumbnail) Size() ThumbnailSize {
	return ThumbnailSize{ID: t.SizeID, Width: t.Width, Height: t.Height}
}
