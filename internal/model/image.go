package model

import (
	"time"
)

// Image is an uploaded original. Rows are never updated.
type Image struct {
	ID           string    `db:"id"`
	UploaderID   string    `db:"uploader_id"`
	StoragePath  string    `db:"storage_path"`
	OriginalName string    `db:"original_name"`
	ContentType  string    `db:"content_type"`
	Size         int64     `db:"size"`
	CreatedAt    time.Time `db:"created_at"`
}

func (i *Image) OwnedBy(userID string) bool {
	return i != nil && userID != "" && i.UploaderID == userID
}
