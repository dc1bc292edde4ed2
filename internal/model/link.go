package model

import (
	"time"
)

// ExpirableLink grants anonymous access to an original until CreatedAt+Duration.
type ExpirableLink struct {
	ID              string    `db:"id"`
	ImageID         string    `db:"image_id"`
	CreatorID       string    `db:"creator_id"`
	CreatedAt       time.Time `db:"created_at"`
	DurationSeconds int64     `db:"duration_seconds"`
}

func (l *ExpirableLink) Duration() time.Duration {
	return time.Duration(l.DurationSeconds) * time.Second
}

func (l *ExpirableLink) ExpiresAt() time.Time {
	return l.CreatedAt.Add(l.Duration())
}

// IsLiveAt reports whether now is strictly before the expiration instant.
func (l *ExpirableLink) IsLiveAt(now time.Time) bool {
	return now.Before(l.ExpiresAt())
}
