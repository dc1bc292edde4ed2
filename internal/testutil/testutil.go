// Package testutil provides database and image fixtures for package tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/templui/pixelplan/internal/db"
	"github.com/templui/pixelplan/internal/model"
)

// NewDB opens a migrated SQLite database in a temp dir that is closed with the test.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := db.Init(context.Background(), "sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	err = db.RunMigrations(context.Background(), conn.DB, "sqlite")
	require.NoError(t, err)
	return conn
}

// CreateUser inserts a user row and returns its id.
func CreateUser(t *testing.T, conn *sqlx.DB, email string) string {
	t.Helper()

	id := uuid.New().String()
	_, err := conn.Exec(`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		id, email, "x", time.Now().UTC())
	require.NoError(t, err)
	return id
}

// CreatePlan inserts a plan with the given sizes, creating sizes as needed.
func CreatePlan(t *testing.T, conn *sqlx.DB, plan model.AccountPlan) {
	t.Helper()

	_, err := conn.Exec(`INSERT INTO account_plans (id, name, have_access_to_original_link, can_create_expirable_links) VALUES ($1, $2, $3, $4)`,
		plan.ID, plan.Name, plan.CanViewOriginal, plan.CanCreateExpirableLinks)
	require.NoError(t, err)

	for _, size := range plan.Sizes {
		id := size.Descriptor()
		_, err = conn.Exec(`INSERT INTO thumbnail_sizes (id, width, height) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			id, size.Width, size.Height)
		require.NoError(t, err)
		_, err = conn.Exec(`INSERT INTO account_plan_sizes (plan_id, size_id) VALUES ($1, $2)`, plan.ID, id)
		require.NoError(t, err)
	}
}

// AssignPlan binds a user to a plan directly.
func AssignPlan(t *testing.T, conn *sqlx.DB, userID string, planID int64) {
	t.Helper()

	now := time.Now().UTC()
	_, err := conn.Exec(`INSERT INTO account_plan_assignments (user_id, plan_id, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
		userID, planID, now)
	require.NoError(t, err)
}

// Count returns SELECT COUNT(*) for the given table and optional WHERE clause.
func Count(t *testing.T, conn *sqlx.DB, table, where string, args ...any) int {
	t.Helper()

	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}

	var n int
	require.NoError(t, conn.Get(&n, query, args...))
	return n
}

// PNG encodes a solid-colour w x h image.
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// PNGHeader returns a PNG signature and IHDR chunk declaring w x h RGBA pixels
// with no image data, as a tiny file claiming huge dimensions would.
func PNGHeader(t *testing.T, w, h uint32) []byte {
	t.Helper()

	ihdr := make([]byte, 4, 17)
	copy(ihdr, "IHDR")
	ihdr = binary.BigEndian.AppendUint32(ihdr, w)
	ihdr = binary.BigEndian.AppendUint32(ihdr, h)
	ihdr = append(ihdr, 8, 6, 0, 0, 0) // 8-bit RGBA, no interlace

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	buf.Write(binary.BigEndian.AppendUint32(nil, 13))
	buf.Write(ihdr)
	buf.Write(binary.BigEndian.AppendUint32(nil, crc32.ChecksumIEEE(ihdr)))
	return buf.Bytes()
}
