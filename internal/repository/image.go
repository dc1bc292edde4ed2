package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/templui/pixelplan/internal/model"
)

var (
	ErrImageNotFound = errors.New("image not found")
)

const imageColumns = `id, uploader_id, storage_path, original_name, content_type, size, created_at`

type ImageRepository interface {
	Create(ctx context.Context, image *model.Image) error
	ByID(ctx context.Context, id string) (*model.Image, error)
	ByUploader(ctx context.Context, uploaderID string) ([]*model.Image, error)
	All(ctx context.Context) ([]*model.Image, error)
	// Delete removes the image with its thumbnails and links in one
	// transaction and returns the storage paths that are no longer referenced.
	Delete(ctx context.Context, id string) ([]string, error)
}

type imageRepository struct {
	db *sqlx.DB
}

func NewImageRepository(db *sqlx.DB) ImageRepository {
	return &imageRepository{db: db}
}

func (r *imageRepository) Create(ctx context.Context, image *model.Image) error {
	query := `INSERT INTO images (` + imageColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		image.ID,
		image.UploaderID,
		image.StoragePath,
		image.OriginalName,
		image.ContentType,
		image.Size,
		image.CreatedAt,
	)
	return err
}

func (r *imageRepository) ByID(ctx context.Context, id string) (*model.Image, error) {
	image := &model.Image{}
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1`

	err := r.db.GetContext(ctx, image, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, err
	}
	return image, nil
}

func (r *imageRepository) ByUploader(ctx context.Context, uploaderID string) ([]*model.Image, error) {
	images := []*model.Image{}
	query := `SELECT ` + imageColumns + ` FROM images WHERE uploader_id = $1 ORDER BY created_at DESC, id`

	err := r.db.SelectContext(ctx, &images, query, uploaderID)
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *imageRepository) All(ctx context.Context) ([]*model.Image, error) {
	images := []*model.Image{}
	query := `SELECT ` + imageColumns + ` FROM images ORDER BY created_at, id`

	err := r.db.SelectContext(ctx, &images, query)
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *imageRepository) Delete(ctx context.Context, id string) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var imagePath string
	err = tx.GetContext(ctx, &imagePath, `SELECT storage_path FROM images WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, err
	}

	var paths []string
	err = tx.SelectContext(ctx, &paths, `SELECT storage_path FROM thumbnails WHERE image_id = $1`, id)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM thumbnails WHERE image_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete thumbnails: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM expirable_links WHERE image_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete links: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete image: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return append(paths, imagePath), nil
}
