package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/templui/pixelplan/internal/model"
)

var (
	ErrThumbnailNotFound = errors.New("thumbnail not found")
	ErrThumbnailExists   = errors.New("thumbnail already exists for image and size")
)

const thumbnailSelect = `SELECT t.id, t.image_id, t.size_id, t.storage_path, t.created_at, s.width, s.height
	FROM thumbnails t
	JOIN thumbnail_sizes s ON s.id = t.size_id`

type ThumbnailRepository interface {
	// ExistingSizeIDs is a single-query snapshot of the sizes already generated for an image.
	ExistingSizeIDs(ctx context.Context, imageID string) ([]string, error)
	Create(ctx context.Context, thumbnail *model.Thumbnail) error
	ByID(ctx context.Context, id string) (*model.Thumbnail, error)
	ByImage(ctx context.Context, imageID string) ([]*model.Thumbnail, error)
	ByUploader(ctx context.Context, uploaderID string) ([]*model.Thumbnail, error)
}

type thumbnailRepository struct {
	db *sqlx.DB
}

func NewThumbnailRepository(db *sqlx.DB) ThumbnailRepository {
	return &thumbnailRepository{db: db}
}

func (r *thumbnailRepository) ExistingSizeIDs(ctx context.Context, imageID string) ([]string, error) {
	ids := []string{}
	err := r.db.SelectContext(ctx, &ids, `SELECT size_id FROM thumbnails WHERE image_id = $1`, imageID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *thumbnailRepository) Create(ctx context.Context, thumbnail *model.Thumbnail) error {
	query := `INSERT INTO thumbnails (id, image_id, size_id, storage_path, created_at) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		thumbnail.ID,
		thumbnail.ImageID,
		thumbnail.SizeID,
		thumbnail.StoragePath,
		thumbnail.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrThumbnailExists
	}
	return err
}

func (r *thumbnailRepository) ByID(ctx context.Context, id string) (*model.Thumbnail, error) {
	thumbnail := &model.Thumbnail{}

	err := r.db.GetContext(ctx, thumbnail, thumbnailSelect+` WHERE t.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThumbnailNotFound
	}
	if err != nil {
		return nil, err
	}
	return thumbnail, nil
}

func (r *thumbnailRepository) ByImage(ctx context.Context, imageID string) ([]*model.Thumbnail, error) {
	thumbnails := []*model.Thumbnail{}
	query := thumbnailSelect + ` WHERE t.image_id = $1 ORDER BY s.width, s.height`

	err := r.db.SelectContext(ctx, &thumbnails, query, imageID)
	if err != nil {
		return nil, err
	}
	return thumbnails, nil
}

func (r *thumbnailRepository) ByUploader(ctx context.Context, uploaderID string) ([]*model.Thumbnail, error) {
	thumbnails := []*model.Thumbnail{}
	query := thumbnailSelect + `
	JOIN images i ON i.id = t.image_id
	WHERE i.uploader_id = $1
	ORDER BY i.created_at DESC, t.image_id, s.width, s.height`

	err := r.db.SelectContext(ctx, &thumbnails, query, uploaderID)
	if err != nil {
		return nil, err
	}
	return thumbnails, nil
}
