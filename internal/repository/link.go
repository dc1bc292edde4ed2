package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/templui/pixelplan/internal/model"
)

var (
	ErrLinkNotFound = errors.New("expirable link not found")
)

type LinkRepository interface {
	Create(ctx context.Context, link *model.ExpirableLink) error
	ByID(ctx context.Context, id string) (*model.ExpirableLink, error)
	// ByUploader returns every link on the uploader's images, expired or not, newest first.
	ByUploader(ctx context.Context, uploaderID string) ([]*model.ExpirableLink, error)
}

type linkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *model.ExpirableLink) error {
	query := `INSERT INTO expirable_links (id, image_id, creator_id, created_at, duration_seconds) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		link.ID,
		link.ImageID,
		link.CreatorID,
		link.CreatedAt,
		link.DurationSeconds,
	)
	return err
}

func (r *linkRepository) ByID(ctx context.Context, id string) (*model.ExpirableLink, error) {
	link := &model.ExpirableLink{}
	query := `SELECT id, image_id, creator_id, created_at, duration_seconds FROM expirable_links WHERE id = $1`

	err := r.db.GetContext(ctx, link, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *linkRepository) ByUploader(ctx context.Context, uploaderID string) ([]*model.ExpirableLink, error) {
	links := []*model.ExpirableLink{}
	query := `SELECT l.id, l.image_id, l.creator_id, l.created_at, l.duration_seconds
		FROM expirable_links l
		JOIN images i ON i.id = l.image_id
		WHERE i.uploader_id = $1
		ORDER BY l.created_at DESC, l.id`

	err := r.db.SelectContext(ctx, &links, query, uploaderID)
	if err != nil {
		return nil, err
	}
	return links, nil
}
