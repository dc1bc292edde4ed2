package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	goimage "image"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/templui/pixelplan/internal/codec"
	"github.com/templui/pixelplan/internal/metrics"
	"github.com/templui/pixelplan/internal/model"
	"github.com/templui/pixelplan/internal/repository"
	"github.com/templui/pixelplan/internal/storage"
)

type ThumbnailService struct {
	thumbnailRepository repository.ThumbnailRepository
	imageRepository     repository.ImageRepository
	entitlementService  *EntitlementService
	storage             storage.Storage
	clock               clockwork.Clock
	quality             int
}

func NewThumbnailService(
	thumbnailRepository repository.ThumbnailRepository,
	imageRepository repository.ImageRepository,
	entitlementService *EntitlementService,
	storage storage.Storage,
	clock clockwork.Clock,
	quality int,
) *ThumbnailService {
	return &ThumbnailService{
		thumbnailRepository: thumbnailRepository,
		imageRepository:     imageRepository,
		entitlementService:  entitlementService,
		storage:             storage,
		clock:               clock,
		quality:             quality,
	}
}

// EnsureThumbnails creates the thumbnails the uploader's plan requires and the
// image does not have yet, and returns only the ones it created.
//
// The source is decoded once. A size that fails to save or insert is skipped
// and reported in the joined error while the other sizes proceed. Losing an
// insert race to a concurrent call is not an error: the duplicate bytes are
// removed and the size is left out of the result.
func (s *ThumbnailService) EnsureThumbnails(ctx context.Context, image *model.Image) ([]*model.Thumbnail, error) {
	ent, err := s.entitlementService.Resolve(ctx, image.UploaderID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entitlement: %w", err)
	}

	existing, err := s.thumbnailRepository.ExistingSizeIDs(ctx, image.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing thumbnails: %w", err)
	}

	missing := ent.MissingSizes(existing)
	if len(missing) == 0 {
		return []*model.Thumbnail{}, nil
	}

	timer := prometheus.NewTimer(metrics.ThumbnailGenerationSeconds)
	defer timer.ObserveDuration()

	src, err := s.decodeSource(ctx, image)
	if errors.Is(err, ErrDecode) {
		metrics.ThumbnailFailures.WithLabelValues("decode").Inc()
		return nil, err
	}
	if err != nil {
		metrics.ThumbnailFailures.WithLabelValues("storage").Inc()
		return nil, err
	}

	base := strings.TrimSuffix(image.StoragePath, path.Ext(image.StoragePath)) + ".jpg"

	created := []*model.Thumbnail{}
	var errs []error
	for _, size := range missing {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, ctxErr)
			break
		}

		thumbnail, err := s.generate(ctx, image, src, base, size)
		if err != nil {
			slog.Error("thumbnail generation failed", "image_id", image.ID, "size", size.ID, "error", err)
			errs = append(errs, fmt.Errorf("size %s: %w", size.ID, err))
			continue
		}
		if thumbnail != nil {
			created = append(created, thumbnail)
		}
	}

	if len(created) > 0 {
		slog.Info("thumbnails generated", "image_id", image.ID, "count", len(created))
	}
	return created, errors.Join(errs...)
}

func (s *ThumbnailService) decodeSource(ctx context.Context, image *model.Image) (goimage.Image, error) {
	rc, err := s.storage.Open(ctx, image.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open original: %w", err)
	}
	defer rc.Close()

	img, err := codec.Decode(rc)
	if err != nil {
		return nil, &DecodeError{ImageID: image.ID, Err: err}
	}
	return img, nil
}

// generate returns a nil thumbnail when another call recorded the size first.
func (s *ThumbnailService) generate(ctx context.Context, image *model.Image, src goimage.Image, base string, size model.ThumbnailSize) (*model.Thumbnail, error) {
	data, err := codec.Encode(codec.ResizeToFit(src, size.Width, size.Height), s.quality)
	if err != nil {
		metrics.ThumbnailFailures.WithLabelValues("encode").Inc()
		return nil, err
	}

	name := s.storage.UniqueName(base, size.Descriptor())
	err = s.storage.Save(ctx, name, bytes.NewReader(data))
	if err != nil {
		metrics.ThumbnailFailures.WithLabelValues("storage").Inc()
		return nil, fmt.Errorf("failed to save thumbnail: %w", err)
	}

	thumbnail := &model.Thumbnail{
		ID:          uuid.New().String(),
		ImageID:     image.ID,
		SizeID:      size.ID,
		StoragePath: name,
		CreatedAt:   s.clock.Now().UTC(),
		Width:       size.Width,
		Height:      size.Height,
	}

	err = s.thumbnailRepository.Create(ctx, thumbnail)
	if err != nil {
		s.discard(name)
		if errors.Is(err, repository.ErrThumbnailExists) {
			metrics.ThumbnailFailures.WithLabelValues("race").Inc()
			slog.Debug("thumbnail already recorded by concurrent call", "image_id", image.ID, "size", size.ID)
			return nil, nil
		}
		metrics.ThumbnailFailures.WithLabelValues("insert").Inc()
		return nil, fmt.Errorf("failed to record thumbnail: %w", err)
	}

	metrics.ThumbnailsGenerated.WithLabelValues(size.ID).Inc()
	return thumbnail, nil
}

// discard removes unreferenced bytes; it outlives the request context.
func (s *ThumbnailService) discard(name string) {
	err := s.storage.Delete(context.Background(), name)
	if err != nil {
		slog.Error("failed to delete orphaned thumbnail", "path", name, "error", err)
	}
}

// ForUser lists thumbnails of the user's images. A non-empty imageID narrows
// the result to that image and yields nothing for images the user does not own.
func (s *ThumbnailService) ForUser(ctx context.Context, userID, imageID string) ([]*model.Thumbnail, error) {
	err := decide(ActionListThumbnails, nil, userID, nil)
	if err != nil {
		return nil, err
	}

	if imageID == "" {
		thumbnails, err := s.thumbnailRepository.ByUploader(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to list thumbnails: %w", err)
		}
		return thumbnails, nil
	}

	image, err := s.imageRepository.ByID(ctx, imageID)
	if errors.Is(err, repository.ErrImageNotFound) {
		return []*model.Thumbnail{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	if decide(ActionListThumbnails, nil, userID, image) != nil {
		return []*model.Thumbnail{}, nil
	}

	thumbnails, err := s.thumbnailRepository.ByImage(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thumbnails: %w", err)
	}
	return thumbnails, nil
}

// Content opens a thumbnail owned by the user. Foreign thumbnails are reported as not found.
func (s *ThumbnailService) Content(ctx context.Context, userID, thumbnailID string) (io.ReadCloser, *model.Thumbnail, error) {
	thumbnail, err := s.thumbnailRepository.ByID(ctx, thumbnailID)
	if errors.Is(err, repository.ErrThumbnailNotFound) {
		return nil, nil, &NotFoundError{Resource: "thumbnail"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get thumbnail: %w", err)
	}

	image, err := s.imageRepository.ByID(ctx, thumbnail.ImageID)
	if errors.Is(err, repository.ErrImageNotFound) || (err == nil && !image.OwnedBy(userID)) {
		return nil, nil, &NotFoundError{Resource: "thumbnail"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get image: %w", err)
	}

	rc, err := s.storage.Open(ctx, thumbnail.StoragePath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil, &NotFoundError{Resource: "thumbnail"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open thumbnail: %w", err)
	}
	return rc, thumbnail, nil
}
