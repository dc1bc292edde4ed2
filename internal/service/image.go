package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/templui/pixelplan/internal/model"
	"github.com/templui/pixelplan/internal/repository"
	"github.com/templui/pixelplan/internal/storage"
	"github.com/templui/pixelplan/internal/validation"
)

// ImageView is an image as its owner sees it.
type ImageView struct {
	Image           *model.Image
	Thumbnails      []*model.Thumbnail
	CanViewOriginal bool
}

type ImageService struct {
	imageRepository     repository.ImageRepository
	thumbnailRepository repository.ThumbnailRepository
	thumbnailService    *ThumbnailService
	accessService       *AccessService
	storage             storage.Storage
	clock               clockwork.Clock
	maxUploadSize       int64
}

func NewImageService(
	imageRepository repository.ImageRepository,
	thumbnailRepository repository.ThumbnailRepository,
	thumbnailService *ThumbnailService,
	accessService *AccessService,
	storage storage.Storage,
	clock clockwork.Clock,
	maxUploadSize int64,
) *ImageService {
	return &ImageService{
		imageRepository:     imageRepository,
		thumbnailRepository: thumbnailRepository,
		thumbnailService:    thumbnailService,
		accessService:       accessService,
		storage:             storage,
		clock:               clock,
		maxUploadSize:       maxUploadSize,
	}
}

// Upload stores the original, records the image and generates its thumbnails.
// Thumbnail failures are logged and never undo the upload; POST
// /api/images/{id}/thumbnails retries them.
func (s *ImageService) Upload(ctx context.Context, userID string, file io.ReadSeeker, size int64, filename string) (*ImageView, error) {
	contentType, ext, err := validation.SniffImage(file, size, s.maxUploadSize)
	if err != nil {
		return nil, &ValidationError{Field: "image", Reason: err.Error()}
	}

	id := uuid.New().String()
	storagePath := path.Join("images", userID, id+ext)

	err = s.storage.Save(ctx, storagePath, file)
	if err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}

	image := &model.Image{
		ID:           id,
		UploaderID:   userID,
		StoragePath:  storagePath,
		OriginalName: validation.SafeFilename(filename),
		ContentType:  contentType,
		Size:         size,
		CreatedAt:    s.clock.Now().UTC(),
	}

	err = s.imageRepository.Create(ctx, image)
	if err != nil {
		// If DB insert fails, try to cleanup the uploaded file
		delErr := s.storage.Delete(context.Background(), storagePath)
		if delErr != nil {
			slog.Error("failed to delete image from storage during cleanup", "error", delErr, "path", storagePath)
		}
		return nil, fmt.Errorf("failed to create image record: %w", err)
	}

	slog.Info("image uploaded", "image_id", image.ID, "user_id", userID, "size", size)

	_, err = s.thumbnailService.EnsureThumbnails(ctx, image)
	var decodeErr *DecodeError
	switch {
	case errors.As(err, &decodeErr):
		slog.Warn("image stored without thumbnails", "image_id", image.ID, "error", err)
	case err != nil:
		slog.Error("thumbnail generation incomplete", "image_id", image.ID, "error", err)
	}

	return s.view(ctx, userID, image)
}

// ByID returns one of the user's images. Foreign images are reported as not found.
func (s *ImageService) ByID(ctx context.Context, userID, imageID string) (*ImageView, error) {
	image, err := s.owned(ctx, userID, imageID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, userID, image)
}

func (s *ImageService) List(ctx context.Context, userID string) ([]*ImageView, error) {
	ent, err := s.accessService.Check(ctx, ActionListImages, userID, nil)
	if err != nil {
		return nil, err
	}

	images, err := s.imageRepository.ByUploader(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	thumbnails, err := s.thumbnailRepository.ByUploader(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thumbnails: %w", err)
	}

	byImage := make(map[string][]*model.Thumbnail, len(images))
	for _, t := range thumbnails {
		byImage[t.ImageID] = append(byImage[t.ImageID], t)
	}

	views := make([]*ImageView, 0, len(images))
	for _, image := range images {
		thumbs := byImage[image.ID]
		if thumbs == nil {
			thumbs = []*model.Thumbnail{}
		}
		views = append(views, &ImageView{
			Image:           image,
			Thumbnails:      thumbs,
			CanViewOriginal: ent.CanViewOriginal,
		})
	}
	return views, nil
}

// EnsureThumbnails is the explicit retry for an image whose generation failed.
func (s *ImageService) EnsureThumbnails(ctx context.Context, userID, imageID string) ([]*model.Thumbnail, error) {
	image, err := s.owned(ctx, userID, imageID)
	if err != nil {
		return nil, err
	}
	return s.thumbnailService.EnsureThumbnails(ctx, image)
}

// Original opens the original bytes when the owner's plan allows it.
func (s *ImageService) Original(ctx context.Context, userID, imageID string) (io.ReadCloser, *model.Image, error) {
	image, err := s.owned(ctx, userID, imageID)
	if err != nil {
		return nil, nil, err
	}

	_, err = s.accessService.Check(ctx, ActionViewOriginal, userID, image)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.storage.Open(ctx, image.StoragePath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil, &NotFoundError{Resource: "image"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open original: %w", err)
	}
	return rc, image, nil
}

// Delete removes the image, its thumbnails and its links. Stored bytes are
// removed after the rows; failures there only leave unreferenced objects.
func (s *ImageService) Delete(ctx context.Context, userID, imageID string) error {
	_, err := s.owned(ctx, userID, imageID)
	if err != nil {
		return err
	}

	paths, err := s.imageRepository.Delete(ctx, imageID)
	if errors.Is(err, repository.ErrImageNotFound) {
		return &NotFoundError{Resource: "image"}
	}
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}

	for _, p := range paths {
		delErr := s.storage.Delete(ctx, p)
		if delErr != nil {
			slog.Error("failed to delete file from storage", "error", delErr, "path", p)
		}
	}

	slog.Info("image deleted", "image_id", imageID, "user_id", userID, "objects", len(paths))
	return nil
}

func (s *ImageService) owned(ctx context.Context, userID, imageID string) (*model.Image, error) {
	image, err := s.imageRepository.ByID(ctx, imageID)
	if errors.Is(err, repository.ErrImageNotFound) {
		return nil, &NotFoundError{Resource: "image"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	if !image.OwnedBy(userID) {
		return nil, &NotFoundError{Resource: "image"}
	}
	return image, nil
}

func (s *ImageService) view(ctx context.Context, userID string, image *model.Image) (*ImageView, error) {
	ent, err := s.accessService.Check(ctx, ActionListImages, userID, image)
	if err != nil {
		return nil, err
	}

	thumbnails, err := s.thumbnailRepository.ByImage(ctx, image.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thumbnails: %w", err)
	}

	return &ImageView{
		Image:           image,
		Thumbnails:      thumbnails,
		CanViewOriginal: ent.CanViewOriginal,
	}, nil
}
