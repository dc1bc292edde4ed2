package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/templui/pixelplan/internal/metrics"
	"github.com/templui/pixelplan/internal/model"
	"github.com/templui/pixelplan/internal/repository"
	"github.com/templui/pixelplan/internal/storage"
)

const (
	DefaultLinkMinDuration = 300 * time.Second
	DefaultLinkMaxDuration = 30000 * time.Second
)

// LinkService issues expirable links and decides their liveness.
type LinkService struct {
	linkRepository  repository.LinkRepository
	imageRepository repository.ImageRepository
	accessService   *AccessService
	storage         storage.Storage
	clock           clockwork.Clock
	minDuration     time.Duration
	maxDuration     time.Duration
}

func NewLinkService(
	linkRepository repository.LinkRepository,
	imageRepository repository.ImageRepository,
	accessService *AccessService,
	storage storage.Storage,
	clock clockwork.Clock,
	minDuration time.Duration,
	maxDuration time.Duration,
) *LinkService {
	if minDuration <= 0 {
		minDuration = DefaultLinkMinDuration
	}
	if maxDuration <= 0 {
		maxDuration = DefaultLinkMaxDuration
	}
	return &LinkService{
		linkRepository:  linkRepository,
		imageRepository: imageRepository,
		accessService:   accessService,
		storage:         storage,
		clock:           clock,
		minDuration:     minDuration,
		maxDuration:     maxDuration,
	}
}

// Create issues a link on one of the requester's images.
func (s *LinkService) Create(ctx context.Context, requesterID, imageID string, duration time.Duration) (*model.ExpirableLink, error) {
	image, err := s.imageRepository.ByID(ctx, imageID)
	if errors.Is(err, repository.ErrImageNotFound) {
		return nil, &ValidationError{Field: "image", Reason: "unknown image"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	_, err = s.accessService.Check(ctx, ActionCreateLink, requesterID, image)
	if err != nil {
		return nil, err
	}

	if duration < s.minDuration || duration > s.maxDuration || duration%time.Second != 0 {
		return nil, &ValidationError{
			Field:  "duration",
			Reason: fmt.Sprintf("must be a whole number of seconds between %d and %d", int64(s.minDuration.Seconds()), int64(s.maxDuration.Seconds())),
		}
	}

	link := &model.ExpirableLink{
		ID:              uuid.New().String(),
		ImageID:         image.ID,
		CreatorID:       requesterID,
		CreatedAt:       s.clock.Now().UTC(),
		DurationSeconds: int64(duration / time.Second),
	}

	err = s.linkRepository.Create(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	metrics.LinksCreated.Inc()
	slog.Info("expirable link created", "link_id", link.ID, "image_id", image.ID, "user_id", requesterID, "duration", duration)
	return link, nil
}

// ResolveLive returns the link if it exists and has not expired. Absent and
// expired links yield the same NotFoundError.
func (s *LinkService) ResolveLive(ctx context.Context, id string) (*model.ExpirableLink, error) {
	link, err := s.linkRepository.ByID(ctx, id)
	if errors.Is(err, repository.ErrLinkNotFound) {
		metrics.LinkResolutions.WithLabelValues("not_found").Inc()
		return nil, &NotFoundError{Resource: "link"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	if !link.IsLiveAt(s.clock.Now()) {
		metrics.LinkResolutions.WithLabelValues("not_found").Inc()
		return nil, &NotFoundError{Resource: "link"}
	}

	metrics.LinkResolutions.WithLabelValues("live").Inc()
	return link, nil
}

// Content resolves a live link and opens the original it points to.
func (s *LinkService) Content(ctx context.Context, id string) (io.ReadCloser, *model.Image, error) {
	link, err := s.ResolveLive(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	image, err := s.imageRepository.ByID(ctx, link.ImageID)
	if errors.Is(err, repository.ErrImageNotFound) {
		return nil, nil, &NotFoundError{Resource: "link"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get image: %w", err)
	}

	_, err = s.accessService.Check(ctx, ActionFetchLinkContent, "", image)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.storage.Open(ctx, image.StoragePath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil, &NotFoundError{Resource: "link"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open original: %w", err)
	}
	return rc, image, nil
}

// LinkDuration converts a whole number of seconds from a request into a
// duration. Values that would overflow time.Duration are rejected.
func LinkDuration(seconds int64) (time.Duration, error) {
	if seconds <= 0 || seconds > int64(math.MaxInt64/time.Second) {
		return 0, &ValidationError{Field: "duration", Reason: fmt.Sprintf("%d seconds is out of range", seconds)}
	}
	return time.Duration(seconds) * time.Second, nil
}

// RenderURL builds the public URL of a link. It carries no signature or expiry.
func RenderURL(link *model.ExpirableLink, baseURI string) string {
	return strings.TrimRight(baseURI, "/") + "/l/" + link.ID
}

// ListLiveForUser returns live links on the user's images, newest first.
func (s *LinkService) ListLiveForUser(ctx context.Context, userID string) ([]*model.ExpirableLink, error) {
	links, err := s.linkRepository.ByUploader(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	now := s.clock.Now()
	live := make([]*model.ExpirableLink, 0, len(links))
	for _, link := range links {
		if link.IsLiveAt(now) {
			live = append(live, link)
		}
	}
	return live, nil
}
