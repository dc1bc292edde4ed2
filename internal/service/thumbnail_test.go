package service

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/pixelplan/internal/codec"
	"github.com/templui/pixelplan/internal/model"
	"github.com/templui/pixelplan/internal/testutil"
)

func smallSizesPlan(t *testing.T, env *testEnv) int64 {
	t.Helper()

	testutil.CreatePlan(t, env.db, model.AccountPlan{
		ID:    20,
		Name:  "Small",
		Sizes: []model.ThumbnailSize{{Width: 100, Height: 100}, {Width: 50, Height: 50}},
	})
	return 20
}

func TestEnsureThumbnailsWithZeroSizePlan(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreatePlan(t, env.db, model.AccountPlan{ID: 30, Name: "Empty"})
	userID := env.userOnPlan(t, "u@example.com", 30)
	image := env.storeImage(t, userID, testutil.PNG(t, 64, 64))

	created, err := env.thumbnails.EnsureThumbnails(context.Background(), image)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Equal(t, 0, testutil.Count(t, env.db, "thumbnails", "image_id = $1", image.ID))
}

func TestEnsureThumbnailsCreatesMissingThenNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.userOnPlan(t, "u@example.com", smallSizesPlan(t, env))
	image := env.storeImage(t, userID, testutil.PNG(t, 400, 200))

	created, err := env.thumbnails.EnsureThumbnails(ctx, image)
	require.NoError(t, err)
	require.Len(t, created, 2)

	before, err := env.thumbRepo.ByImage(ctx, image.ID)
	require.NoError(t, err)

	again, err := env.thumbnails.EnsureThumbnails(ctx, image)
	require.NoError(t, err)
	assert.Empty(t, again)

	after, err := env.thumbRepo.ByImage(ctx, image.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	for _, thumb := range created {
		rc, err := env.storage.Open(ctx, thumb.StoragePath)
		require.NoError(t, err)
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(readAll(t, rc)))
		require.NoError(t, err)
		assert.LessOrEqual(t, cfg.Width, thumb.Width)
		assert.LessOrEqual(t, cfg.Height, thumb.Height)
		assert.Equal(t, cfg.Width, 2*cfg.Height, "aspect ratio kept for %s", thumb.SizeID)
	}
}

func TestEnsureThumbnailsConcurrentCallsRecordEachSizeOnce(t *testing.T) {
	env := newTestEnv(t)
	userID := env.userOnPlan(t, "u@example.com", smallSizesPlan(t, env))
	image := env.storeImage(t, userID, testutil.PNG(t, 120, 120))

	const callers = 6
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := env.thumbnails.EnsureThumbnails(context.Background(), image)
			assert.NoError(t, err)
			mu.Lock()
			total += len(created)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, total)
	assert.Equal(t, 1, testutil.Count(t, env.db, "thumbnails", "image_id = $1 AND size_id = '100x100'", image.ID))
	assert.Equal(t, 1, testutil.Count(t, env.db, "thumbnails", "image_id = $1 AND size_id = '50x50'", image.ID))
}

func TestEnsureThumbnailsDecodeFailureKeepsImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.userOnPlan(t, "u@example.com", 2)
	image := env.storeImage(t, userID, []byte("\x89PNG\r\n\x1a\ncorrupt"))

	created, err := env.thumbnails.EnsureThumbnails(ctx, image)
	assert.Empty(t, created)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, image.ID, decodeErr.ImageID)

	_, err = env.images.ByID(ctx, image.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, testutil.Count(t, env.db, "thumbnails", "image_id = $1", image.ID))
}

func TestEnsureThumbnailsRejectsOversizedDimensions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.userOnPlan(t, "u@example.com", 2)
	image := env.storeImage(t, userID, testutil.PNGHeader(t, 50000, 50000))

	created, err := env.thumbnails.EnsureThumbnails(ctx, image)
	assert.Empty(t, created)
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, codec.ErrTooManyPixels)

	_, err = env.images.ByID(ctx, image.ID)
	assert.NoError(t, err)
}

func TestEnsureThumbnailsOpenFailureIsNotDecodeError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.userOnPlan(t, "u@example.com", 2)
	image := env.storeImage(t, userID, testutil.PNG(t, 200, 200))

	broken := env.thumbnailServiceWith(&flakyStorage{Storage: env.storage, openErr: errors.New("bucket unreachable")})
	_, err := broken.EnsureThumbnails(ctx, image)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "bucket unreachable")
}

func TestEnsureThumbnailsStorageFailureSkipsOnlyThatSize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.userOnPlan(t, "u@example.com", smallSizesPlan(t, env))
	image := env.storeImage(t, userID, testutil.PNG(t, 200, 200))

	flaky := env.thumbnailServiceWith(&flakyStorage{Storage: env.storage, failOn: "_50x50_"})
	created, err := flaky.EnsureThumbnails(ctx, image)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "50x50")
	require.Len(t, created, 1)
	assert.Equal(t, "100x100", created[0].SizeID)

	retried, err := env.thumbnails.EnsureThumbnails(ctx, image)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, "50x50", retried[0].SizeID)
	assert.Equal(t, 2, testutil.Count(t, env.db, "thumbnails", "image_id = $1", image.ID))
}

func TestEnsureThumbnailsStopsOnCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	userID := env.userOnPlan(t, "u@example.com", smallSizesPlan(t, env))
	image := env.storeImage(t, userID, testutil.PNG(t, 64, 64))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	created, err := env.thumbnails.EnsureThumbnails(ctx, image)
	assert.Error(t, err)
	assert.Empty(t, created)
	assert.Equal(t, 0, testutil.Count(t, env.db, "thumbnails", "image_id = $1", image.ID))
}

func TestThumbnailsForUserScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.userOnPlan(t, "alice@example.com", 1)
	bob := env.userOnPlan(t, "bob@example.com", 1)
	aliceImage := env.storeImage(t, alice, testutil.PNG(t, 300, 300))
	bobImage := env.storeImage(t, bob, testutil.PNG(t, 300, 300))

	_, err := env.thumbnails.EnsureThumbnails(ctx, aliceImage)
	require.NoError(t, err)
	_, err = env.thumbnails.EnsureThumbnails(ctx, bobImage)
	require.NoError(t, err)

	all, err := env.thumbnails.ForUser(ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, aliceImage.ID, all[0].ImageID)

	filtered, err := env.thumbnails.ForUser(ctx, alice, bobImage.ID)
	require.NoError(t, err)
	assert.Empty(t, filtered)

	rc, thumb, err := env.thumbnails.Content(ctx, alice, all[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, readAll(t, rc))
	assert.Equal(t, "200x200", thumb.SizeID)

	bobThumbs, err := env.thumbnails.ForUser(ctx, bob, bobImage.ID)
	require.NoError(t, err)
	require.Len(t, bobThumbs, 1)
	_, _, err = env.thumbnails.Content(ctx, alice, bobThumbs[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
