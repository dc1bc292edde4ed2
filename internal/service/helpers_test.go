package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/templui/pixelplan/internal/model"
	"github.com/templui/pixelplan/internal/repository"
	"github.com/templui/pixelplan/internal/storage"
	"github.com/templui/pixelplan/internal/testutil"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db      *sqlx.DB
	clock   *clockwork.FakeClock
	storage storage.Storage

	images      repository.ImageRepository
	thumbRepo   repository.ThumbnailRepository
	linkRepo    repository.LinkRepository
	plansRepo   repository.PlanRepository
	assignments repository.AssignmentRepository
	users       repository.UserRepository

	entitlements *EntitlementService
	access       *AccessService
	thumbnails   *ThumbnailService
	imageService *ImageService
	links        *LinkService
	plans        *PlanService
	auth         *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn := testutil.NewDB(t)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		db:          conn,
		clock:       clockwork.NewFakeClockAt(t0),
		storage:     store,
		images:      repository.NewImageRepository(conn),
		thumbRepo:   repository.NewThumbnailRepository(conn),
		linkRepo:    repository.NewLinkRepository(conn),
		plansRepo:   repository.NewPlanRepository(conn),
		assignments: repository.NewAssignmentRepository(conn),
		users:       repository.NewUserRepository(conn),
	}

	env.entitlements = NewEntitlementService(env.plansRepo, env.assignments, env.clock, 1)
	env.access = NewAccessService(env.entitlements)
	env.thumbnails = env.thumbnailServiceWith(store)
	env.imageService = NewImageService(env.images, env.thumbRepo, env.thumbnails, env.access, store, env.clock, 10<<20)
	env.links = NewLinkService(env.linkRepo, env.images, env.access, store, env.clock, 300*time.Second, 30000*time.Second)
	env.plans = NewPlanService(env.plansRepo, env.assignments, env.users, env.clock, 1)
	env.auth = NewAuthService(env.users, env.clock, "test-secret", time.Hour, false)
	return env
}

func (e *testEnv) thumbnailServiceWith(store storage.Storage) *ThumbnailService {
	return NewThumbnailService(e.thumbRepo, e.images, e.entitlements, store, e.clock, 80)
}

// userOnPlan creates a user already assigned to planID.
func (e *testEnv) userOnPlan(t *testing.T, email string, planID int64) string {
	t.Helper()

	id := testutil.CreateUser(t, e.db, email)
	testutil.AssignPlan(t, e.db, id, planID)
	return id
}

// storeImage writes bytes and an image row without generating thumbnails.
func (e *testEnv) storeImage(t *testing.T, uploaderID string, data []byte) *model.Image {
	t.Helper()

	id := uuid.New().String()
	image := &model.Image{
		ID:          id,
		UploaderID:  uploaderID,
		StoragePath: path.Join("images", uploaderID, id+".png"),
		ContentType: "image/png",
		Size:        int64(len(data)),
		CreatedAt:   e.clock.Now().UTC(),
	}
	require.NoError(t, e.storage.Save(context.Background(), image.StoragePath, bytes.NewReader(data)))
	require.NoError(t, e.images.Create(context.Background(), image))
	return image
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()

	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

// flakyStorage fails Save for keys containing failOn, and every Open when
// openErr is set.
type flakyStorage struct {
	storage.Storage
	failOn  string
	openErr error
}

func (f *flakyStorage) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.Storage.Open(ctx, p)
}

func (f *flakyStorage) Save(ctx context.Context, p string, r io.Reader) error {
	if strings.Contains(p, f.failOn) {
		return errors.New("disk full")
	}
	return f.Storage.Save(ctx, p, r)
}
