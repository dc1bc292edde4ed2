package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/pixelplan/internal/app"
	"github.com/templui/pixelplan/internal/config"
	"github.com/templui/pixelplan/internal/testutil"
)

const password = "correct-horse-battery-staple"

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type server struct {
	app     *app.App
	clock   *clockwork.FakeClock
	handler http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		AppName:            "pixelplan",
		AppEnv:             "development",
		AppURL:             "http://pix.test/",
		DBDriver:           "sqlite",
		DBConnection:       filepath.Join(dir, "app.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		AutoMigrate:        true,
		JWTSecret:          "test-secret",
		JWTExpiry:          24 * time.Hour,
		StorageDriver:      "local",
		StoragePath:        filepath.Join(dir, "media"),
		MaxUploadSize:      10 << 20,
		ThumbnailQuality:   80,
		DefaultPlanID:      1,
		LinkMinDuration:    300 * time.Second,
		LinkMaxDuration:    30000 * time.Second,
		LinkRateLimit:      100,
		LinkRateBurst:      100,
		UploadConcurrency:  2,
		UploadQueueTimeout: time.Second,
		CORSAllowedOrigins: []string{"*"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := clockwork.NewFakeClockAt(t0)
	a, err := app.NewWithClock(ctx, cfg, clock)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	return &server{app: a, clock: clock, handler: SetupRoutes(ctx, a)}
}

func (s *server) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) upload(t *testing.T, token, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// register creates an account, moves it to planID and returns its token.
func (s *server) register(t *testing.T, email string, planID int64) string {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Payload struct {
			User  struct{ ID string } `json:"user"`
			Token string              `json:"token"`
		} `json:"payload"`
	}
	decode(t, rec, &resp)

	if planID != 1 {
		require.NoError(t, s.app.PlanService.Assign(context.Background(), resp.Payload.User.ID, planID))
	}
	return resp.Payload.Token
}

type imageJSON struct {
	ID         string `json:"id"`
	Original   string `json:"original"`
	Thumbnails []struct {
		ID   string `json:"id"`
		URL  string `json:"url"`
		Size struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"size"`
	} `json:"thumbnails"`
}

type linkJSON struct {
	ID            string    `json:"id"`
	Duration      int64     `json:"duration"`
	ExpiresAt     time.Time `json:"expires_at"`
	TemporaryLink string    `json:"temporary_link"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func payload[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var env struct {
		Error   string `json:"error"`
		Payload T      `json:"payload"`
	}
	decode(t, rec, &env)
	return env.Payload
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var env struct {
		Error string `json:"error"`
	}
	decode(t, rec, &env)
	return env.Error
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "Ann@Example.com", "password": password})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Result().Cookies(), "auth cookie")

	rec = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "ann@example.com", "password": password})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@example.com", "password": "wrong-password-entirely"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@example.com", "password": password})
	require.Equal(t, http.StatusOK, rec.Code)
	token := payload[struct {
		Token string `json:"token"`
	}](t, rec).Token

	rec = s.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := payload[struct {
		Plan          string `json:"plan"`
		CanCreateLink bool   `json:"can_create_expirable_links"`
	}](t, rec)
	assert.Equal(t, "Basic", me.Plan)
	assert.False(t, me.CanCreateLink)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := newServer(t)

	for _, target := range []string{"/api/me", "/api/plans", "/api/images", "/api/thumbnails", "/api/links"} {
		rec := s.do(t, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		assert.Equal(t, "authentication required", errorMessage(t, rec))
	}

	rec := s.do(t, http.MethodGet, "/api/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadFollowsPlan(t *testing.T) {
	s := newServer(t)
	basic := s.register(t, "basic@example.com", 1)
	premium := s.register(t, "premium@example.com", 2)

	rec := s.upload(t, basic, "cat.png", testutil.PNG(t, 800, 600))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	img := payload[imageJSON](t, rec)
	require.Len(t, img.Thumbnails, 1)
	assert.Equal(t, 200, img.Thumbnails[0].Size.Width)
	assert.Empty(t, img.Original)
	assert.Equal(t, "http://pix.test/api/thumbnails/"+img.Thumbnails[0].ID+"/content", img.Thumbnails[0].URL)

	rec = s.do(t, http.MethodGet, "/api/thumbnails/"+img.Thumbnails[0].ID+"/content", basic, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = s.do(t, http.MethodGet, "/api/images/"+img.ID+"/original", basic, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Other users cannot see it at all
	rec = s.do(t, http.MethodGet, "/api/images/"+img.ID, premium, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/thumbnails/"+img.Thumbnails[0].ID+"/content", premium, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/thumbnails?image="+img.ID, premium, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, payload[[]any](t, rec))

	rec = s.upload(t, premium, "dog.png", testutil.PNG(t, 800, 600))
	require.Equal(t, http.StatusCreated, rec.Code)
	img = payload[imageJSON](t, rec)
	assert.Len(t, img.Thumbnails, 2)
	assert.Equal(t, "http://pix.test/api/images/"+img.ID+"/original", img.Original)

	rec = s.do(t, http.MethodGet, "/api/images/"+img.ID+"/original", premium, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestUploadRejectsNonImage(t *testing.T) {
	s := newServer(t)
	token := s.register(t, "ann@example.com", 1)

	rec := s.upload(t, token, "notes.png", []byte("definitely not a picture"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, errorMessage(t, rec))
}

func TestExpirableLinkLifecycle(t *testing.T) {
	s := newServer(t)
	token := s.register(t, "ent@example.com", 3)
	original := testutil.PNG(t, 640, 480)

	rec := s.upload(t, token, "photo.png", original)
	require.Equal(t, http.StatusCreated, rec.Code)
	img := payload[imageJSON](t, rec)

	rec = s.do(t, http.MethodPost, "/api/links", token, map[string]any{"image": img.ID, "duration": 299})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 2^55+300 seconds wraps to 300s when multiplied into nanoseconds
	for _, seconds := range []int64{1<<55 + 300, -300, 30001} {
		rec = s.do(t, http.MethodPost, "/api/links", token, map[string]any{"image": img.ID, "duration": seconds})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%d", seconds)
	}
	assert.Equal(t, 0, testutil.Count(t, s.app.DB, "expirable_links", ""))

	rec = s.do(t, http.MethodPost, "/api/links", token, map[string]any{"image": img.ID, "duration": 300})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	link := payload[linkJSON](t, rec)
	assert.Equal(t, int64(300), link.Duration)
	assert.Equal(t, "http://pix.test/l/"+link.ID, link.TemporaryLink)
	assert.True(t, link.ExpiresAt.Equal(t0.Add(300*time.Second)))

	linkPath := strings.TrimPrefix(link.TemporaryLink, "http://pix.test")

	rec = s.do(t, http.MethodGet, linkPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, original, rec.Body.Bytes())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	s.clock.Advance(299 * time.Second)
	rec = s.do(t, http.MethodGet, linkPath, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/links", token, nil)
	assert.Len(t, payload[[]linkJSON](t, rec), 1)

	s.clock.Advance(2 * time.Second)
	rec = s.do(t, http.MethodGet, linkPath, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/links", token, nil)
	assert.Empty(t, payload[[]linkJSON](t, rec))
}

func TestLinkCreationNeedsCapability(t *testing.T) {
	s := newServer(t)
	basic := s.register(t, "basic@example.com", 1)
	ent := s.register(t, "ent@example.com", 3)

	rec := s.upload(t, basic, "a.png", testutil.PNG(t, 300, 300))
	require.Equal(t, http.StatusCreated, rec.Code)
	img := payload[imageJSON](t, rec)

	rec = s.do(t, http.MethodPost, "/api/links", basic, map[string]any{"image": img.ID, "duration": 600})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/links", ent, map[string]any{"image": img.ID, "duration": 600})
	assert.Equal(t, http.StatusForbidden, rec.Code, "not the owner")

	rec = s.do(t, http.MethodPost, "/api/links", ent, map[string]any{"image": img.ID, "duration": 600, "extra": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteImageKillsLinks(t *testing.T) {
	s := newServer(t)
	token := s.register(t, "ent@example.com", 3)

	rec := s.upload(t, token, "a.png", testutil.PNG(t, 300, 300))
	require.Equal(t, http.StatusCreated, rec.Code)
	img := payload[imageJSON](t, rec)

	rec = s.do(t, http.MethodPost, "/api/links", token, map[string]any{"image": img.ID, "duration": 600})
	require.Equal(t, http.StatusCreated, rec.Code)
	link := payload[linkJSON](t, rec)

	rec = s.do(t, http.MethodDelete, "/api/images/"+img.ID, token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/images/"+img.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/l/"+link.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnsureThumbnailsAfterUpgrade(t *testing.T) {
	s := newServer(t)
	token := s.register(t, "ann@example.com", 1)

	rec := s.upload(t, token, "a.png", testutil.PNG(t, 900, 900))
	require.Equal(t, http.StatusCreated, rec.Code)
	img := payload[imageJSON](t, rec)
	require.Len(t, img.Thumbnails, 1)

	rec = s.do(t, http.MethodGet, "/api/me", token, nil)
	me := payload[struct {
		User struct{ ID string } `json:"user"`
	}](t, rec)
	require.NoError(t, s.app.PlanService.Assign(context.Background(), me.User.ID, 2))

	rec = s.do(t, http.MethodPost, "/api/images/"+img.ID+"/thumbnails", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := payload[[]struct {
		Size struct{ Width int } `json:"size"`
	}](t, rec)
	require.Len(t, created, 1)
	assert.Equal(t, 400, created[0].Size.Width)

	rec = s.do(t, http.MethodGet, "/api/thumbnails?image="+img.ID, token, nil)
	assert.Len(t, payload[[]any](t, rec), 2)
}

func TestPublicEndpoints(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodGet, "/api/plans", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := s.register(t, "ann@example.com", 1)
	rec = s.do(t, http.MethodGet, "/api/plans", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	plans := payload[[]struct {
		Name string `json:"name"`
	}](t, rec)
	assert.Len(t, plans, 3)

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/images", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	out := httptest.NewRecorder()
	s.handler.ServeHTTP(out, req)
	assert.Equal(t, "*", out.Header().Get("Access-Control-Allow-Origin"))
}
