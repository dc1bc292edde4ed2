package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/pixelplan/internal/model"
	"github.com/templui/pixelplan/internal/testutil"
)

func TestCreateLinkDurationBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.userOnPlan(t, "ent@example.com", 3)
	image := env.storeImage(t, userID, testutil.PNG(t, 10, 10))

	cases := []struct {
		seconds int64
		ok      bool
	}{
		{299, false},
		{300, true},
		{30000, true},
		{30001, false},
	}
	for _, tc := range cases {
		link, err := env.links.Create(ctx, userID, image.ID, time.Duration(tc.seconds)*time.Second)
		if tc.ok {
			require.NoError(t, err, "duration %d", tc.seconds)
			assert.Equal(t, tc.seconds, link.DurationSeconds)
			assert.True(t, link.CreatedAt.Equal(t0))
			continue
		}

		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "duration %d: %v", tc.seconds, err)
		assert.Equal(t, "duration", verr.Field)
	}
	assert.Equal(t, 2, testutil.Count(t, env.db, "expirable_links", ""))
}

func TestResolveLiveAroundExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.userOnPlan(t, "ent@example.com", 3)
	image := env.storeImage(t, userID, testutil.PNG(t, 10, 10))

	link, err := env.links.Create(ctx, userID, image.ID, 300*time.Second)
	require.NoError(t, err)

	env.clock.Advance(299 * time.Second)
	live, err := env.links.ResolveLive(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, link.ID, live.ID)

	env.clock.Advance(time.Second)
	_, err = env.links.ResolveLive(ctx, link.ID)
	assert.ErrorIs(t, err, ErrNotFound, "expires exactly at created+duration")

	env.clock.Advance(time.Second)
	_, expiredErr := env.links.ResolveLive(ctx, link.ID)
	_, absentErr := env.links.ResolveLive(ctx, "does-not-exist")
	assert.ErrorIs(t, expiredErr, ErrNotFound)
	assert.Equal(t, absentErr.Error(), expiredErr.Error())

	assert.Equal(t, 1, testutil.Count(t, env.db, "expirable_links", "id = $1", link.ID), "expired rows are kept")
}

func TestCreateLinkOnForeignImageIsDenied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.userOnPlan(t, "alice@example.com", 1)
	bob := env.userOnPlan(t, "bob@example.com", 3)
	image := env.storeImage(t, alice, testutil.PNG(t, 10, 10))

	_, err := env.links.Create(ctx, bob, image.ID, 300*time.Second)
	assert.ErrorIs(t, err, ErrPermission)

	// Ownership is checked before the duration.
	_, err = env.links.Create(ctx, bob, image.ID, time.Second)
	assert.ErrorIs(t, err, ErrPermission)

	assert.Equal(t, 0, testutil.Count(t, env.db, "expirable_links", ""))
}

func TestCreateLinkRequiresPlanCapability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.userOnPlan(t, "premium@example.com", 2)
	image := env.storeImage(t, userID, testutil.PNG(t, 10, 10))

	_, err := env.links.Create(ctx, userID, image.ID, 300*time.Second)
	var perr *PermissionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ActionCreateLink, perr.Action)
}

func TestCreateLinkOnUnknownImage(t *testing.T) {
	env := newTestEnv(t)
	userID := env.userOnPlan(t, "ent@example.com", 3)

	_, err := env.links.Create(context.Background(), userID, "missing", 300*time.Second)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "image", verr.Field)
}

func TestListLiveForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.userOnPlan(t, "alice@example.com", 3)
	bob := env.userOnPlan(t, "bob@example.com", 3)
	image := env.storeImage(t, alice, testutil.PNG(t, 10, 10))
	bobImage := env.storeImage(t, bob, testutil.PNG(t, 10, 10))

	short, err := env.links.Create(ctx, alice, image.ID, 300*time.Second)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	long, err := env.links.Create(ctx, alice, image.ID, 3000*time.Second)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	newest, err := env.links.Create(ctx, alice, image.ID, 3000*time.Second)
	require.NoError(t, err)
	_, err = env.links.Create(ctx, bob, bobImage.ID, 3000*time.Second)
	require.NoError(t, err)

	live, err := env.links.ListLiveForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, live, 3)
	assert.Equal(t, []string{newest.ID, long.ID, short.ID}, []string{live[0].ID, live[1].ID, live[2].ID})

	env.clock.Advance(5 * time.Minute)
	live, err = env.links.ListLiveForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, newest.ID, live[0].ID)
}

func TestLinkContentIgnoresOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.userOnPlan(t, "ent@example.com", 3)
	data := testutil.PNG(t, 10, 10)
	image := env.storeImage(t, userID, data)

	link, err := env.links.Create(ctx, userID, image.ID, 300*time.Second)
	require.NoError(t, err)

	rc, got, err := env.links.Content(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, data, readAll(t, rc))
	assert.Equal(t, "image/png", got.ContentType)
}

func TestRenderURL(t *testing.T) {
	link := &model.ExpirableLink{ID: "abc"}
	assert.Equal(t, "https://img.example.com/l/abc", RenderURL(link, "https://img.example.com/"))
	assert.Equal(t, "https://img.example.com/l/abc", RenderURL(link, "https://img.example.com"))
}

func TestLinkDurationRejectsOverflow(t *testing.T) {
	d, err := LinkDuration(300)
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, d)

	for _, seconds := range []int64{0, -300, 1<<55 + 300, math.MaxInt64} {
		_, err := LinkDuration(seconds)
		assert.ErrorIs(t, err, ErrValidation, "%d", seconds)
	}
}
