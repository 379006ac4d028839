package feed_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felnan/snapfeed/internal/domain"
	"github.com/felnan/snapfeed/internal/feed"
	"github.com/felnan/snapfeed/internal/gateway"
)

type staticCreds struct{}

func (staticCreds) Get(_ context.Context) (string, bool, error) {
	return "test-token", true, nil
}

type fixture struct {
	store *feed.Store
	mux   *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	//nolint:exhaustruct
	gw := gateway.New(gateway.Config{BaseURL: server.URL}, staticCreds{}, server.Client())

	return &fixture{
		store: feed.NewStore(gw),
		mux:   mux,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fixture) servePosts(posts ...domain.Post) {
	f.mux.HandleFunc("GET /api/posts/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, posts)
	})
}

//nolint:exhaustruct
func somePost(id int64, likeCount int) domain.Post {
	return domain.Post{
		ID:           id,
		Author:       domain.UserRef{ID: 1, Username: "kofi"},
		Images:       []string{"https://cdn.example.com/p.jpg"},
		Caption:      "caption",
		CreatedAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		LikeCount:    likeCount,
		CommentCount: 0,
	}
}

func TestRefresh_ReplacesPostsAndWipesOverlay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.servePosts(somePost(5, 10), somePost(4, 2))

	require.NoError(t, f.store.Refresh(ctx))

	snap := f.store.Feed().Get()
	require.Len(t, snap.Posts, 2)
	assert.Equal(t, int64(5), snap.Posts[0].ID, "server order is kept")
	assert.False(t, snap.Loading)
	assert.NoError(t, snap.Err)

	// Seed overlay state, then verify the refresh reconciliation wipes it.
	require.NoError(t, f.store.ToggleBookmark(5))
	require.True(t, f.store.Overlay().Get().Bookmarked(5))

	require.NoError(t, f.store.Refresh(ctx))
	overlay := f.store.Overlay().Get()
	assert.False(t, overlay.Bookmarked(5))
	assert.Empty(t, overlay.LikedByMe)
	assert.Empty(t, overlay.DisplayedLikeCount)

	// Idempotent against an unchanged listing.
	before := f.store.Feed().Get().Posts
	require.NoError(t, f.store.Refresh(ctx))
	assert.Equal(t, before, f.store.Feed().Get().Posts)
}

func TestRefresh_DedupesByID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.servePosts(somePost(5, 10), somePost(5, 11), somePost(4, 2))

	require.NoError(t, f.store.Refresh(context.Background()))

	snap := f.store.Feed().Get()
	require.Len(t, snap.Posts, 2)
	assert.Equal(t, 10, snap.Posts[0].LikeCount, "first occurrence wins")
}

func TestRefresh_FailureKeepsCachedPosts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	failing := atomic.Bool{}
	f.mux.HandleFunc("GET /api/posts/", func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})

			return
		}

		writeJSON(w, http.StatusOK, []domain.Post{somePost(5, 10)})
	})

	require.NoError(t, f.store.Refresh(ctx))
	failing.Store(true)

	require.Error(t, f.store.Refresh(ctx))

	snap := f.store.Feed().Get()
	assert.Len(t, snap.Posts, 1, "cached posts stay visible on refresh failure")
	assert.False(t, snap.Loading)
	assert.Error(t, snap.Err)
}

func TestRefresh_StaleResponseDiscarded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	var (
		calls   atomic.Int32
		started = make(chan struct{})
		release = make(chan struct{})
	)

	f.mux.HandleFunc("GET /api/posts/", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			writeJSON(w, http.StatusOK, []domain.Post{somePost(1, 1)})

			return
		}

		writeJSON(w, http.StatusOK, []domain.Post{somePost(2, 2)})
	})

	firstDone := make(chan error, 1)

	go func() { firstDone <- f.store.Refresh(ctx) }()

	<-started

	// The second refresh is dispatched later but resolves first.
	require.NoError(t, f.store.Refresh(ctx))
	close(release)
	require.NoError(t, <-firstDone)

	snap := f.store.Feed().Get()
	require.Len(t, snap.Posts, 1)
	assert.Equal(t, int64(2), snap.Posts[0].ID,
		"the older response must not clobber the newer one")
}

func TestCreate_PrependsConfirmedPost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.servePosts(somePost(5, 10))
	require.NoError(t, f.store.Refresh(ctx))

	f.mux.HandleFunc("POST /api/posts/", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		created := somePost(99, 0)
		created.Caption = r.FormValue("caption")
		writeJSON(w, http.StatusCreated, created)
	})

	created, err := f.store.Create(ctx, "fresh",
		gateway.File{Field: "image", Name: "photo.jpg", Data: []byte{0xFF, 0xD8, 0x01}})
	require.NoError(t, err)
	assert.Equal(t, int64(99), created.ID)
	assert.Equal(t, "fresh", created.Caption)

	snap := f.store.Feed().Get()
	require.Len(t, snap.Posts, 2)
	assert.Equal(t, int64(99), snap.Posts[0].ID, "newest first")
	assert.Equal(t, int64(5), snap.Posts[1].ID)
}

func TestCreate_FailureAddsNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.servePosts(somePost(5, 10))
	require.NoError(t, f.store.Refresh(ctx))

	f.mux.HandleFunc("POST /api/posts/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "image missing"})
	})

	_, err := f.store.Create(ctx, "fresh",
		gateway.File{Field: "image", Name: "photo.jpg", Data: nil})
	require.Error(t, err)
	assert.Len(t, f.store.Feed().Get().Posts, 1)
}

func TestToggleLike_OptimisticThenServerWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.servePosts(somePost(5, 10))
	require.NoError(t, f.store.Refresh(ctx))

	var (
		started = make(chan struct{})
		release = make(chan struct{})
	)

	f.mux.HandleFunc("POST /api/posts/5/toggle_like/", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		// Another viewer liked concurrently: the server count jumps to 12.
		writeJSON(w, http.StatusOK, somePost(5, 12))
	})

	done := make(chan error, 1)

	go func() { done <- f.store.ToggleLike(ctx, 5) }()

	<-started

	// The flip is visible before the network call resolves.
	overlay := f.store.Overlay().Get()
	post, _ := findPost(f.store.Feed().Get().Posts, 5)
	assert.True(t, overlay.Liked(5))
	assert.Equal(t, 11, overlay.LikeCount(post))

	close(release)
	require.NoError(t, <-done)

	overlay = f.store.Overlay().Get()
	post, _ = findPost(f.store.Feed().Get().Posts, 5)
	assert.True(t, overlay.Liked(5), "liked state keeps the user's intent")
	assert.Equal(t, 12, overlay.LikeCount(post), "the server count supersedes the local increment")
	assert.Equal(t, 12, post.LikeCount)
}

func TestToggleLike_FailureRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.servePosts(somePost(5, 10))
	require.NoError(t, f.store.Refresh(ctx))

	f.mux.HandleFunc("POST /api/posts/5/toggle_like/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "try later"})
	})

	require.Error(t, f.store.ToggleLike(ctx, 5))

	overlay := f.store.Overlay().Get()
	post, _ := findPost(f.store.Feed().Get().Posts, 5)
	assert.False(t, overlay.Liked(5), "rollback restores the pre-call boolean")
	assert.Equal(t, 10, overlay.LikeCount(post), "rollback restores the pre-call counter")
	assert.NotContains(t, overlay.DisplayedLikeCount, int64(5))
}

func TestToggleLike_CoalescesToLatestIntent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.servePosts(somePost(5, 10))
	require.NoError(t, f.store.Refresh(ctx))

	var (
		calls   atomic.Int32
		started = make(chan struct{})
		release = make(chan struct{})
	)

	f.mux.HandleFunc("POST /api/posts/5/toggle_like/", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			writeJSON(w, http.StatusOK, somePost(5, 11))

			return
		}

		// Second request reflects the flipped-back intent.
		writeJSON(w, http.StatusOK, somePost(5, 10))
	})

	done := make(chan error, 1)

	go func() { done <- f.store.ToggleLike(ctx, 5) }()

	<-started

	// Second toggle before the first resolves: flips the boolean back and
	// must not double-apply the counter.
	require.NoError(t, f.store.ToggleLike(ctx, 5))

	overlay := f.store.Overlay().Get()
	post, _ := findPost(f.store.Feed().Get().Posts, 5)
	assert.False(t, overlay.Liked(5))
	assert.Equal(t, 10, overlay.LikeCount(post))

	close(release)
	require.NoError(t, <-done)

	// Once everything settles, the displayed state matches the most recent
	// intent: an even number of toggles leaves it unchanged.
	overlay = f.store.Overlay().Get()
	post, _ = findPost(f.store.Feed().Get().Posts, 5)
	assert.False(t, overlay.Liked(5))
	assert.Equal(t, 10, overlay.LikeCount(post))
	assert.Equal(t, int32(2), calls.Load(), "a request reflecting the latest intent is issued")
}

func TestToggleLike_UnknownPost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.servePosts(somePost(5, 10))
	require.NoError(t, f.store.Refresh(context.Background()))

	err := f.store.ToggleLike(context.Background(), 404)
	require.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestAddComment_AppendsOnConfirmation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.servePosts(somePost(5, 10), somePost(4, 2))
	require.NoError(t, f.store.Refresh(ctx))

	f.mux.HandleFunc("POST /api/posts/5/add_comment/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		//nolint:exhaustruct
		writeJSON(w, http.StatusCreated, domain.Comment{
			Author: domain.UserRef{ID: 1, Username: "kofi"},
			Text:   body["text"],
		})
	})

	comment, err := f.store.AddComment(ctx, 5, "nice!")
	require.NoError(t, err)
	assert.Equal(t, "nice!", comment.Text)

	snap := f.store.Feed().Get()
	post, ok := findPost(snap.Posts, 5)
	require.True(t, ok)
	require.Len(t, post.Comments, 1)
	assert.Equal(t, "nice!", post.Comments[0].Text)
	assert.Equal(t, 1, post.CommentCount, "count goes up by exactly one")

	other, _ := findPost(snap.Posts, 4)
	assert.Empty(t, other.Comments, "no other post is affected")
	assert.Equal(t, 0, other.CommentCount)
}

func TestAddComment_FailureAppendsNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.servePosts(somePost(5, 10))
	require.NoError(t, f.store.Refresh(ctx))

	f.mux.HandleFunc("POST /api/posts/5/add_comment/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "text required"})
	})

	_, err := f.store.AddComment(ctx, 5, "")
	require.Error(t, err)

	post, _ := findPost(f.store.Feed().Get().Posts, 5)
	assert.Empty(t, post.Comments)
	assert.Equal(t, 0, post.CommentCount)
}

func TestToggleBookmark_OverlayOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.servePosts(somePost(5, 10))
	require.NoError(t, f.store.Refresh(context.Background()))

	require.NoError(t, f.store.ToggleBookmark(5))
	assert.True(t, f.store.Overlay().Get().Bookmarked(5))

	require.NoError(t, f.store.ToggleBookmark(5))
	assert.False(t, f.store.Overlay().Get().Bookmarked(5))

	require.ErrorIs(t, f.store.ToggleBookmark(404), domain.ErrPostNotFound)
}

func findPost(posts []domain.Post, id int64) (domain.Post, bool) {
	for _, post := range posts {
		if post.ID == id {
			return post, true
		}
	}

	//nolint:exhaustruct
	return domain.Post{}, false
}
