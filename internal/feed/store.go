package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/felnan/snapfeed/internal/domain"
	"github.com/felnan/snapfeed/internal/gateway"
	"github.com/felnan/snapfeed/internal/infra/logging"
	"github.com/felnan/snapfeed/internal/state"
)

const postsPath = "/api/posts/"

// Snapshot is the process-wide feed state: the authoritative post sequence
// (newest first), the refresh indicator and the last refresh failure. A
// failed refresh keeps previously cached posts visible.
type Snapshot struct {
	Posts   []domain.Post
	Loading bool
	Err     error
}

// likeFlight tracks the in-flight like toggle for one post. The overlay
// stores a boolean, not a counter delta, so repeated toggles before the
// request settles coalesce onto the latest desired state; the settle loop
// keeps issuing requests until the sent state matches the latest intent.
type likeFlight struct {
	inFlight bool
	desired  bool
	sent     bool
	// revert is the overlay pre-state captured when the flight started.
	revert overlayPatch
}

// Store owns the authoritative post collection and performs optimistic
// mutation with rollback on failure. It is the only component that mutates
// the feed snapshot and the interaction overlay.
type Store struct {
	gw  *gateway.Gateway
	log logging.Logger

	feed    *state.Container[Snapshot]
	overlay *state.Container[OverlayState]

	// mu guards refresh sequencing and the like-flight bookkeeping; it is
	// never held across a network call.
	mu         sync.Mutex
	refreshSeq uint64
	appliedSeq uint64
	likes      map[int64]*likeFlight
}

// NewStore creates a feed store backed by the given gateway. The feed starts
// empty and not loading.
func NewStore(gw *gateway.Gateway) *Store {
	return &Store{
		gw:  gw,
		log: logging.GetLogger("feed.store"),
		//nolint:exhaustruct
		feed:    state.NewContainer(Snapshot{}),
		overlay: state.NewContainer(newOverlayState()),
		likes:   make(map[int64]*likeFlight),
	}
}

// Feed exposes the feed state container for snapshot reads and change
// subscriptions.
func (s *Store) Feed() *state.Container[Snapshot] {
	return s.feed
}

// Overlay exposes the interaction overlay container.
func (s *Store) Overlay() *state.Container[OverlayState] {
	return s.overlay
}

// Refresh replaces the entire post sequence with the server's current
// listing, in server order. It is the only operation that wipes the
// interaction overlay: the reconciliation point between optimistic local
// state and server truth. Responses of overlapping refreshes carry a
// sequence number and a response older than the newest applied one is
// discarded instead of clobbering fresher data.
func (s *Store) Refresh(ctx context.Context) (err error) {
	s.mu.Lock()
	s.refreshSeq++
	seq := s.refreshSeq
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.log.WarnContext(ctx, "feed refresh failed", "error", err)
		} else {
			s.log.DebugContext(ctx, "feed refreshed", "posts", len(s.feed.Get().Posts))
		}
	}()

	s.feed.Update(func(snap Snapshot) Snapshot {
		snap.Loading = true

		return snap
	})

	var posts []domain.Post
	if err := s.gw.Get(ctx, postsPath, &posts); err != nil {
		s.applyRefreshFailure(seq, err)

		return fmt.Errorf("fetch posts: %w", err)
	}

	s.applyRefresh(seq, posts)

	return nil
}

func (s *Store) applyRefresh(seq uint64, posts []domain.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.appliedSeq {
		s.log.Debug("stale refresh response discarded", "seq", seq, "applied", s.appliedSeq)

		return
	}

	s.appliedSeq = seq

	// Uniqueness invariant: at most one entry per ID, first occurrence wins.
	seen := make(map[int64]struct{}, len(posts))
	deduped := make([]domain.Post, 0, len(posts))

	for _, post := range posts {
		if _, dup := seen[post.ID]; dup {
			continue
		}

		seen[post.ID] = struct{}{}
		deduped = append(deduped, post)
	}

	s.feed.Set(Snapshot{Posts: deduped, Loading: false, Err: nil})

	// The overlay is wiped wholesale; any in-flight like keeps its latest
	// intent but now reverts to the clean slate on failure.
	s.overlay.Set(newOverlayState())

	for id, flight := range s.likes {
		if !flight.inFlight {
			delete(s.likes, id)

			continue
		}

		flight.revert = overlayPatch{postID: id} //nolint:exhaustruct
	}
}

func (s *Store) applyRefreshFailure(seq uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.appliedSeq {
		return
	}

	// Previously cached posts stay visible; only the indicator changes.
	s.feed.Update(func(snap Snapshot) Snapshot {
		snap.Loading = false
		snap.Err = err

		return snap
	})
}

// Create publishes a new post. It is not optimistic: the post appears
// locally only after the server confirms, because the server assigns the
// canonical ID and creation time. The confirmed post is prepended,
// maintaining newest-first order.
func (s *Store) Create(ctx context.Context, caption string, image gateway.File) (_ *domain.Post, err error) {
	defer func() {
		if err != nil {
			s.log.WarnContext(ctx, "post create failed", "error", err)
		} else {
			s.log.DebugContext(ctx, "post created")
		}
	}()

	var created domain.Post
	if err := s.gw.Upload(ctx, "POST", postsPath,
		map[string]string{"caption": caption},
		[]gateway.File{image},
		&created,
	); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	s.feed.Update(func(snap Snapshot) Snapshot {
		for i := range snap.Posts {
			if snap.Posts[i].ID == created.ID {
				// A refresh already delivered it; keep the sequence unique.
				snap.Posts[i] = created.Clone()

				return snap
			}
		}

		posts := make([]domain.Post, 0, len(snap.Posts)+1)
		posts = append(posts, created.Clone())
		posts = append(posts, snap.Posts...)
		snap.Posts = posts

		return snap
	})

	return &created, nil
}

// ToggleLike optimistically flips the liked state for a post: the overlay
// boolean and displayed counter change before the request is dispatched, so
// the UI reflects intent with zero latency. On success the server's post is
// merged as the authoritative source; on failure the recorded pre-state is
// replayed. Toggles fired while a request is in flight coalesce: the flight
// settles on the most recent intent.
func (s *Store) ToggleLike(ctx context.Context, postID int64) error {
	s.mu.Lock()

	if _, ok := s.findPost(postID); !ok {
		s.mu.Unlock()

		return fmt.Errorf("toggle like %d: %w", postID, domain.ErrPostNotFound)
	}

	flight, ok := s.likes[postID]
	if !ok {
		flight = &likeFlight{} //nolint:exhaustruct
		s.likes[postID] = flight
	}

	desired := !s.overlay.Get().Liked(postID)

	if flight.inFlight {
		// Coalesced: flip locally, the running settle loop picks up the
		// new intent.
		s.applyLikeFlip(postID, desired)
		flight.desired = desired
		s.mu.Unlock()

		return nil
	}

	// Record the inverse before applying, so rollback replays the exact
	// pre-state instead of recomputing it.
	flight.revert = s.overlay.Get().patchFor(postID)
	s.applyLikeFlip(postID, desired)
	flight.desired = desired
	flight.sent = desired
	flight.inFlight = true
	s.mu.Unlock()

	return s.settleLike(ctx, postID, flight)
}

// applyLikeFlip mutates the overlay for the given intent. Called with mu held.
func (s *Store) applyLikeFlip(postID int64, desired bool) {
	post, _ := s.findPost(postID)

	overlay := s.overlay.Get().clone()

	displayed := overlay.LikeCount(post)
	if desired {
		displayed++
	} else {
		displayed--
	}

	overlay.LikedByMe[postID] = desired
	overlay.DisplayedLikeCount[postID] = displayed
	s.overlay.Set(overlay)
}

func (s *Store) settleLike(ctx context.Context, postID int64, flight *likeFlight) error {
	path := fmt.Sprintf("/api/posts/%d/toggle_like/", postID)

	for {
		var confirmed domain.Post

		if err := s.gw.Post(ctx, path, nil, &confirmed); err != nil {
			s.rollbackLike(postID, flight)

			s.log.WarnContext(ctx, "like toggle failed, reverted",
				logging.Group("post", "id", postID), "error", err)

			return fmt.Errorf("toggle like %d: %w", postID, err)
		}

		s.mu.Lock()

		s.mergePost(confirmed)

		if flight.desired == flight.sent {
			// Settled: the server count is authoritative now, the overlay
			// keeps only the boolean.
			overlay := s.overlay.Get().clone()
			delete(overlay.DisplayedLikeCount, postID)
			overlay.LikedByMe[postID] = flight.desired
			s.overlay.Set(overlay)

			flight.inFlight = false
			s.mu.Unlock()

			return nil
		}

		// Intent moved on while the request was in flight; reflect the new
		// intent against the fresh authoritative count and go again.
		flight.sent = flight.desired

		overlay := s.overlay.Get().clone()

		displayed := confirmed.LikeCount
		if flight.desired {
			displayed++
		} else {
			displayed--
		}

		overlay.LikedByMe[postID] = flight.desired
		overlay.DisplayedLikeCount[postID] = displayed
		s.overlay.Set(overlay)
		s.mu.Unlock()
	}
}

func (s *Store) rollbackLike(postID int64, flight *likeFlight) {
	s.mu.Lock()
	defer s.mu.Unlock()

	overlay := s.overlay.Get().clone()
	flight.revert.revert(overlay)
	s.overlay.Set(overlay)

	delete(s.likes, postID)
}

// ToggleBookmark flips the bookmarked state for a post. The backend has no
// bookmark endpoint, so this is overlay-only and lost on the next refresh.
func (s *Store) ToggleBookmark(postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.findPost(postID); !ok {
		return fmt.Errorf("toggle bookmark %d: %w", postID, domain.ErrPostNotFound)
	}

	overlay := s.overlay.Get().clone()
	overlay.BookmarkedByMe[postID] = !overlay.Bookmarked(postID)
	s.overlay.Set(overlay)

	return nil
}

// AddComment appends a comment to a post. Not optimistic: the comment and
// the +1 on the displayed count appear only after server confirmation, so
// the counter is incremented by exactly one per accepted comment.
func (s *Store) AddComment(ctx context.Context, postID int64, text string) (_ *domain.Comment, err error) {
	defer func() {
		if err != nil {
			s.log.WarnContext(ctx, "add comment failed",
				logging.Group("post", "id", postID), "error", err)
		}
	}()

	s.mu.Lock()

	if _, ok := s.findPost(postID); !ok {
		s.mu.Unlock()

		return nil, fmt.Errorf("add comment %d: %w", postID, domain.ErrPostNotFound)
	}
	s.mu.Unlock()

	var comment domain.Comment
	if err := s.gw.Post(ctx,
		fmt.Sprintf("/api/posts/%d/add_comment/", postID),
		map[string]string{"text": text},
		&comment,
	); err != nil {
		return nil, fmt.Errorf("add comment %d: %w", postID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.feed.Update(func(snap Snapshot) Snapshot {
		for i := range snap.Posts {
			if snap.Posts[i].ID != postID {
				continue
			}

			post := snap.Posts[i].Clone()
			post.Comments = append(post.Comments, comment)
			post.CommentCount++

			posts := append([]domain.Post(nil), snap.Posts...)
			posts[i] = post
			snap.Posts = posts

			break
		}

		return snap
	})

	return &comment, nil
}

// findPost returns the post with the given ID from the current snapshot.
// Called with mu held.
func (s *Store) findPost(postID int64) (domain.Post, bool) {
	for _, post := range s.feed.Get().Posts {
		if post.ID == postID {
			return post, true
		}
	}

	return domain.Post{}, false //nolint:exhaustruct
}

// mergePost replaces the matching feed entry with the server's returned
// representation. Called with mu held. A post that vanished from the local
// sequence (replaced by a racing refresh) is ignored; the refresh won.
func (s *Store) mergePost(confirmed domain.Post) {
	s.feed.Update(func(snap Snapshot) Snapshot {
		for i := range snap.Posts {
			if snap.Posts[i].ID != confirmed.ID {
				continue
			}

			posts := append([]domain.Post(nil), snap.Posts...)
			posts[i] = confirmed.Clone()
			snap.Posts = posts

			break
		}

		return snap
	})
}
