package feed

import "github.com/felnan/snapfeed/internal/domain"

// OverlayState is the ephemeral, session-scoped interaction overlay: which
// posts the current session has toggled like/bookmark on, and the derived
// displayed like counters. It layers over the store's authoritative post
// data until the next full refresh wipes it. The backend does not return
// per-viewer like state, so after a refresh the client cannot know the true
// server-side liked state and must not guess.
type OverlayState struct {
	LikedByMe          map[int64]bool
	BookmarkedByMe     map[int64]bool
	DisplayedLikeCount map[int64]int
}

func newOverlayState() OverlayState {
	return OverlayState{
		LikedByMe:          make(map[int64]bool),
		BookmarkedByMe:     make(map[int64]bool),
		DisplayedLikeCount: make(map[int64]int),
	}
}

func (o OverlayState) clone() OverlayState {
	clone := newOverlayState()

	for id, liked := range o.LikedByMe {
		clone.LikedByMe[id] = liked
	}

	for id, bookmarked := range o.BookmarkedByMe {
		clone.BookmarkedByMe[id] = bookmarked
	}

	for id, count := range o.DisplayedLikeCount {
		clone.DisplayedLikeCount[id] = count
	}

	return clone
}

// Liked reports whether the current session has the post toggled liked.
// Absent means false.
func (o OverlayState) Liked(postID int64) bool {
	return o.LikedByMe[postID]
}

// Bookmarked reports whether the current session has the post bookmarked.
// Absent means false.
func (o OverlayState) Bookmarked(postID int64) bool {
	return o.BookmarkedByMe[postID]
}

// LikeCount resolves the displayed like count for a post: the overlay value
// when present, the post's authoritative count otherwise.
func (o OverlayState) LikeCount(post domain.Post) int {
	if count, ok := o.DisplayedLikeCount[post.ID]; ok {
		return count
	}

	return post.LikeCount
}

// overlayPatch records the exact pre-state of one post's overlay entries at
// the moment an optimistic mutation is applied. Rolling back replays the
// patch instead of recomputing, so apply and rollback cannot drift.
type overlayPatch struct {
	postID int64

	liked    bool
	hadLiked bool

	count    int
	hadCount bool
}

func (o OverlayState) patchFor(postID int64) overlayPatch {
	liked, hadLiked := o.LikedByMe[postID]
	count, hadCount := o.DisplayedLikeCount[postID]

	return overlayPatch{
		postID:   postID,
		liked:    liked,
		hadLiked: hadLiked,
		count:    count,
		hadCount: hadCount,
	}
}

// revert restores the overlay entries captured in the patch, removing keys
// that were absent at capture time.
func (p overlayPatch) revert(o OverlayState) {
	if p.hadLiked {
		o.LikedByMe[p.postID] = p.liked
	} else {
		delete(o.LikedByMe, p.postID)
	}

	if p.hadCount {
		o.DisplayedLikeCount[p.postID] = p.count
	} else {
		delete(o.DisplayedLikeCount, p.postID)
	}
}
