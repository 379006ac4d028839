package domain

import "time"

// Post is one feed entry as returned by the remote service. Identity is ID;
// the feed never holds two posts with the same ID.
type Post struct {
	ID           int64     `json:"id"`
	Author       UserRef   `json:"author"`
	Images       []string  `json:"images"`
	Caption      string    `json:"caption"`
	CreatedAt    time.Time `json:"created_at"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	Comments     []Comment `json:"comments"`
}

// Comment belongs to exactly one post and is append-only from the client's
// point of view.
type Comment struct {
	Author    UserRef   `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of the post so that snapshots handed to readers
// cannot alias the feed's own slices.
func (p Post) Clone() Post {
	clone := p
	clone.Images = append([]string(nil), p.Images...)
	clone.Comments = append([]Comment(nil), p.Comments...)

	return clone
}
