package domain

// UserProfile is the remote service's representation of an account. The
// local copy is a cache; the server is authoritative for every field,
// including the derived counters.
type UserProfile struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	Bio            string `json:"bio"`
	Website        string `json:"website"`
	AvatarURL      string `json:"avatar_url"`
	PostCount      int    `json:"post_count"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

// UserRef is the abbreviated author record embedded in posts and comments.
type UserRef struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// ProfilePatch carries the editable profile fields for an update request.
// Nil fields are omitted from the request body and left untouched remotely.
type ProfilePatch struct {
	FullName *string `json:"full_name,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	Website  *string `json:"website,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}
