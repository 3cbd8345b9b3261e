// Package contentindex implements the Content Index (C3): a vector
// store of posts supporting insert, nearest-neighbour query, and delete
// by (post_id, user_id).
package contentindex

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Delete when post_id has no entry.
var ErrNotFound = errors.New("post not found")

// ErrUserMismatch is returned by Delete when post_id exists but belongs
// to a different user_id (spec.md §4.3).
var ErrUserMismatch = errors.New("post_id exists for a different user_id")

// ErrConflict is returned by Insert when post_id already exists.
var ErrConflict = errors.New("post_id conflict")

// Post is the Post Record from spec.md §3.
type Post struct {
	PostID  string
	UserID  string
	Content string
	Image   []byte // optional
}

// Match is a nearest-neighbour hit: Distance is in [0,1], lower is more
// similar (spec.md §4.3).
type Match struct {
	Distance    float64
	MatchedID   string
}

// Index is the C3 contract.
type Index interface {
	Insert(ctx context.Context, post Post) error
	Nearest(ctx context.Context, content string, image []byte) (Match, bool, error)
	Delete(ctx context.Context, postID, userID string) error
	Count(ctx context.Context) (int, error)
}
