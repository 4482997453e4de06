package models

import "errors"

var (
	// ErrInvalidRequest marks caller input that violates a precondition. Never retried.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound marks a reference to a post that does not exist.
	ErrNotFound = errors.New("post not found")
	// ErrConflict marks an edit against a post that is being delivered or already posted.
	ErrConflict = errors.New("post can no longer be edited")
)
