// Package publisher delivers post content to the social network.
package publisher

import (
	"context"
	"fmt"
)

// Message is the content of one outbound post.
type Message struct {
	Content  string
	MediaIDs []string
}

// Receipt identifies the published message on the remote side.
type Receipt struct {
	ID   string
	Text string
}

// Publisher sends a message and returns the remote identifier.
type Publisher interface {
	Publish(ctx context.Context, msg Message) (Receipt, error)
}

// MediaUploader registers an attachment and returns its remote media id.
type MediaUploader interface {
	UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Error is returned for any failed remote call. StatusCode is zero when the
// request never got a response.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RateLimited reports whether the remote rejected the call for rate reasons.
func (e *Error) RateLimited() bool { return e.StatusCode == 429 }
