package models

import (
	"time"
)

// Status enumerates post lifecycle states persisted in Postgres.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	// StatusSending marks a post claimed by a scheduler tick whose delivery outcome is not yet recorded.
	StatusSending Status = "sending"
	StatusPosted  Status = "posted"
	StatusFailed  Status = "failed"
)

// Editable reports whether a user edit may still change a post in this state.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusScheduled || s == StatusFailed
}

// Pattern is a recurrence rule for a series of posts.
type Pattern string

const (
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
)

// Valid reports whether p is one of the supported recurrence rules.
func (p Pattern) Valid() bool {
	switch p {
	case PatternDaily, PatternWeekly, PatternMonthly:
		return true
	}
	return false
}

// MaxMediaPerPost mirrors the platform limit on attachments per post.
const MaxMediaPerPost = 4

// Post is a unit of social content, either a draft or a scheduled delivery.
type Post struct {
	ID               string     `json:"id"`
	Content          string     `json:"content"`
	ScheduledFor     *time.Time `json:"scheduledFor,omitempty"`
	IsDraft          bool       `json:"isDraft"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	PostedAt         *time.Time `json:"postedAt,omitempty"`
	TweetID          *string    `json:"tweetId,omitempty"`
	Error            *string    `json:"error,omitempty"`
	RecurringPattern *Pattern   `json:"recurringPattern,omitempty"`
	RecurringEndDate *time.Time `json:"recurringEndDate,omitempty"`
	SeriesID         *string    `json:"seriesId,omitempty"`
	MediaURLs        []string   `json:"mediaUrls"`
}

// DeriveStatus computes the initial state of a post from its compose-time flags.
// A non-draft post without a time is scheduled for now.
func DeriveStatus(isDraft bool, scheduledFor *time.Time, now time.Time) (Status, *time.Time) {
	if isDraft {
		return StatusDraft, scheduledFor
	}
	if scheduledFor == nil {
		t := now
		return StatusScheduled, &t
	}
	return StatusScheduled, scheduledFor
}
