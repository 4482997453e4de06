package assist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-post-scheduler/internal/models"
)

func TestParseSuggestedTime(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	got, ok := ParseSuggestedTime("2024-03-02T17:30:00Z\nEvenings do well.", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 2, 17, 30, 0, 0, time.UTC), got)

	got, ok = ParseSuggestedTime("Try 2024-03-01T14:00+02:00 or so", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), got)

	_, ok = ParseSuggestedTime("2024-03-01T12:00+02:00 is exactly now", now)
	assert.False(t, ok)

	_, ok = ParseSuggestedTime("2024-02-01T09:00:00Z is in the past", now)
	assert.False(t, ok)

	_, ok = ParseSuggestedTime("whenever you like", now)
	assert.False(t, ok)
}

func TestNextEngagementSlot(t *testing.T) {
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 1, 13, 15, 0, 0, time.UTC), time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)},
		{time.Date(2024, 2, 29, 18, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NextEngagementSlot(tc.now), "now=%s", tc.now)
	}
}

func TestSuggestTimeUsesProviderReply(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", available: true, reply: "2024-03-02T17:00:00Z\nAfter work."}
	o, _ := newTestOrchestrator(t, gemini)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	s, err := o.SuggestTime(context.Background(), "launch day!", "", now)
	require.NoError(t, err)
	assert.False(t, s.Fallback)
	assert.Equal(t, "gemini", s.Provider)
	assert.Equal(t, time.Date(2024, 3, 2, 17, 0, 0, 0, time.UTC), s.SuggestedTime)
}

func TestSuggestTimeFallsBackToEngagementSlot(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", available: true, failFirst: -1}
	o, _ := newTestOrchestrator(t, gemini)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	s, err := o.SuggestTime(context.Background(), "launch day!", "", now)
	require.NoError(t, err)
	assert.True(t, s.Fallback)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), s.SuggestedTime)
}

func TestSuggestTimeRequiresContent(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeProvider{name: "gemini", available: true})
	_, err := o.SuggestTime(context.Background(), "", "", time.Now())
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))
}

func TestPromptsEmbedInput(t *testing.T) {
	assert.Contains(t, EnhancePrompt("  my draft  "), "\nmy draft\n")
	assert.Contains(t, ResearchPrompt("go generics"), "go generics")
	assert.Contains(t, SuggestTimePrompt("hello", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)), "2024-03-01T10:00:00Z")
}
