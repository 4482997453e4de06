package assist

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"social-post-scheduler/internal/models"
)

// EnhancePrompt asks for an improved version of a draft.
func EnhancePrompt(draft string) string {
	return fmt.Sprintf(`Improve the following social media post. Keep it under 280 characters, `+
		`keep the author's voice, and add at most three relevant hashtags.

Post:
%s

Reply with the improved post first, then a short explanation of what changed.`, strings.TrimSpace(draft))
}

// ResearchPrompt asks for background on a topic suitable for a post.
func ResearchPrompt(topic string) string {
	return fmt.Sprintf(`Research the topic below for a social media audience. List the key facts, `+
		`the angles people are discussing, and finish with one ready-to-post message under 280 characters `+
		`with relevant hashtags.

Topic:
%s`, strings.TrimSpace(topic))
}

// SuggestTimePrompt asks for the best publishing time after now.
func SuggestTimePrompt(content string, now time.Time) string {
	return fmt.Sprintf(`The current time is %s. Suggest the single best time in the next seven days `+
		`to publish the social media post below for maximum engagement. Answer with an RFC 3339 timestamp `+
		`in UTC on the first line, then one sentence explaining the choice.

Post:
%s`, now.UTC().Format(time.RFC3339), strings.TrimSpace(content))
}

var rfc3339Re = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(:\d{2})?(\.\d+)?(Z|[+-]\d{2}:\d{2})`)

// ParseSuggestedTime returns the first timestamp in text that lies after now.
func ParseSuggestedTime(text string, now time.Time) (time.Time, bool) {
	for _, m := range rfc3339Re.FindAllString(text, -1) {
		t, err := time.Parse(time.RFC3339, m)
		if err != nil {
			// Minutes-only form.
			if t, err = time.Parse("2006-01-02T15:04Z07:00", m); err != nil {
				continue
			}
		}
		if t.After(now) {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

var engagementHours = []int{9, 12, 17}

// NextEngagementSlot returns the next 09:00, 12:00 or 17:00 UTC after now.
func NextEngagementSlot(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for d := 0; d < 2; d++ {
		for _, h := range engagementHours {
			slot := day.AddDate(0, 0, d).Add(time.Duration(h) * time.Hour)
			if slot.After(now) {
				return slot
			}
		}
	}
	return day.AddDate(0, 0, 1).Add(time.Duration(engagementHours[0]) * time.Hour)
}

// Suggestion is the outcome of SuggestTime.
type Suggestion struct {
	SuggestedTime time.Time `json:"suggestedTime"`
	Reasoning     string    `json:"reasoning"`
	Provider      string    `json:"provider,omitempty"`
	Fallback      bool      `json:"fallback"`
}

// SuggestTime asks the orchestrator for a publishing time. When no provider
// answers or the reply holds no usable timestamp, the next engagement slot is used.
func (o *Orchestrator) SuggestTime(ctx context.Context, content, preferred string, now time.Time) (Suggestion, error) {
	if strings.TrimSpace(content) == "" {
		return Suggestion{}, fmt.Errorf("%w: content is required", models.ErrInvalidRequest)
	}
	resp, err := o.Generate(ctx, Request{Prompt: SuggestTimePrompt(content, now), PreferredProvider: preferred})
	if err != nil {
		if ctx.Err() != nil {
			return Suggestion{}, err
		}
		o.log.WithError(err).Warn("suggest time: providers failed, using engagement slot")
		return Suggestion{
			SuggestedTime: NextEngagementSlot(now),
			Reasoning:     "default engagement window",
			Fallback:      true,
		}, nil
	}
	if t, ok := ParseSuggestedTime(resp.SuggestedContent, now); ok {
		return Suggestion{SuggestedTime: t, Reasoning: resp.SuggestedContent, Provider: resp.Provider}, nil
	}
	return Suggestion{
		SuggestedTime: NextEngagementSlot(now),
		Reasoning:     resp.SuggestedContent,
		Provider:      resp.Provider,
		Fallback:      true,
	}, nil
}
