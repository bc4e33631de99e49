package core

import (
	"context"
	"time"
)

// Feedback types accepted from users.
const (
	FeedbackLike    = "like"
	FeedbackDislike = "dislike"
)

// FeedbackRecord captures a like/dislike signal tied to a generated message
// and the context that produced it. Records are additive history: repeated
// feedback on the same message inserts new rows, never upserts, since
// sentiment may legitimately change across review.
type FeedbackRecord struct {
	ID           string    `json:"id"`
	MessageID    string    `json:"message_id"`
	TenantID     string    `json:"tenant_id"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	FeedbackType string    `json:"feedback_type"`
	Comment      string    `json:"comment,omitempty"`
	ContextUsed  string    `json:"context_used,omitempty"`
	Sources      []string  `json:"sources,omitempty"`
	ModelUsed    string    `json:"model_used,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeedbackStore persists feedback records. Save is a single tenant-scoped
// insert with no dedup and no update/delete path.
type FeedbackStore interface {
	Save(ctx context.Context, record FeedbackRecord) error
}
