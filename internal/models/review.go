package models

import "time"

// ReviewDecision represents a reviewer's verdict on a topic version.
type ReviewDecision string

const (
	ReviewDecisionApproved ReviewDecision = "APPROVED"
	ReviewDecisionRejected ReviewDecision = "REJECTED"
	ReviewDecisionConsider ReviewDecision = "CONSIDER"
)

// Review is one reviewer's assignment for a specific topic version.
// A review is pending while Decision is nil; once the topic version moves
// on, the review stays behind as an immutable historical record.
type Review struct {
	ID           string          `db:"id" json:"id"`
	TopicID      string          `db:"topic_id" json:"topic_id"`
	ReviewerID   string          `db:"reviewer_id" json:"reviewer_id"`
	TopicVersion int             `db:"topic_version" json:"topic_version"`
	Decision     *ReviewDecision `db:"decision" json:"decision,omitempty"`
	Comment      *string         `db:"comment" json:"comment,omitempty"`
	AssignedAt   time.Time       `db:"assigned_at" json:"assigned_at"`
	ReviewedAt   *time.Time      `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// ReviewDetail enriches Review with topic and reviewer info.
type ReviewDetail struct {
	Review
	TopicCode    string `db:"topic_code" json:"topic_code"`
	TopicTitleEn string `db:"topic_title_en" json:"topic_title_en"`
	ReviewerName string `db:"reviewer_name" json:"reviewer_name"`
}

// Pending reports whether the review still awaits a decision.
func (r Review) Pending() bool {
	return r.Decision == nil
}
