package models

import "time"

// TopicStatus represents the lifecycle of a capstone topic proposal.
type TopicStatus string

// Topic statuses, in rough lifecycle order.
const (
	TopicStatusDraft              TopicStatus = "DRAFT"
	TopicStatusProcessing         TopicStatus = "PROCESSING"
	TopicStatusAIPassed           TopicStatus = "AI_PASSED"
	TopicStatusAIFailed           TopicStatus = "AI_FAILED"
	TopicStatusPendingReview      TopicStatus = "PENDING_REVIEW"
	TopicStatusWaitingCoordinator TopicStatus = "WAITING_COORDINATOR"
	TopicStatusApproved           TopicStatus = "APPROVED"
	TopicStatusRejected           TopicStatus = "REJECTED"
	TopicStatusPublished          TopicStatus = "PUBLISHED"
	TopicStatusRegistered         TopicStatus = "REGISTERED"
	TopicStatusFinalized          TopicStatus = "FINALIZED"
)

// Topic represents a capstone project proposal owned by a supervisor.
type Topic struct {
	ID           string      `db:"id" json:"id"`
	Code         string      `db:"code" json:"code"`
	TitleEn      string      `db:"title_en" json:"title_en"`
	TitleVi      string      `db:"title_vi" json:"title_vi"`
	Description  string      `db:"description" json:"description"`
	Requirements string      `db:"requirements" json:"requirements"`
	Status       TopicStatus `db:"status" json:"status"`
	MaxTeams     int         `db:"max_teams" json:"max_teams"`
	Version      int         `db:"version" json:"version"`

	AICompliancePass     *bool    `db:"ai_compliance_pass" json:"ai_compliance_pass,omitempty"`
	AIComplianceFeedback *string  `db:"ai_compliance_feedback" json:"ai_compliance_feedback,omitempty"`
	AISimilarityScore    *float64 `db:"ai_similarity_score" json:"ai_similarity_score,omitempty"`
	AISimilarityDetails  *string  `db:"ai_similarity_details" json:"ai_similarity_details,omitempty"`

	SupervisorID string `db:"supervisor_id" json:"supervisor_id"`
	SemesterID   string `db:"semester_id" json:"semester_id"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	SubmittedAt *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
}

// TopicDetail enriches Topic with supervisor and semester info.
type TopicDetail struct {
	Topic
	SupervisorName string `db:"supervisor_name" json:"supervisor_name"`
	SemesterCode   string `db:"semester_code" json:"semester_code"`
}

// TopicFilter provides filters for listing topics.
type TopicFilter struct {
	SupervisorID string
	SemesterID   string
	Status       TopicStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// AIResult carries the outcome of an automated screening run.
type AIResult struct {
	TopicVersion       int      `json:"topic_version"`
	CompliancePass     bool     `json:"compliance_pass"`
	ComplianceFeedback string   `json:"compliance_feedback"`
	SimilarityScore    *float64 `json:"similarity_score,omitempty"`
	SimilarityDetails  string   `json:"similarity_details"`
}
