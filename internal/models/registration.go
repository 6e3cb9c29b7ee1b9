package models

import "time"

// RegistrationStatus represents the lifecycle of a team-topic registration.
type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "PENDING"
	RegistrationStatusApproved  RegistrationStatus = "APPROVED"
	RegistrationStatusRejected  RegistrationStatus = "REJECTED"
	RegistrationStatusFinalized RegistrationStatus = "FINALIZED"
)

// CountsAgainstCapacity reports whether a registration in this status
// occupies one of the topic's slots. Rejected registrations free the slot.
func (s RegistrationStatus) CountsAgainstCapacity() bool {
	return s == RegistrationStatusPending || s == RegistrationStatusApproved || s == RegistrationStatusFinalized
}

// Registration binds a team to a topic. At most one registration exists per
// (team, topic) pair.
type Registration struct {
	ID           string             `db:"id" json:"id"`
	TeamID       string             `db:"team_id" json:"team_id"`
	TopicID      string             `db:"topic_id" json:"topic_id"`
	Status       RegistrationStatus `db:"status" json:"status"`
	RejectReason *string            `db:"reject_reason" json:"reject_reason,omitempty"`
	RegisteredAt time.Time          `db:"registered_at" json:"registered_at"`
	ApprovedAt   *time.Time         `db:"approved_at" json:"approved_at,omitempty"`
	RejectedAt   *time.Time         `db:"rejected_at" json:"rejected_at,omitempty"`
}

// RegistrationDetail enriches Registration with team and topic info.
type RegistrationDetail struct {
	Registration
	TeamName     string `db:"team_name" json:"team_name"`
	TopicCode    string `db:"topic_code" json:"topic_code"`
	TopicTitleEn string `db:"topic_title_en" json:"topic_title_en"`
}
