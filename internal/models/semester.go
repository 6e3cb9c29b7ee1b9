package models

import "time"

// Semester represents an academic term with its workflow windows.
type Semester struct {
	ID                   string     `db:"id" json:"id"`
	Code                 string     `db:"code" json:"code"`
	Name                 string     `db:"name" json:"name"`
	StartDate            time.Time  `db:"start_date" json:"start_date"`
	EndDate              time.Time  `db:"end_date" json:"end_date"`
	IsActive             bool       `db:"is_active" json:"is_active"`
	RegistrationOpen     *time.Time `db:"registration_open" json:"registration_open,omitempty"`
	RegistrationClose    *time.Time `db:"registration_close" json:"registration_close,omitempty"`
	TopicSubmissionOpen  *time.Time `db:"topic_submission_open" json:"topic_submission_open,omitempty"`
	TopicSubmissionClose *time.Time `db:"topic_submission_close" json:"topic_submission_close,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// RegistrationWindowOpen reports whether team-topic registration is currently
// allowed. A semester with no window configured is always open while active.
func (s Semester) RegistrationWindowOpen(now time.Time) bool {
	if s.RegistrationOpen != nil && now.Before(*s.RegistrationOpen) {
		return false
	}
	if s.RegistrationClose != nil && now.After(*s.RegistrationClose) {
		return false
	}
	return true
}

// TopicSubmissionWindowOpen reports whether supervisors may submit topics.
func (s Semester) TopicSubmissionWindowOpen(now time.Time) bool {
	if s.TopicSubmissionOpen != nil && now.Before(*s.TopicSubmissionOpen) {
		return false
	}
	if s.TopicSubmissionClose != nil && now.After(*s.TopicSubmissionClose) {
		return false
	}
	return true
}
