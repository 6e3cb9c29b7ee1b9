package models

import "time"

// TeamStatus represents the lifecycle of a student team.
type TeamStatus string

const (
	TeamStatusForming    TeamStatus = "FORMING"
	TeamStatusReady      TeamStatus = "READY"
	TeamStatusRegistered TeamStatus = "REGISTERED"
	TeamStatusFinalized  TeamStatus = "FINALIZED"
)

// TeamMemberRole distinguishes the single leader from regular members.
type TeamMemberRole string

const (
	TeamRoleLeader TeamMemberRole = "LEADER"
	TeamRoleMember TeamMemberRole = "MEMBER"
)

// Team is a student group formed for one semester.
type Team struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	InviteCode string     `db:"invite_code" json:"invite_code"`
	LeaderID   string     `db:"leader_id" json:"leader_id"`
	SemesterID string     `db:"semester_id" json:"semester_id"`
	Status     TeamStatus `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// TeamMember links a user to a team. The (team, user) pair is unique and
// exactly one member per team carries the LEADER role.
type TeamMember struct {
	ID       string         `db:"id" json:"id"`
	TeamID   string         `db:"team_id" json:"team_id"`
	UserID   string         `db:"user_id" json:"user_id"`
	Role     TeamMemberRole `db:"role" json:"role"`
	JoinedAt time.Time      `db:"joined_at" json:"joined_at"`
}

// TeamMemberDetail enriches TeamMember with user info.
type TeamMemberDetail struct {
	TeamMember
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// TeamDetail carries a team together with its current members.
type TeamDetail struct {
	Team
	Members []TeamMemberDetail `json:"members"`
}
