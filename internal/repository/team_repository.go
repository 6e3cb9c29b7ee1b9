package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/minhtc/capstone-hub-api/internal/models"
)

// ErrTeamFull is returned when a join would push a team past its size cap.
var ErrTeamFull = errors.New("team is full")

// TeamRepository handles persistence of teams and their memberships.
// Membership mutations lock the team row so concurrent joins and leaves
// serialize per team and the size bounds hold.
type TeamRepository struct {
	db *sqlx.DB
}

// NewTeamRepository constructs the repository.
func NewTeamRepository(db *sqlx.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

const teamColumns = `id, name, invite_code, leader_id, semester_id, status, created_at, updated_at`

// FindByID returns a team by its ID.
func (r *TeamRepository) FindByID(ctx context.Context, id string) (*models.Team, error) {
	query := fmt.Sprintf(`SELECT %s FROM teams WHERE id = $1`, teamColumns)
	var team models.Team
	if err := r.db.GetContext(ctx, &team, query, id); err != nil {
		return nil, err
	}
	return &team, nil
}

// FindByInviteCode returns a team by its invite code.
func (r *TeamRepository) FindByInviteCode(ctx context.Context, code string) (*models.Team, error) {
	query := fmt.Sprintf(`SELECT %s FROM teams WHERE invite_code = $1`, teamColumns)
	var team models.Team
	if err := r.db.GetContext(ctx, &team, query, code); err != nil {
		return nil, err
	}
	return &team, nil
}

// FindDetailByID returns a team together with its members.
func (r *TeamRepository) FindDetailByID(ctx context.Context, id string) (*models.TeamDetail, error) {
	team, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := r.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.TeamDetail{Team: *team, Members: members}, nil
}

// FindByMemberAndSemester returns the team a user belongs to in a semester.
func (r *TeamRepository) FindByMemberAndSemester(ctx context.Context, userID, semesterID string) (*models.Team, error) {
	const query = `SELECT t.id, t.name, t.invite_code, t.leader_id, t.semester_id, t.status, t.created_at, t.updated_at
		FROM teams t
		JOIN team_members m ON m.team_id = t.id
		WHERE m.user_id = $1 AND t.semester_id = $2`
	var team models.Team
	if err := r.db.GetContext(ctx, &team, query, userID, semesterID); err != nil {
		return nil, err
	}
	return &team, nil
}

// ListBySemester returns all teams in a semester.
func (r *TeamRepository) ListBySemester(ctx context.Context, semesterID string) ([]models.Team, error) {
	query := fmt.Sprintf(`SELECT %s FROM teams WHERE semester_id = $1 ORDER BY created_at`, teamColumns)
	var teams []models.Team
	if err := r.db.SelectContext(ctx, &teams, query, semesterID); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// ListMembers returns the members of a team with user info.
func (r *TeamRepository) ListMembers(ctx context.Context, teamID string) ([]models.TeamMemberDetail, error) {
	const query = `SELECT m.id, m.team_id, m.user_id, m.role, m.joined_at, u.full_name, u.email
		FROM team_members m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.team_id = $1
		ORDER BY m.joined_at`
	var members []models.TeamMemberDetail
	if err := r.db.SelectContext(ctx, &members, query, teamID); err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	return members, nil
}

// ExistsByInviteCode reports whether the invite code is already taken.
func (r *TeamRepository) ExistsByInviteCode(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM teams WHERE invite_code = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		return false, fmt.Errorf("check invite code: %w", err)
	}
	return exists, nil
}

// IsUserInTeamForSemester reports whether the user already belongs to any
// team in the given semester.
func (r *TeamRepository) IsUserInTeamForSemester(ctx context.Context, userID, semesterID string) (bool, error) {
	const query = `SELECT EXISTS(
		SELECT 1 FROM team_members m JOIN teams t ON t.id = m.team_id
		WHERE m.user_id = $1 AND t.semester_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, semesterID); err != nil {
		return false, fmt.Errorf("check semester membership: %w", err)
	}
	return exists, nil
}

// CountMembers returns the current member count of a team.
func (r *TeamRepository) CountMembers(ctx context.Context, teamID string) (int, error) {
	const query = `SELECT COUNT(*) FROM team_members WHERE team_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, teamID); err != nil {
		return 0, fmt.Errorf("count team members: %w", err)
	}
	return count, nil
}

// Create inserts a team and its leader membership in one transaction.
func (r *TeamRepository) Create(ctx context.Context, team *models.Team) (err error) {
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	team.CreatedAt = now
	team.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin team creation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertTeam = `INSERT INTO teams (id, name, invite_code, leader_id, semester_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`
	if _, err = tx.ExecContext(ctx, insertTeam, team.ID, team.Name, team.InviteCode, team.LeaderID,
		team.SemesterID, team.Status, now); err != nil {
		return fmt.Errorf("insert team: %w", err)
	}

	const insertLeader = `INSERT INTO team_members (id, team_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, insertLeader, uuid.NewString(), team.ID, team.LeaderID,
		models.TeamRoleLeader, now); err != nil {
		return fmt.Errorf("insert team leader: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit team creation: %w", err)
	}
	return nil
}

// AddMember inserts a membership while holding the team row lock, enforcing
// the size cap and recomputing FORMING/READY inside the same transaction.
func (r *TeamRepository) AddMember(ctx context.Context, teamID, userID string, minSize, maxSize int) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin team join: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var team models.Team
	if err = tx.GetContext(ctx, &team, `SELECT `+teamColumns+` FROM teams WHERE id = $1 FOR UPDATE`, teamID); err != nil {
		return err
	}

	var count int
	if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM team_members WHERE team_id = $1`, teamID); err != nil {
		return fmt.Errorf("count team members: %w", err)
	}
	if count >= maxSize {
		err = ErrTeamFull
		return err
	}

	now := time.Now().UTC()
	const insertMember = `INSERT INTO team_members (id, team_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, insertMember, uuid.NewString(), teamID, userID, models.TeamRoleMember, now); err != nil {
		return fmt.Errorf("insert team member: %w", err)
	}

	if err = r.recomputeStatus(ctx, tx, &team, count+1, minSize, maxSize); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit team join: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership under the team row lock and recomputes
// FORMING/READY.
func (r *TeamRepository) RemoveMember(ctx context.Context, teamID, userID string, minSize, maxSize int) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin team leave: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var team models.Team
	if err = tx.GetContext(ctx, &team, `SELECT `+teamColumns+` FROM teams WHERE id = $1 FOR UPDATE`, teamID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("delete team member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check removed member rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	var count int
	if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM team_members WHERE team_id = $1`, teamID); err != nil {
		return fmt.Errorf("count team members: %w", err)
	}

	if err = r.recomputeStatus(ctx, tx, &team, count, minSize, maxSize); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit team leave: %w", err)
	}
	return nil
}

// TransferLeadership swaps the LEADER role between two members and updates
// the team's leader reference atomically.
func (r *TeamRepository) TransferLeadership(ctx context.Context, teamID, newLeaderID, currentLeaderID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin leadership transfer: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `UPDATE team_members SET role = $1 WHERE team_id = $2 AND user_id = $3`,
		models.TeamRoleLeader, teamID, newLeaderID)
	if err != nil {
		return fmt.Errorf("promote new leader: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check promoted rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE team_members SET role = $1 WHERE team_id = $2 AND user_id = $3`,
		models.TeamRoleMember, teamID, currentLeaderID); err != nil {
		return fmt.Errorf("demote current leader: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE teams SET leader_id = $1, updated_at = $2 WHERE id = $3`,
		newLeaderID, now, teamID); err != nil {
		return fmt.Errorf("update team leader: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit leadership transfer: %w", err)
	}
	return nil
}

// UpdateInviteCode replaces the invite code.
func (r *TeamRepository) UpdateInviteCode(ctx context.Context, teamID, code string) error {
	const query = `UPDATE teams SET invite_code = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, code, time.Now().UTC(), teamID)
	if err != nil {
		return fmt.Errorf("update invite code: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check invite code rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// recomputeStatus applies the FORMING/READY rule. Teams that reached
// REGISTERED or FINALIZED never regress on membership changes.
func (r *TeamRepository) recomputeStatus(ctx context.Context, tx *sqlx.Tx, team *models.Team, count, minSize, maxSize int) error {
	var next models.TeamStatus
	switch {
	case count >= minSize && count <= maxSize && team.Status == models.TeamStatusForming:
		next = models.TeamStatusReady
	case count < minSize && team.Status == models.TeamStatusReady:
		next = models.TeamStatusForming
	default:
		return nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE teams SET status = $1, updated_at = $2 WHERE id = $3`,
		next, time.Now().UTC(), team.ID); err != nil {
		return fmt.Errorf("update team status: %w", err)
	}
	team.Status = next
	return nil
}
