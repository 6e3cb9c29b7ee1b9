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

// Sentinel failures surfaced by the capacity-gated insert. The service layer
// maps them onto the public error taxonomy.
var (
	ErrTopicFull             = errors.New("topic has no available slots")
	ErrTopicClosed           = errors.New("topic is not open for registration")
	ErrDuplicateRegistration = errors.New("team already registered for topic")
)

// RegistrationRepository handles persistence of team-topic registrations.
// Every mutation that touches capacity holds the topic row lock for the whole
// read-count-write sequence, so concurrent registrations for the same topic
// serialize and the active count never exceeds max_teams.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, team_id, topic_id, status, reject_reason, registered_at, approved_at, rejected_at`

const activeCountQuery = `SELECT COUNT(*) FROM registrations WHERE topic_id = $1 AND status IN ($2, $3, $4)`

// FindByID returns a registration by its ID.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE id = $1`, registrationColumns)
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, id); err != nil {
		return nil, err
	}
	return &registration, nil
}

// FindByTopic returns all registrations for a topic.
func (r *RegistrationRepository) FindByTopic(ctx context.Context, topicID string) ([]models.RegistrationDetail, error) {
	const query = `SELECT g.id, g.team_id, g.topic_id, g.status, g.reject_reason, g.registered_at,
		g.approved_at, g.rejected_at, m.name AS team_name, t.code AS topic_code, t.title_en AS topic_title_en
		FROM registrations g
		LEFT JOIN teams m ON m.id = g.team_id
		LEFT JOIN topics t ON t.id = g.topic_id
		WHERE g.topic_id = $1
		ORDER BY g.registered_at`
	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, topicID); err != nil {
		return nil, fmt.Errorf("list registrations by topic: %w", err)
	}
	return registrations, nil
}

// FindByTeam returns all registrations made by a team.
func (r *RegistrationRepository) FindByTeam(ctx context.Context, teamID string) ([]models.RegistrationDetail, error) {
	const query = `SELECT g.id, g.team_id, g.topic_id, g.status, g.reject_reason, g.registered_at,
		g.approved_at, g.rejected_at, m.name AS team_name, t.code AS topic_code, t.title_en AS topic_title_en
		FROM registrations g
		LEFT JOIN teams m ON m.id = g.team_id
		LEFT JOIN topics t ON t.id = g.topic_id
		WHERE g.team_id = $1
		ORDER BY g.registered_at`
	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, teamID); err != nil {
		return nil, fmt.Errorf("list registrations by team: %w", err)
	}
	return registrations, nil
}

// FindBySupervisor returns registrations for topics owned by a supervisor,
// optionally filtered by status.
func (r *RegistrationRepository) FindBySupervisor(ctx context.Context, supervisorID string, status models.RegistrationStatus) ([]models.RegistrationDetail, error) {
	query := `SELECT g.id, g.team_id, g.topic_id, g.status, g.reject_reason, g.registered_at,
		g.approved_at, g.rejected_at, m.name AS team_name, t.code AS topic_code, t.title_en AS topic_title_en
		FROM registrations g
		LEFT JOIN teams m ON m.id = g.team_id
		JOIN topics t ON t.id = g.topic_id
		WHERE t.supervisor_id = $1`
	args := []interface{}{supervisorID}
	if status != "" {
		query += ` AND g.status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY g.registered_at`
	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, fmt.Errorf("list registrations by supervisor: %w", err)
	}
	return registrations, nil
}

// CountActive returns the number of registrations occupying topic slots.
func (r *RegistrationRepository) CountActive(ctx context.Context, topicID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, activeCountQuery, topicID,
		models.RegistrationStatusPending, models.RegistrationStatusApproved, models.RegistrationStatusFinalized); err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

// CreateWithCapacity inserts a PENDING registration while holding the topic
// row lock. Inside the same transaction it re-checks the topic status, the
// duplicate constraint and the active-slot count, and closes the topic
// (PUBLISHED/APPROVED -> REGISTERED) when the insert fills the last slot.
// Returns whether the topic became full.
func (r *RegistrationRepository) CreateWithCapacity(ctx context.Context, registration *models.Registration) (topicFull bool, err error) {
	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}
	registration.Status = models.RegistrationStatusPending
	registration.RegisteredAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin registration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var topic models.Topic
	if err = tx.GetContext(ctx, &topic, `SELECT `+topicColumns+` FROM topics WHERE id = $1 FOR UPDATE`,
		registration.TopicID); err != nil {
		return false, err
	}
	if topic.Status != models.TopicStatusPublished && topic.Status != models.TopicStatusApproved {
		err = ErrTopicClosed
		return false, err
	}

	var exists bool
	if err = tx.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM registrations WHERE team_id = $1 AND topic_id = $2)`,
		registration.TeamID, registration.TopicID); err != nil {
		return false, fmt.Errorf("check duplicate registration: %w", err)
	}
	if exists {
		err = ErrDuplicateRegistration
		return false, err
	}

	var active int
	if err = tx.GetContext(ctx, &active, activeCountQuery, registration.TopicID,
		models.RegistrationStatusPending, models.RegistrationStatusApproved, models.RegistrationStatusFinalized); err != nil {
		return false, fmt.Errorf("count active registrations: %w", err)
	}
	if active >= topic.MaxTeams {
		err = ErrTopicFull
		return false, err
	}

	const insertQuery = `INSERT INTO registrations (id, team_id, topic_id, status, registered_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, insertQuery, registration.ID, registration.TeamID,
		registration.TopicID, registration.Status, registration.RegisteredAt); err != nil {
		return false, fmt.Errorf("insert registration: %w", err)
	}

	if active+1 >= topic.MaxTeams {
		topicFull = true
		if _, err = tx.ExecContext(ctx, `UPDATE topics SET status = $1, updated_at = $2 WHERE id = $3`,
			models.TopicStatusRegistered, time.Now().UTC(), registration.TopicID); err != nil {
			return false, fmt.Errorf("close topic registration: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit registration: %w", err)
	}
	return topicFull, nil
}

// Approve moves a PENDING registration to APPROVED and marks the team
// REGISTERED in one transaction.
func (r *RegistrationRepository) Approve(ctx context.Context, id, teamID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration approval: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE registrations SET status = $1, approved_at = $2 WHERE id = $3 AND status = $4`,
		models.RegistrationStatusApproved, now, id, models.RegistrationStatusPending)
	if err != nil {
		return fmt.Errorf("approve registration: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approved registration rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE teams SET status = $1, updated_at = $2 WHERE id = $3`,
		models.TeamStatusRegistered, now, teamID); err != nil {
		return fmt.Errorf("mark team registered: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit registration approval: %w", err)
	}
	return nil
}

// Reject moves a PENDING registration to REJECTED and, under the topic row
// lock, reopens the topic when the freed slot takes it back below capacity.
func (r *RegistrationRepository) Reject(ctx context.Context, id, topicID, reason string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration rejection: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var topic models.Topic
	if err = tx.GetContext(ctx, &topic, `SELECT `+topicColumns+` FROM topics WHERE id = $1 FOR UPDATE`, topicID); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE registrations SET status = $1, reject_reason = $2, rejected_at = $3 WHERE id = $4 AND status = $5`,
		models.RegistrationStatusRejected, reason, now, id, models.RegistrationStatusPending)
	if err != nil {
		return fmt.Errorf("reject registration: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rejected registration rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	var active int
	if err = tx.GetContext(ctx, &active, activeCountQuery, topicID,
		models.RegistrationStatusPending, models.RegistrationStatusApproved, models.RegistrationStatusFinalized); err != nil {
		return fmt.Errorf("count active registrations: %w", err)
	}
	if active < topic.MaxTeams && topic.Status == models.TopicStatusRegistered {
		if _, err = tx.ExecContext(ctx, `UPDATE topics SET status = $1, updated_at = $2 WHERE id = $3`,
			models.TopicStatusPublished, now, topicID); err != nil {
			return fmt.Errorf("reopen topic registration: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit registration rejection: %w", err)
	}
	return nil
}

// Finalize moves an APPROVED registration to FINALIZED and marks both the
// topic and the team FINALIZED in one transaction.
func (r *RegistrationRepository) Finalize(ctx context.Context, id, topicID, teamID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration finalization: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE registrations SET status = $1 WHERE id = $2 AND status = $3`,
		models.RegistrationStatusFinalized, id, models.RegistrationStatusApproved)
	if err != nil {
		return fmt.Errorf("finalize registration: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check finalized registration rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE topics SET status = $1, updated_at = $2 WHERE id = $3`,
		models.TopicStatusFinalized, now, topicID); err != nil {
		return fmt.Errorf("mark topic finalized: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE teams SET status = $1, updated_at = $2 WHERE id = $3`,
		models.TeamStatusFinalized, now, teamID); err != nil {
		return fmt.Errorf("mark team finalized: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit registration finalization: %w", err)
	}
	return nil
}
