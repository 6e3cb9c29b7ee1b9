package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/minhtc/capstone-hub-api/internal/models"
)

// SemesterRepository handles persistence of semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs the repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

const semesterColumns = `id, code, name, start_date, end_date, is_active,
	registration_open, registration_close, topic_submission_open, topic_submission_close,
	created_at, updated_at`

// FindByID returns a semester by its ID.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	query := fmt.Sprintf(`SELECT %s FROM semesters WHERE id = $1`, semesterColumns)
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// FindByCode returns a semester by its unique code.
func (r *SemesterRepository) FindByCode(ctx context.Context, code string) (*models.Semester, error) {
	query := fmt.Sprintf(`SELECT %s FROM semesters WHERE code = $1`, semesterColumns)
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, code); err != nil {
		return nil, err
	}
	return &semester, nil
}

// FindActive returns the currently active semester, if any.
func (r *SemesterRepository) FindActive(ctx context.Context) (*models.Semester, error) {
	query := fmt.Sprintf(`SELECT %s FROM semesters WHERE is_active = true LIMIT 1`, semesterColumns)
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query); err != nil {
		return nil, err
	}
	return &semester, nil
}

// List returns all semesters ordered by start date descending.
func (r *SemesterRepository) List(ctx context.Context) ([]models.Semester, error) {
	query := fmt.Sprintf(`SELECT %s FROM semesters ORDER BY start_date DESC`, semesterColumns)
	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query); err != nil {
		return nil, fmt.Errorf("list semesters: %w", err)
	}
	return semesters, nil
}

// ExistsByCode reports whether a semester with the given code exists.
func (r *SemesterRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM semesters WHERE code = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		return false, fmt.Errorf("check semester code: %w", err)
	}
	return exists, nil
}

// Create inserts a new semester.
func (r *SemesterRepository) Create(ctx context.Context, semester *models.Semester) error {
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	semester.CreatedAt = now
	semester.UpdatedAt = now
	const query = `INSERT INTO semesters (id, code, name, start_date, end_date, is_active, created_at, updated_at)
		VALUES (:id, :code, :name, :start_date, :end_date, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("create semester: %w", err)
	}
	return nil
}

// SetActive activates one semester and deactivates every other in a single
// transaction so at most one semester is active at a time.
func (r *SemesterRepository) SetActive(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin semester activation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE semesters SET is_active = false, updated_at = $1 WHERE is_active = true`, now); err != nil {
		return fmt.Errorf("deactivate semesters: %w", err)
	}

	result, err := tx.ExecContext(ctx, `UPDATE semesters SET is_active = true, updated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("activate semester: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check activated semester rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit semester activation: %w", err)
	}
	return nil
}

// UpdateRegistrationPeriod sets the registration window.
func (r *SemesterRepository) UpdateRegistrationPeriod(ctx context.Context, id string, open, close time.Time) error {
	const query = `UPDATE semesters SET registration_open = $1, registration_close = $2, updated_at = $3 WHERE id = $4`
	return r.execExpectingRow(ctx, query, open, close, time.Now().UTC(), id)
}

// UpdateTopicSubmissionPeriod sets the topic submission window.
func (r *SemesterRepository) UpdateTopicSubmissionPeriod(ctx context.Context, id string, open, close time.Time) error {
	const query = `UPDATE semesters SET topic_submission_open = $1, topic_submission_close = $2, updated_at = $3 WHERE id = $4`
	return r.execExpectingRow(ctx, query, open, close, time.Now().UTC(), id)
}

func (r *SemesterRepository) execExpectingRow(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update semester: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated semester rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
