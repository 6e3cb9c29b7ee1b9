package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/minhtc/capstone-hub-api/internal/models"
)

// TopicRepository handles persistence of topics. Status transitions go
// through guarded UPDATE statements conditioned on the current status so a
// transition attempted from the wrong state (or racing with another one)
// affects zero rows instead of clobbering the topic.
type TopicRepository struct {
	db *sqlx.DB
}

// NewTopicRepository constructs the repository.
func NewTopicRepository(db *sqlx.DB) *TopicRepository {
	return &TopicRepository{db: db}
}

const topicColumns = `id, code, title_en, title_vi, description, requirements, status, max_teams, version,
	ai_compliance_pass, ai_compliance_feedback, ai_similarity_score, ai_similarity_details,
	supervisor_id, semester_id, created_at, updated_at, submitted_at, approved_at, published_at`

// FindByID returns a topic by its ID.
func (r *TopicRepository) FindByID(ctx context.Context, id string) (*models.Topic, error) {
	query := fmt.Sprintf(`SELECT %s FROM topics WHERE id = $1`, topicColumns)
	var topic models.Topic
	if err := r.db.GetContext(ctx, &topic, query, id); err != nil {
		return nil, err
	}
	return &topic, nil
}

// FindByCode returns a topic by its unique code.
func (r *TopicRepository) FindByCode(ctx context.Context, code string) (*models.Topic, error) {
	query := fmt.Sprintf(`SELECT %s FROM topics WHERE code = $1`, topicColumns)
	var topic models.Topic
	if err := r.db.GetContext(ctx, &topic, query, code); err != nil {
		return nil, err
	}
	return &topic, nil
}

// List returns topics filtered by the provided criteria.
func (r *TopicRepository) List(ctx context.Context, filter models.TopicFilter) ([]models.TopicDetail, int, error) {
	base := `FROM topics t
LEFT JOIN users u ON u.id = t.supervisor_id
LEFT JOIN semesters s ON s.id = t.semester_id`
	var conditions []string
	var args []interface{}

	if filter.SupervisorID != "" {
		conditions = append(conditions, fmt.Sprintf("t.supervisor_id = $%d", len(args)+1))
		args = append(args, filter.SupervisorID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("t.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "t.created_at",
		"code":       "t.code",
		"status":     "t.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "t.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT t.id, t.code, t.title_en, t.title_vi, t.description, t.requirements, t.status,
        t.max_teams, t.version, t.ai_compliance_pass, t.ai_compliance_feedback, t.ai_similarity_score,
        t.ai_similarity_details, t.supervisor_id, t.semester_id, t.created_at, t.updated_at, t.submitted_at,
        t.approved_at, t.published_at, u.full_name AS supervisor_name, s.code AS semester_code
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var topics []models.TopicDetail
	if err := r.db.SelectContext(ctx, &topics, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list topics: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count topics: %w", err)
	}
	return topics, total, nil
}

// FindAvailableForRegistration returns published topics for a semester that
// still have open slots.
func (r *TopicRepository) FindAvailableForRegistration(ctx context.Context, semesterID string) ([]models.Topic, error) {
	query := fmt.Sprintf(`SELECT %s FROM topics
		WHERE semester_id = $1 AND status = $2
		ORDER BY code`, topicColumns)
	var topics []models.Topic
	if err := r.db.SelectContext(ctx, &topics, query, semesterID, models.TopicStatusPublished); err != nil {
		return nil, fmt.Errorf("list available topics: %w", err)
	}
	return topics, nil
}

// CountByCodePrefix counts topics in a semester whose code starts with the
// given prefix. Used to allocate the next sequence number.
func (r *TopicRepository) CountByCodePrefix(ctx context.Context, semesterID, prefix string) (int, error) {
	const query = `SELECT COUNT(*) FROM topics WHERE semester_id = $1 AND code LIKE $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, semesterID, prefix+"%"); err != nil {
		return 0, fmt.Errorf("count topics by code prefix: %w", err)
	}
	return count, nil
}

// Create inserts a new topic in DRAFT at version 1.
func (r *TopicRepository) Create(ctx context.Context, topic *models.Topic) error {
	if topic.ID == "" {
		topic.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	topic.CreatedAt = now
	topic.UpdatedAt = now
	const query = `INSERT INTO topics (id, code, title_en, title_vi, description, requirements, status,
		max_teams, version, supervisor_id, semester_id, created_at, updated_at)
		VALUES (:id, :code, :title_en, :title_vi, :description, :requirements, :status,
		:max_teams, :version, :supervisor_id, :semester_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, topic); err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	return nil
}

// UpdateContent updates the editable proposal fields.
func (r *TopicRepository) UpdateContent(ctx context.Context, id, titleEn, titleVi, description, requirements string, maxTeams int) error {
	const query = `UPDATE topics SET title_en = $1, title_vi = $2, description = $3, requirements = $4,
		max_teams = $5, updated_at = $6 WHERE id = $7`
	return r.execExpectingRow(ctx, query, titleEn, titleVi, description, requirements, maxTeams, time.Now().UTC(), id)
}

// MarkProcessing moves a topic into PROCESSING for screening. Valid from
// DRAFT and AI_FAILED (first submission or retry without edits).
func (r *TopicRepository) MarkProcessing(ctx context.Context, id string) error {
	now := time.Now().UTC()
	const query = `UPDATE topics SET status = $1, submitted_at = $2, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5)`
	return r.execExpectingRow(ctx, query, models.TopicStatusProcessing, now, id,
		models.TopicStatusDraft, models.TopicStatusAIFailed)
}

// IncrementVersion bumps the topic version for resubmission and re-enters
// PROCESSING. Valid from AI_FAILED and REJECTED only; the version column
// never moves backwards.
func (r *TopicRepository) IncrementVersion(ctx context.Context, id string) error {
	now := time.Now().UTC()
	const query = `UPDATE topics SET version = version + 1, status = $1, submitted_at = $2, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5)`
	return r.execExpectingRow(ctx, query, models.TopicStatusProcessing, now, id,
		models.TopicStatusAIFailed, models.TopicStatusRejected)
}

// ApplyAIResult records screening output and the derived status. The guard on
// status and version drops stale callbacks: a result computed for an old
// version, or arriving after the topic already moved on, affects zero rows.
func (r *TopicRepository) ApplyAIResult(ctx context.Context, id string, version int, result models.AIResult, status models.TopicStatus) error {
	const query = `UPDATE topics SET ai_compliance_pass = $1, ai_compliance_feedback = $2,
		ai_similarity_score = $3, ai_similarity_details = $4, status = $5, updated_at = $6
		WHERE id = $7 AND status = $8 AND version = $9`
	return r.execExpectingRow(ctx, query, result.CompliancePass, result.ComplianceFeedback,
		result.SimilarityScore, result.SimilarityDetails, status, time.Now().UTC(),
		id, models.TopicStatusProcessing, version)
}

// TransitionStatus moves a topic from one expected status to another,
// stamping approved_at/published_at when entering those states.
func (r *TopicRepository) TransitionStatus(ctx context.Context, id string, from, to models.TopicStatus) error {
	now := time.Now().UTC()
	var query string
	switch to {
	case models.TopicStatusApproved:
		query = `UPDATE topics SET status = $1, approved_at = $2, updated_at = $2 WHERE id = $3 AND status = $4`
	case models.TopicStatusPublished:
		query = `UPDATE topics SET status = $1, published_at = $2, updated_at = $2 WHERE id = $3 AND status = $4`
	default:
		query = `UPDATE topics SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	}
	return r.execExpectingRow(ctx, query, to, now, id, from)
}

// Delete removes a topic.
func (r *TopicRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM topics WHERE id = $1`
	return r.execExpectingRow(ctx, query, id)
}

func (r *TopicRepository) execExpectingRow(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update topic: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated topic rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
