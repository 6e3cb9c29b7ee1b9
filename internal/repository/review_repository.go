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

// ReviewRepository handles persistence of peer reviews. Reviews are keyed by
// (topic, reviewer, topic_version); rows from superseded versions are never
// touched again.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const reviewColumns = `id, topic_id, reviewer_id, topic_version, decision, comment, assigned_at, reviewed_at`

// FindByID returns a review by its ID.
func (r *ReviewRepository) FindByID(ctx context.Context, id string) (*models.Review, error) {
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE id = $1`, reviewColumns)
	var review models.Review
	if err := r.db.GetContext(ctx, &review, query, id); err != nil {
		return nil, err
	}
	return &review, nil
}

// FindByTopicAndVersion returns every review bound to a topic version.
func (r *ReviewRepository) FindByTopicAndVersion(ctx context.Context, topicID string, version int) ([]models.Review, error) {
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE topic_id = $1 AND topic_version = $2 ORDER BY assigned_at`, reviewColumns)
	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, topicID, version); err != nil {
		return nil, fmt.Errorf("list reviews for topic version: %w", err)
	}
	return reviews, nil
}

// FindByTopic returns all reviews for a topic across versions.
func (r *ReviewRepository) FindByTopic(ctx context.Context, topicID string) ([]models.ReviewDetail, error) {
	const query = `SELECT v.id, v.topic_id, v.reviewer_id, v.topic_version, v.decision, v.comment,
		v.assigned_at, v.reviewed_at, t.code AS topic_code, t.title_en AS topic_title_en,
		u.full_name AS reviewer_name
		FROM reviews v
		LEFT JOIN topics t ON t.id = v.topic_id
		LEFT JOIN users u ON u.id = v.reviewer_id
		WHERE v.topic_id = $1
		ORDER BY v.topic_version DESC, v.assigned_at`
	var reviews []models.ReviewDetail
	if err := r.db.SelectContext(ctx, &reviews, query, topicID); err != nil {
		return nil, fmt.Errorf("list reviews for topic: %w", err)
	}
	return reviews, nil
}

// FindPendingByReviewer returns undecided reviews assigned to a reviewer.
func (r *ReviewRepository) FindPendingByReviewer(ctx context.Context, reviewerID string) ([]models.ReviewDetail, error) {
	const query = `SELECT v.id, v.topic_id, v.reviewer_id, v.topic_version, v.decision, v.comment,
		v.assigned_at, v.reviewed_at, t.code AS topic_code, t.title_en AS topic_title_en,
		u.full_name AS reviewer_name
		FROM reviews v
		LEFT JOIN topics t ON t.id = v.topic_id
		LEFT JOIN users u ON u.id = v.reviewer_id
		WHERE v.reviewer_id = $1 AND v.decision IS NULL
		ORDER BY v.assigned_at`
	var reviews []models.ReviewDetail
	if err := r.db.SelectContext(ctx, &reviews, query, reviewerID); err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	return reviews, nil
}

// ExistsForTopicVersion reports whether the reviewer already holds a review
// for this topic version.
func (r *ReviewRepository) ExistsForTopicVersion(ctx context.Context, topicID, reviewerID string, version int) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM reviews WHERE topic_id = $1 AND reviewer_id = $2 AND topic_version = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, topicID, reviewerID, version); err != nil {
		return false, fmt.Errorf("check review existence: %w", err)
	}
	return exists, nil
}

// CreateBatch inserts a set of pending reviews in one transaction. Either
// every assignment lands or none do.
func (r *ReviewRepository) CreateBatch(ctx context.Context, reviews []*models.Review) error {
	if len(reviews) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin review batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO reviews (id, topic_id, reviewer_id, topic_version, assigned_at)
		VALUES (:id, :topic_id, :reviewer_id, :topic_version, :assigned_at)`
	now := time.Now().UTC()
	for _, review := range reviews {
		if review.ID == "" {
			review.ID = uuid.NewString()
		}
		if review.AssignedAt.IsZero() {
			review.AssignedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, review); err != nil {
			return fmt.Errorf("create review: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit review batch: %w", err)
	}
	return nil
}

// Decide records a reviewer decision. The guard on decision IS NULL makes a
// second submission for the same review affect zero rows.
func (r *ReviewRepository) Decide(ctx context.Context, id string, decision models.ReviewDecision, comment string) error {
	const query = `UPDATE reviews SET decision = $1, comment = $2, reviewed_at = $3
		WHERE id = $4 AND decision IS NULL`
	result, err := r.db.ExecContext(ctx, query, decision, comment, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("record review decision: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check decided review rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
