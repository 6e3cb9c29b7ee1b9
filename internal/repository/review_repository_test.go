package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhtc/capstone-hub-api/internal/models"
)

func newReviewRepoMock(t *testing.T) (*ReviewRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewReviewRepository(sqlxDB), mock, func() { _ = sqlxDB.Close() }
}

func TestReviewDecideRecordsVerdict(t *testing.T) {
	repo, mock, closeFn := newReviewRepoMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reviews SET decision`)).
		WithArgs(string(models.ReviewDecisionApproved), "solid proposal", sqlmock.AnyArg(), "review-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Decide(context.Background(), "review-1", models.ReviewDecisionApproved, "solid proposal")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewDecideSecondSubmissionAffectsNoRows(t *testing.T) {
	repo, mock, closeFn := newReviewRepoMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reviews SET decision`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Decide(context.Background(), "review-1", models.ReviewDecisionRejected, "")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewCreateBatchCommitsAllRows(t *testing.T) {
	repo, mock, closeFn := newReviewRepoMock(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO reviews`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO reviews`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reviews := []*models.Review{
		{TopicID: "topic-1", ReviewerID: "reviewer-1", TopicVersion: 1},
		{TopicID: "topic-1", ReviewerID: "reviewer-2", TopicVersion: 1},
	}
	err := repo.CreateBatch(context.Background(), reviews)
	require.NoError(t, err)
	for _, review := range reviews {
		assert.NotEmpty(t, review.ID)
		assert.False(t, review.AssignedAt.IsZero())
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewCreateBatchRollsBackOnFailure(t *testing.T) {
	repo, mock, closeFn := newReviewRepoMock(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO reviews`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO reviews`)).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	reviews := []*models.Review{
		{TopicID: "topic-1", ReviewerID: "reviewer-1", TopicVersion: 1},
		{TopicID: "topic-1", ReviewerID: "reviewer-2", TopicVersion: 1},
	}
	err := repo.CreateBatch(context.Background(), reviews)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewExistsForTopicVersion(t *testing.T) {
	repo, mock, closeFn := newReviewRepoMock(t)
	defer closeFn()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("topic-1", "reviewer-1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForTopicVersion(context.Background(), "topic-1", "reviewer-1", 2)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewFindByTopicAndVersion(t *testing.T) {
	repo, mock, closeFn := newReviewRepoMock(t)
	defer closeFn()

	assigned := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "topic_id", "reviewer_id", "topic_version", "decision", "assigned_at"}).
		AddRow("review-1", "topic-1", "reviewer-1", 1, string(models.ReviewDecisionApproved), assigned).
		AddRow("review-2", "topic-1", "reviewer-2", 1, nil, assigned)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, topic_id, reviewer_id`)).
		WithArgs("topic-1", 1).
		WillReturnRows(rows)

	reviews, err := repo.FindByTopicAndVersion(context.Background(), "topic-1", 1)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	require.NotNil(t, reviews[0].Decision)
	assert.Equal(t, models.ReviewDecisionApproved, *reviews[0].Decision)
	assert.True(t, reviews[1].Pending())
	assert.NoError(t, mock.ExpectationsWereMet())
}
