package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhtc/capstone-hub-api/internal/models"
)

func newTopicRepoMock(t *testing.T) (*TopicRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewTopicRepository(sqlxDB), mock, func() { _ = sqlxDB.Close() }
}

func TestTopicCreateFillsIDAndTimestamps(t *testing.T) {
	repo, mock, closeFn := newTopicRepoMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO topics`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	topic := &models.Topic{Code: "SP26-SE001", TitleEn: "Campus Event Platform",
		Status: models.TopicStatusDraft, Version: 1, MaxTeams: 1,
		SupervisorID: "supervisor-1", SemesterID: "semester-1"}
	err := repo.Create(context.Background(), topic)
	require.NoError(t, err)
	assert.NotEmpty(t, topic.ID)
	assert.False(t, topic.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessingGuardedByStatus(t *testing.T) {
	repo, mock, closeFn := newTopicRepoMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE topics SET status`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkProcessing(context.Background(), "topic-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementVersionFromRejected(t *testing.T) {
	repo, mock, closeFn := newTopicRepoMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE topics SET version = version + 1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.IncrementVersion(context.Background(), "topic-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyAIResultDropsStaleCallback(t *testing.T) {
	repo, mock, closeFn := newTopicRepoMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE topics SET ai_compliance_pass`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ApplyAIResult(context.Background(), "topic-1", 1,
		models.AIResult{CompliancePass: true}, models.TopicStatusAIPassed)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusStampsApprovedAt(t *testing.T) {
	repo, mock, closeFn := newTopicRepoMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE topics SET status = $1, approved_at`)).
		WithArgs(string(models.TopicStatusApproved), sqlmock.AnyArg(), "topic-1", string(models.TopicStatusWaitingCoordinator)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.TransitionStatus(context.Background(), "topic-1",
		models.TopicStatusWaitingCoordinator, models.TopicStatusApproved)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusWrongSourceAffectsNoRows(t *testing.T) {
	repo, mock, closeFn := newTopicRepoMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE topics SET status`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.TransitionStatus(context.Background(), "topic-1",
		models.TopicStatusAIPassed, models.TopicStatusPendingReview)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByCodePrefix(t *testing.T) {
	repo, mock, closeFn := newTopicRepoMock(t)
	defer closeFn()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM topics`)).
		WithArgs("semester-1", "SP26-SE%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountByCodePrefix(context.Background(), "semester-1", "SP26-SE")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
