package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minhtc/capstone-hub-api/internal/models"
)

type screeningTopicsStub struct {
	topics map[string]*models.Topic
	listed []models.TopicDetail
}

func (s *screeningTopicsStub) FindByID(ctx context.Context, id string) (*models.Topic, error) {
	if topic, ok := s.topics[id]; ok {
		copied := *topic
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *screeningTopicsStub) List(ctx context.Context, filter models.TopicFilter) ([]models.TopicDetail, int, error) {
	return s.listed, len(s.listed), nil
}

type applierStub struct {
	result   *models.AIResult
	returned *models.Topic
}

func (s *applierStub) ApplyAIResult(ctx context.Context, id string, result models.AIResult) (*models.Topic, error) {
	s.result = &result
	if s.returned != nil {
		return s.returned, nil
	}
	status := models.TopicStatusAIFailed
	if result.CompliancePass && (result.SimilarityScore == nil || *result.SimilarityScore < SimilarityThresholdDefault) {
		status = models.TopicStatusAIPassed
	}
	return &models.Topic{ID: id, Status: status}, nil
}

type assignerStub struct {
	assigned []string
}

func (s *assignerStub) AssignReviewers(ctx context.Context, topicID string) ([]models.Review, error) {
	s.assigned = append(s.assigned, topicID)
	return nil, nil
}

type similarityStub struct {
	score   *float64
	details string
	called  int
}

func (s *similarityStub) Score(ctx context.Context, topic *models.Topic) (*float64, string, error) {
	s.called++
	return s.score, s.details, nil
}

func compliantTopic() *models.Topic {
	return &models.Topic{
		ID:           "topic-1",
		TitleEn:      "Smart Campus Energy Dashboard",
		TitleVi:      "Bang dieu khien nang luong",
		Description:  strings.Repeat("a well formed description ", 10),
		Requirements: "Go, PostgreSQL, Docker",
		Status:       models.TopicStatusProcessing,
		Version:      1,
	}
}

func TestScreenCompliantTopicPassesAndAssignsReviewers(t *testing.T) {
	topic := compliantTopic()
	topics := &screeningTopicsStub{topics: map[string]*models.Topic{topic.ID: topic}}
	applier := &applierStub{}
	assigner := &assignerStub{}
	similarity := &similarityStub{score: floatPtr(12), details: "Closest match: SP26-SE002 (12.0% overlap)."}

	service := NewScreeningService(topics, applier, assigner, similarity, 1, 0, zap.NewNop())
	err := service.Screen(context.Background(), topic.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, applier.result)
	assert.True(t, applier.result.CompliancePass)
	assert.Equal(t, 1, similarity.called)
	assert.Equal(t, []string{"topic-1"}, assigner.assigned)
}

func TestScreenSkipsStaleJob(t *testing.T) {
	topic := compliantTopic()
	topic.Version = 2
	topics := &screeningTopicsStub{topics: map[string]*models.Topic{topic.ID: topic}}
	applier := &applierStub{}

	service := NewScreeningService(topics, applier, &assignerStub{}, nil, 1, 0, zap.NewNop())
	err := service.Screen(context.Background(), topic.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, applier.result)
}

func TestScreenSkipsNonProcessingTopic(t *testing.T) {
	topic := compliantTopic()
	topic.Status = models.TopicStatusDraft
	topics := &screeningTopicsStub{topics: map[string]*models.Topic{topic.ID: topic}}
	applier := &applierStub{}

	service := NewScreeningService(topics, applier, &assignerStub{}, nil, 1, 0, zap.NewNop())
	err := service.Screen(context.Background(), topic.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, applier.result)
}

func TestScreenShortTitleFailsCompliance(t *testing.T) {
	topic := compliantTopic()
	topic.TitleEn = "Too short"
	topics := &screeningTopicsStub{topics: map[string]*models.Topic{topic.ID: topic}}
	applier := &applierStub{}
	assigner := &assignerStub{}
	similarity := &similarityStub{}

	service := NewScreeningService(topics, applier, assigner, similarity, 1, 0, zap.NewNop())
	err := service.Screen(context.Background(), topic.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, applier.result)
	assert.False(t, applier.result.CompliancePass)
	assert.Contains(t, applier.result.ComplianceFeedback, "English title")
	assert.Zero(t, similarity.called)
	assert.Empty(t, assigner.assigned)
}

func TestScreenDescriptionBounds(t *testing.T) {
	for name, description := range map[string]string{
		"too short": "short",
		"too long":  strings.Repeat("x", maxDescriptionLength+1),
	} {
		t.Run(name, func(t *testing.T) {
			topic := compliantTopic()
			topic.Description = description
			topics := &screeningTopicsStub{topics: map[string]*models.Topic{topic.ID: topic}}
			applier := &applierStub{}

			service := NewScreeningService(topics, applier, &assignerStub{}, nil, 1, 0, zap.NewNop())
			require.NoError(t, service.Screen(context.Background(), topic.ID, 1))
			require.NotNil(t, applier.result)
			assert.False(t, applier.result.CompliancePass)
			assert.Contains(t, applier.result.ComplianceFeedback, "Description")
		})
	}
}

func TestScreenEmptyRequirementsFailsCompliance(t *testing.T) {
	topic := compliantTopic()
	topic.Requirements = "   "
	topics := &screeningTopicsStub{topics: map[string]*models.Topic{topic.ID: topic}}
	applier := &applierStub{}

	service := NewScreeningService(topics, applier, &assignerStub{}, nil, 1, 0, zap.NewNop())
	require.NoError(t, service.Screen(context.Background(), topic.ID, 1))
	require.NotNil(t, applier.result)
	assert.False(t, applier.result.CompliancePass)
	assert.Contains(t, applier.result.ComplianceFeedback, "Requirements")
}

func TestScreenHighSimilarityDoesNotAssignReviewers(t *testing.T) {
	topic := compliantTopic()
	topics := &screeningTopicsStub{topics: map[string]*models.Topic{topic.ID: topic}}
	applier := &applierStub{}
	assigner := &assignerStub{}
	similarity := &similarityStub{score: floatPtr(95)}

	service := NewScreeningService(topics, applier, assigner, similarity, 1, 0, zap.NewNop())
	require.NoError(t, service.Screen(context.Background(), topic.ID, 1))
	require.NotNil(t, applier.result)
	assert.True(t, applier.result.CompliancePass)
	assert.Empty(t, assigner.assigned)
}

func TestLexicalSimilarityIdenticalTopics(t *testing.T) {
	topic := compliantTopic()
	topics := &screeningTopicsStub{listed: []models.TopicDetail{
		{Topic: models.Topic{ID: "topic-2", Code: "SP26-SE002",
			TitleEn: topic.TitleEn, Description: topic.Description}},
	}}

	checker := NewLexicalSimilarityChecker(topics)
	score, details, err := checker.Score(context.Background(), topic)
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.InDelta(t, 100, *score, 0.01)
	assert.Contains(t, details, "SP26-SE002")
}

func TestLexicalSimilarityIgnoresSelf(t *testing.T) {
	topic := compliantTopic()
	topics := &screeningTopicsStub{listed: []models.TopicDetail{
		{Topic: models.Topic{ID: topic.ID, Code: topic.Code,
			TitleEn: topic.TitleEn, Description: topic.Description}},
	}}

	checker := NewLexicalSimilarityChecker(topics)
	score, details, err := checker.Score(context.Background(), topic)
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Zero(t, *score)
	assert.Equal(t, "No comparable topics found.", details)
}

func TestLexicalSimilarityDisjointTopics(t *testing.T) {
	topic := compliantTopic()
	topics := &screeningTopicsStub{listed: []models.TopicDetail{
		{Topic: models.Topic{ID: "topic-2", Code: "SP26-SE002",
			TitleEn: "Blockchain Voting Ledger", Description: "entirely different words about distributed consensus voting chains"}},
	}}

	checker := NewLexicalSimilarityChecker(topics)
	score, _, err := checker.Score(context.Background(), topic)
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Zero(t, *score)
}

func TestTokenizeDropsShortWordsAndPunctuation(t *testing.T) {
	tokens := tokenize("The API, the api! and a dashboard.")
	assert.Contains(t, tokens, "dashboard")
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "api,")
	assert.Len(t, tokens, 1)
}

func TestJaccard(t *testing.T) {
	a := map[string]struct{}{"alpha": {}, "beta": {}, "gamma": {}}
	b := map[string]struct{}{"beta": {}, "gamma": {}, "delta": {}}
	assert.InDelta(t, 0.5, jaccard(a, b), 0.001)
	assert.Zero(t, jaccard(a, map[string]struct{}{}))
}
