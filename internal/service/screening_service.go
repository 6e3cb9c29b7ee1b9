package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/minhtc/capstone-hub-api/internal/models"
	"github.com/minhtc/capstone-hub-api/pkg/jobs"
)

// Compliance bounds for topic content.
const (
	minTitleLength       = 10
	minDescriptionLength = 200
	maxDescriptionLength = 2000
)

type aiResultApplier interface {
	ApplyAIResult(ctx context.Context, id string, result models.AIResult) (*models.Topic, error)
}

type reviewerAssigner interface {
	AssignReviewers(ctx context.Context, topicID string) ([]models.Review, error)
}

type screeningTopicReader interface {
	FindByID(ctx context.Context, id string) (*models.Topic, error)
	List(ctx context.Context, filter models.TopicFilter) ([]models.TopicDetail, int, error)
}

// SimilarityChecker scores a proposal against prior work, 0-100. A nil score
// means the check could not produce a verdict and similarity is not held
// against the topic.
type SimilarityChecker interface {
	Score(ctx context.Context, topic *models.Topic) (*float64, string, error)
}

type screeningPayload struct {
	TopicID string
	Version int
}

// ScreeningService runs automated screening asynchronously: compliance checks
// on the proposal text plus a similarity score, fed back into the topic
// lifecycle. On a pass, reviewer assignment follows immediately.
type ScreeningService struct {
	topics     screeningTopicReader
	applier    aiResultApplier
	assigner   reviewerAssigner
	similarity SimilarityChecker
	queue      *jobs.Queue[screeningPayload]
	logger     *zap.Logger
}

// NewScreeningService constructs ScreeningService and its worker queue. Call
// Start before dispatching and Stop on shutdown.
func NewScreeningService(topics screeningTopicReader, applier aiResultApplier, assigner reviewerAssigner,
	similarity SimilarityChecker, workers, retries int, logger *zap.Logger) *ScreeningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ScreeningService{topics: topics, applier: applier, assigner: assigner, similarity: similarity, logger: logger}
	s.queue = jobs.NewQueue("screening", s.handle, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		Logger:     logger,
	})
	return s
}

// Start launches the screening workers.
func (s *ScreeningService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the screening workers.
func (s *ScreeningService) Stop() {
	s.queue.Stop()
}

// Dispatch queues a screening run for a topic version.
func (s *ScreeningService) Dispatch(ctx context.Context, topicID string, version int) error {
	return s.queue.Enqueue(screeningPayload{TopicID: topicID, Version: version})
}

func (s *ScreeningService) handle(ctx context.Context, job jobs.Job[screeningPayload]) error {
	return s.Screen(ctx, job.Payload.TopicID, job.Payload.Version)
}

// Screen runs the checks for a topic version and applies the outcome. A
// result for a superseded version is dropped by the applier's version guard;
// that is not an error here.
func (s *ScreeningService) Screen(ctx context.Context, topicID string, version int) error {
	topic, err := s.topics.FindByID(ctx, topicID)
	if err != nil {
		return fmt.Errorf("load topic for screening: %w", err)
	}
	if topic.Version != version || topic.Status != models.TopicStatusProcessing {
		s.logger.Info("skipping stale screening job",
			zap.String("topic_id", topicID),
			zap.Int("job_version", version),
			zap.Int("topic_version", topic.Version))
		return nil
	}

	result := models.AIResult{TopicVersion: version}
	issues := s.complianceIssues(topic)
	if len(issues) == 0 {
		result.CompliancePass = true
		result.ComplianceFeedback = "All compliance checks passed."
	} else {
		result.ComplianceFeedback = strings.Join(issues, " ")
	}

	if result.CompliancePass && s.similarity != nil {
		score, details, err := s.similarity.Score(ctx, topic)
		if err != nil {
			s.logger.Warn("similarity check failed", zap.String("topic_id", topicID), zap.Error(err))
		} else {
			result.SimilarityScore = score
			result.SimilarityDetails = details
		}
	}

	updated, err := s.applier.ApplyAIResult(ctx, topicID, result)
	if err != nil {
		return fmt.Errorf("apply screening result: %w", err)
	}
	if updated.Status != models.TopicStatusAIPassed {
		return nil
	}
	if _, err := s.assigner.AssignReviewers(ctx, topicID); err != nil {
		return fmt.Errorf("assign reviewers after screening: %w", err)
	}
	return nil
}

func (s *ScreeningService) complianceIssues(topic *models.Topic) []string {
	var issues []string
	if utf8.RuneCountInString(topic.TitleEn) < minTitleLength {
		issues = append(issues, fmt.Sprintf("English title must be at least %d characters.", minTitleLength))
	}
	if utf8.RuneCountInString(topic.TitleVi) < minTitleLength {
		issues = append(issues, fmt.Sprintf("Vietnamese title must be at least %d characters.", minTitleLength))
	}
	descLen := utf8.RuneCountInString(topic.Description)
	if descLen < minDescriptionLength || descLen > maxDescriptionLength {
		issues = append(issues, fmt.Sprintf("Description must be between %d and %d characters.", minDescriptionLength, maxDescriptionLength))
	}
	if strings.TrimSpace(topic.Requirements) == "" {
		issues = append(issues, "Requirements must not be empty.")
	}
	return issues
}

// LexicalSimilarityChecker scores proposals by word overlap against other
// topics in the same semester. It is a stand-in for an external similarity
// service and reports the highest-overlap match.
type LexicalSimilarityChecker struct {
	topics screeningTopicReader
}

// NewLexicalSimilarityChecker constructs the checker.
func NewLexicalSimilarityChecker(topics screeningTopicReader) *LexicalSimilarityChecker {
	return &LexicalSimilarityChecker{topics: topics}
}

// Score compares the topic's title and description tokens against every other
// topic of the semester and returns the best Jaccard overlap as a percentage.
func (c *LexicalSimilarityChecker) Score(ctx context.Context, topic *models.Topic) (*float64, string, error) {
	others, _, err := c.topics.List(ctx, models.TopicFilter{SemesterID: topic.SemesterID, PageSize: 500})
	if err != nil {
		return nil, "", fmt.Errorf("list topics for similarity: %w", err)
	}

	own := tokenize(topic.TitleEn + " " + topic.Description)
	if len(own) == 0 {
		return nil, "", nil
	}

	best := 0.0
	bestCode := ""
	for _, other := range others {
		if other.ID == topic.ID {
			continue
		}
		score := jaccard(own, tokenize(other.TitleEn+" "+other.Description)) * 100
		if score > best {
			best = score
			bestCode = other.Code
		}
	}
	if bestCode == "" {
		return &best, "No comparable topics found.", nil
	}
	return &best, fmt.Sprintf("Closest match: %s (%.1f%% overlap).", bestCode, best), nil
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()[]\"'")
		if utf8.RuneCountInString(word) > 3 {
			tokens[word] = struct{}{}
		}
	}
	return tokens
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
