package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/minhtc/capstone-hub-api/internal/models"
	appErrors "github.com/minhtc/capstone-hub-api/pkg/errors"
)

type reviewRepository interface {
	FindByID(ctx context.Context, id string) (*models.Review, error)
	FindByTopicAndVersion(ctx context.Context, topicID string, version int) ([]models.Review, error)
	FindByTopic(ctx context.Context, topicID string) ([]models.ReviewDetail, error)
	FindPendingByReviewer(ctx context.Context, reviewerID string) ([]models.ReviewDetail, error)
	ExistsForTopicVersion(ctx context.Context, topicID, reviewerID string, version int) (bool, error)
	CreateBatch(ctx context.Context, reviews []*models.Review) error
	Decide(ctx context.Context, id string, decision models.ReviewDecision, comment string) error
}

type reviewerPool interface {
	FindActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

type reviewTopicRepository interface {
	FindByID(ctx context.Context, id string) (*models.Topic, error)
	TransitionStatus(ctx context.Context, id string, from, to models.TopicStatus) error
}

// DecisionRequest is a reviewer's verdict payload.
type DecisionRequest struct {
	Decision models.ReviewDecision `json:"decision" validate:"required,oneof=APPROVED REJECTED CONSIDER"`
	Comment  string                `json:"comment"`
}

// CoordinatorDecisionRequest is the coordinator's tie-break payload.
type CoordinatorDecisionRequest struct {
	Decision models.ReviewDecision `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Comment  string                `json:"comment"`
}

// DefaultReviewersPerTopic is how many reviewers a topic version gets unless
// configured otherwise.
const DefaultReviewersPerTopic = 2

// ReviewService assigns reviewers to screened topics and folds their verdicts
// back into the topic lifecycle. The aggregation rule is strict unanimity:
// anything short of full agreement escalates to a coordinator.
type ReviewService struct {
	repo              reviewRepository
	users             reviewerPool
	topics            reviewTopicRepository
	notify            notifier
	reviewersPerTopic int
	metrics           *MetricsService
	validator         *validator.Validate
	logger            *zap.Logger
}

// NewReviewService constructs ReviewService. Fewer than two reviewers would
// let a single verdict settle a topic, so the count is floored at the default.
func NewReviewService(repo reviewRepository, users reviewerPool, topics reviewTopicRepository, notify notifier, reviewersPerTopic int, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if reviewersPerTopic < 2 {
		reviewersPerTopic = DefaultReviewersPerTopic
	}
	return &ReviewService{repo: repo, users: users, topics: topics, notify: notify,
		reviewersPerTopic: reviewersPerTopic, metrics: metrics, validator: validate, logger: logger}
}

// AssignReviewers picks reviewers for an AI_PASSED topic and moves it into
// PENDING_REVIEW. The pool is every active REVIEWER except the topic's own
// supervisor; the pick is random.
func (s *ReviewService) AssignReviewers(ctx context.Context, topicID string) ([]models.Review, error) {
	topic, err := s.loadTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if topic.Status != models.TopicStatusAIPassed {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic is not ready for reviewer assignment")
	}

	pool, err := s.users.FindActiveByRole(ctx, models.RoleReviewer)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviewer pool")
	}
	candidates := make([]models.User, 0, len(pool))
	for _, u := range pool {
		if u.ID != topic.SupervisorID {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) < s.reviewersPerTopic {
		return nil, appErrors.Clone(appErrors.ErrInsufficientReviewers,
			fmt.Sprintf("need %d reviewers, only %d available", s.reviewersPerTopic, len(candidates)))
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	picks := make([]*models.Review, 0, s.reviewersPerTopic)
	for _, reviewer := range candidates {
		if len(picks) == s.reviewersPerTopic {
			break
		}
		exists, err := s.repo.ExistsForTopicVersion(ctx, topic.ID, reviewer.ID, topic.Version)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check reviewer assignment")
		}
		if exists {
			continue
		}
		picks = append(picks, &models.Review{
			TopicID:      topic.ID,
			ReviewerID:   reviewer.ID,
			TopicVersion: topic.Version,
		})
	}
	if len(picks) < s.reviewersPerTopic {
		return nil, appErrors.Clone(appErrors.ErrInsufficientReviewers, "reviewer pool exhausted during assignment")
	}

	// All assignments land in one transaction, so a failure leaves neither
	// stray PENDING reviews nor a topic stuck between states.
	if err := s.repo.CreateBatch(ctx, picks); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign reviewers")
	}

	if err := s.topics.TransitionStatus(ctx, topic.ID, models.TopicStatusAIPassed, models.TopicStatusPendingReview); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic is not ready for reviewer assignment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start peer review")
	}
	s.metrics.RecordTransition("topic", string(models.TopicStatusPendingReview))

	reviews := make([]models.Review, 0, len(picks))
	for _, review := range picks {
		reviews = append(reviews, *review)
		s.notify.Notify(review.ReviewerID, "New Review Assignment",
			fmt.Sprintf("You have been assigned to review topic %s.", topic.Code),
			"/reviews/"+review.ID)
	}
	s.logger.Info("reviewers assigned",
		zap.String("topic_id", topic.ID),
		zap.Int("topic_version", topic.Version),
		zap.Int("reviewers", len(reviews)))
	return reviews, nil
}

// SubmitDecision records a reviewer's verdict and, once every review of the
// current version is in, applies the aggregate outcome to the topic.
func (s *ReviewService) SubmitDecision(ctx context.Context, reviewID, reviewerID string, req DecisionRequest) (*models.Review, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	review, err := s.loadReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.ReviewerID != reviewerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "review belongs to another reviewer")
	}
	if !review.Pending() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "review has already been decided")
	}

	if err := s.repo.Decide(ctx, reviewID, req.Decision, req.Comment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "review has already been decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	if err := s.evaluateTopic(ctx, review.TopicID, review.TopicVersion); err != nil {
		return nil, err
	}
	return s.loadReview(ctx, reviewID)
}

// CoordinatorDecide resolves a WAITING_COORDINATOR topic with a final verdict.
func (s *ReviewService) CoordinatorDecide(ctx context.Context, topicID string, req CoordinatorDecisionRequest) (*models.Topic, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	topic, err := s.loadTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if topic.Status != models.TopicStatusWaitingCoordinator {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic is not awaiting a coordinator decision")
	}

	target := models.TopicStatusApproved
	if req.Decision == models.ReviewDecisionRejected {
		target = models.TopicStatusRejected
	}
	if err := s.topics.TransitionStatus(ctx, topicID, models.TopicStatusWaitingCoordinator, target); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic is not awaiting a coordinator decision")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record coordinator decision")
	}
	s.metrics.RecordTransition("topic", string(target))
	s.notifyOutcome(topic, target)
	return s.loadTopic(ctx, topicID)
}

// ListByTopic returns a topic's full review history.
func (s *ReviewService) ListByTopic(ctx context.Context, topicID string) ([]models.ReviewDetail, error) {
	reviews, err := s.repo.FindByTopic(ctx, topicID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}
	return reviews, nil
}

// ListPending returns a reviewer's open assignments.
func (s *ReviewService) ListPending(ctx context.Context, reviewerID string) ([]models.ReviewDetail, error) {
	reviews, err := s.repo.FindPendingByReviewer(ctx, reviewerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending reviews")
	}
	return reviews, nil
}

// Get returns a single review.
func (s *ReviewService) Get(ctx context.Context, id string) (*models.Review, error) {
	return s.loadReview(ctx, id)
}

// evaluateTopic applies the unanimity rule once all reviews of the version
// are decided: all APPROVED approves the topic, all REJECTED rejects it, any
// other mix escalates to the coordinator. The guarded transition out of
// PENDING_REVIEW means concurrent evaluators apply the outcome exactly once.
func (s *ReviewService) evaluateTopic(ctx context.Context, topicID string, version int) error {
	topic, err := s.loadTopic(ctx, topicID)
	if err != nil {
		return err
	}
	if topic.Status != models.TopicStatusPendingReview || topic.Version != version {
		return nil
	}

	reviews, err := s.repo.FindByTopicAndVersion(ctx, topicID, version)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviews for evaluation")
	}
	if len(reviews) < s.reviewersPerTopic {
		return nil
	}
	approved, rejected := 0, 0
	for _, review := range reviews {
		if review.Pending() {
			return nil
		}
		switch *review.Decision {
		case models.ReviewDecisionApproved:
			approved++
		case models.ReviewDecisionRejected:
			rejected++
		}
	}

	outcome := models.TopicStatusWaitingCoordinator
	switch {
	case approved == len(reviews):
		outcome = models.TopicStatusApproved
	case rejected == len(reviews):
		outcome = models.TopicStatusRejected
	}
	if err := s.topics.TransitionStatus(ctx, topicID, models.TopicStatusPendingReview, outcome); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Another submission already applied the outcome.
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply review outcome")
	}
	s.metrics.RecordTransition("topic", string(outcome))
	s.logger.Info("review outcome applied",
		zap.String("topic_id", topicID),
		zap.Int("topic_version", version),
		zap.String("outcome", string(outcome)))
	s.notifyOutcome(topic, outcome)
	return nil
}

func (s *ReviewService) notifyOutcome(topic *models.Topic, outcome models.TopicStatus) {
	switch outcome {
	case models.TopicStatusApproved:
		s.notify.Notify(topic.SupervisorID, "Topic Approved",
			fmt.Sprintf("Your topic %s has been approved.", topic.Code), "/topics/"+topic.ID)
	case models.TopicStatusRejected:
		s.notify.Notify(topic.SupervisorID, "Topic Rejected",
			fmt.Sprintf("Your topic %s has been rejected. You may revise and resubmit it.", topic.Code), "/topics/"+topic.ID)
	case models.TopicStatusWaitingCoordinator:
		s.notify.Notify(topic.SupervisorID, "Topic Escalated",
			fmt.Sprintf("Reviews of your topic %s were split; a coordinator will decide.", topic.Code), "/topics/"+topic.ID)
	}
}

func (s *ReviewService) loadReview(ctx context.Context, id string) (*models.Review, error) {
	review, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "review not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review")
	}
	return review, nil
}

func (s *ReviewService) loadTopic(ctx context.Context, id string) (*models.Topic, error) {
	topic, err := s.topics.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic")
	}
	return topic, nil
}
