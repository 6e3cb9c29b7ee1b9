package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/minhtc/capstone-hub-api/internal/models"
	appErrors "github.com/minhtc/capstone-hub-api/pkg/errors"
)

type topicRepository interface {
	FindByID(ctx context.Context, id string) (*models.Topic, error)
	FindByCode(ctx context.Context, code string) (*models.Topic, error)
	List(ctx context.Context, filter models.TopicFilter) ([]models.TopicDetail, int, error)
	FindAvailableForRegistration(ctx context.Context, semesterID string) ([]models.Topic, error)
	CountByCodePrefix(ctx context.Context, semesterID, prefix string) (int, error)
	Create(ctx context.Context, topic *models.Topic) error
	UpdateContent(ctx context.Context, id, titleEn, titleVi, description, requirements string, maxTeams int) error
	MarkProcessing(ctx context.Context, id string) error
	IncrementVersion(ctx context.Context, id string) error
	ApplyAIResult(ctx context.Context, id string, version int, result models.AIResult, status models.TopicStatus) error
	TransitionStatus(ctx context.Context, id string, from, to models.TopicStatus) error
}

type semesterReader interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	FindActive(ctx context.Context) (*models.Semester, error)
}

// notifier delivers a fire-and-forget message to one user. Delivery failures
// never surface to the caller.
type notifier interface {
	Notify(userID, title, message, link string)
}

// CreateTopicRequest describes a new proposal draft.
type CreateTopicRequest struct {
	SemesterID   string `json:"semester_id" validate:"required"`
	TitleEn      string `json:"title_en" validate:"required"`
	TitleVi      string `json:"title_vi" validate:"required"`
	Description  string `json:"description"`
	Requirements string `json:"requirements"`
	MaxTeams     int    `json:"max_teams" validate:"omitempty,min=1"`
	MajorPrefix  string `json:"major_prefix"`
}

// UpdateTopicRequest describes editable proposal fields.
type UpdateTopicRequest struct {
	TitleEn      string `json:"title_en" validate:"required"`
	TitleVi      string `json:"title_vi" validate:"required"`
	Description  string `json:"description"`
	Requirements string `json:"requirements"`
	MaxTeams     int    `json:"max_teams" validate:"omitempty,min=1"`
}

// SimilarityThresholdDefault is the score at which a proposal is considered
// a duplicate of prior work.
const SimilarityThresholdDefault = 80.0

// TopicService owns the topic state machine: it validates every transition
// against the current status before applying it.
type TopicService struct {
	repo                topicRepository
	semesters           semesterReader
	notify              notifier
	cache               *CacheService
	similarityThreshold float64
	metrics             *MetricsService
	validator           *validator.Validate
	logger              *zap.Logger
}

// NewTopicService constructs TopicService.
func NewTopicService(repo topicRepository, semesters semesterReader, notify notifier, cache *CacheService, similarityThreshold float64, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *TopicService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if similarityThreshold <= 0 {
		similarityThreshold = SimilarityThresholdDefault
	}
	return &TopicService{repo: repo, semesters: semesters, notify: notify, cache: cache,
		similarityThreshold: similarityThreshold, metrics: metrics, validator: validate, logger: logger}
}

// Create registers a new DRAFT proposal for a supervisor, allocating the next
// topic code in the semester: <semester>-<major><seq>, e.g. SP26-SE005.
func (s *TopicService) Create(ctx context.Context, supervisorID string, req CreateTopicRequest) (*models.Topic, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid topic payload")
	}
	semester, err := s.semesters.FindByID(ctx, req.SemesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}

	prefix := req.MajorPrefix
	if prefix == "" {
		prefix = "SE"
	}
	codePrefix := fmt.Sprintf("%s-%s", semester.Code, prefix)
	count, err := s.repo.CountByCodePrefix(ctx, semester.ID, codePrefix)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate topic code")
	}

	maxTeams := req.MaxTeams
	if maxTeams < 1 {
		maxTeams = 1
	}
	topic := &models.Topic{
		Code:         fmt.Sprintf("%s%03d", codePrefix, count+1),
		TitleEn:      req.TitleEn,
		TitleVi:      req.TitleVi,
		Description:  req.Description,
		Requirements: req.Requirements,
		Status:       models.TopicStatusDraft,
		MaxTeams:     maxTeams,
		Version:      1,
		SupervisorID: supervisorID,
		SemesterID:   semester.ID,
	}
	if err := s.repo.Create(ctx, topic); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create topic")
	}
	return topic, nil
}

// Get returns a topic by ID.
func (s *TopicService) Get(ctx context.Context, id string) (*models.Topic, error) {
	return s.loadTopic(ctx, id)
}

// GetByCode returns a topic by its unique code.
func (s *TopicService) GetByCode(ctx context.Context, code string) (*models.Topic, error) {
	topic, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic")
	}
	return topic, nil
}

// List returns topics with pagination metadata.
func (s *TopicService) List(ctx context.Context, filter models.TopicFilter) ([]models.TopicDetail, *models.Pagination, error) {
	topics, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list topics")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return topics, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListAvailable returns published topics of the active semester, served from
// cache when possible.
func (s *TopicService) ListAvailable(ctx context.Context) ([]models.Topic, error) {
	semester, err := s.semesters.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.Topic{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active semester")
	}

	cacheKey := publishedTopicsCacheKey(semester.ID)
	var cached []models.Topic
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	topics, err := s.repo.FindAvailableForRegistration(ctx, semester.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available topics")
	}
	s.cache.Set(ctx, cacheKey, topics)
	return topics, nil
}

// Update edits proposal content. Only the owning supervisor may edit, and
// only while the topic sits in an editable state.
func (s *TopicService) Update(ctx context.Context, id, actorID string, req UpdateTopicRequest) (*models.Topic, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid topic payload")
	}
	topic, err := s.loadTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if topic.SupervisorID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning supervisor can edit this topic")
	}
	switch topic.Status {
	case models.TopicStatusDraft, models.TopicStatusAIFailed, models.TopicStatusRejected:
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic can no longer be edited")
	}
	maxTeams := req.MaxTeams
	if maxTeams < 1 {
		maxTeams = topic.MaxTeams
	}
	if err := s.repo.UpdateContent(ctx, id, req.TitleEn, req.TitleVi, req.Description, req.Requirements, maxTeams); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update topic")
	}
	return s.loadTopic(ctx, id)
}

// Submit moves a DRAFT (or AI_FAILED) topic into PROCESSING. The semester's
// topic-submission window must be open. The caller is expected to dispatch
// the screening request afterwards; screening results come back later through
// ApplyAIResult.
func (s *TopicService) Submit(ctx context.Context, id, actorID string) (*models.Topic, error) {
	topic, err := s.loadTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if topic.SupervisorID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning supervisor can submit this topic")
	}
	if topic.Status != models.TopicStatusDraft && topic.Status != models.TopicStatusAIFailed {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic cannot be submitted from its current state")
	}
	if err := s.checkSubmissionWindow(ctx, topic.SemesterID); err != nil {
		return nil, err
	}
	if err := s.repo.MarkProcessing(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic cannot be submitted from its current state")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit topic")
	}
	s.metrics.RecordTransition("topic", string(models.TopicStatusProcessing))
	return s.loadTopic(ctx, id)
}

// Resubmit bumps the version of an AI_FAILED or REJECTED topic and sends it
// back through screening. Reviews of prior versions stay untouched.
func (s *TopicService) Resubmit(ctx context.Context, id, actorID string) (*models.Topic, error) {
	topic, err := s.loadTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if topic.SupervisorID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning supervisor can resubmit this topic")
	}
	if topic.Status != models.TopicStatusAIFailed && topic.Status != models.TopicStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic cannot be resubmitted from its current state")
	}
	if err := s.checkSubmissionWindow(ctx, topic.SemesterID); err != nil {
		return nil, err
	}
	if err := s.repo.IncrementVersion(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic cannot be resubmitted from its current state")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit topic")
	}
	s.metrics.RecordTransition("topic", string(models.TopicStatusProcessing))
	return s.loadTopic(ctx, id)
}

// ApplyAIResult records a screening outcome. The topic must still be in
// PROCESSING and the result must target the current version; anything else is
// a stale callback and is rejected.
func (s *TopicService) ApplyAIResult(ctx context.Context, id string, result models.AIResult) (*models.Topic, error) {
	topic, err := s.loadTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if topic.Status != models.TopicStatusProcessing {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic is not awaiting screening results")
	}
	if result.TopicVersion != 0 && result.TopicVersion != topic.Version {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "screening result targets a superseded topic version")
	}

	status := models.TopicStatusAIFailed
	if result.CompliancePass && (result.SimilarityScore == nil || *result.SimilarityScore < s.similarityThreshold) {
		status = models.TopicStatusAIPassed
	}
	if err := s.repo.ApplyAIResult(ctx, id, topic.Version, result, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic is not awaiting screening results")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record screening result")
	}
	s.metrics.RecordTransition("topic", string(status))

	if status == models.TopicStatusAIFailed {
		s.notify.Notify(topic.SupervisorID, "Topic Screening Failed",
			fmt.Sprintf("Your topic %s did not pass automated screening.", topic.Code),
			"/topics/"+topic.ID)
	}
	return s.loadTopic(ctx, id)
}

// Publish makes an APPROVED topic visible for team registration.
func (s *TopicService) Publish(ctx context.Context, id string) (*models.Topic, error) {
	topic, err := s.loadTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if topic.Status != models.TopicStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only approved topics can be published")
	}
	if err := s.repo.TransitionStatus(ctx, id, models.TopicStatusApproved, models.TopicStatusPublished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "only approved topics can be published")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish topic")
	}
	s.metrics.RecordTransition("topic", string(models.TopicStatusPublished))
	s.cache.Invalidate(ctx, publishedTopicsCachePattern)
	s.notify.Notify(topic.SupervisorID, "Topic Published",
		fmt.Sprintf("Your topic %s is now open for team registration.", topic.Code),
		"/topics/"+topic.ID)
	return s.loadTopic(ctx, id)
}

// InvalidateAvailable drops the published-topic cache. Called by the
// registration flow whenever a topic's slot availability changes.
func (s *TopicService) InvalidateAvailable(ctx context.Context) {
	s.cache.Invalidate(ctx, publishedTopicsCachePattern)
}

func (s *TopicService) checkSubmissionWindow(ctx context.Context, semesterID string) error {
	semester, err := s.semesters.FindByID(ctx, semesterID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	if !semester.TopicSubmissionWindowOpen(time.Now().UTC()) {
		return appErrors.Clone(appErrors.ErrInvalidState, "the topic submission window is closed")
	}
	return nil
}

func (s *TopicService) loadTopic(ctx context.Context, id string) (*models.Topic, error) {
	topic, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic")
	}
	return topic, nil
}

const publishedTopicsCachePattern = "topics:published:*"

func publishedTopicsCacheKey(semesterID string) string {
	return "topics:published:" + semesterID
}
