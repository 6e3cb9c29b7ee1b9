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
	"github.com/minhtc/capstone-hub-api/internal/repository"
	appErrors "github.com/minhtc/capstone-hub-api/pkg/errors"
)

type registrationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindByTopic(ctx context.Context, topicID string) ([]models.RegistrationDetail, error)
	FindByTeam(ctx context.Context, teamID string) ([]models.RegistrationDetail, error)
	FindBySupervisor(ctx context.Context, supervisorID string, status models.RegistrationStatus) ([]models.RegistrationDetail, error)
	CountActive(ctx context.Context, topicID string) (int, error)
	CreateWithCapacity(ctx context.Context, registration *models.Registration) (bool, error)
	Approve(ctx context.Context, id, teamID string) error
	Reject(ctx context.Context, id, topicID, reason string) error
	Finalize(ctx context.Context, id, topicID, teamID string) error
}

type registrationTeamReader interface {
	FindByID(ctx context.Context, id string) (*models.Team, error)
}

type registrationTopicReader interface {
	FindByID(ctx context.Context, id string) (*models.Topic, error)
}

// availableInvalidator drops cached published-topic listings when a topic's
// slot availability changes.
type availableInvalidator interface {
	InvalidateAvailable(ctx context.Context)
}

// RejectRegistrationRequest carries the supervisor's rejection reason.
type RejectRegistrationRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// RegistrationService gates teams onto topics first-come-first-served: slots
// are claimed at registration time and released only by rejection.
type RegistrationService struct {
	repo      registrationRepository
	teams     registrationTeamReader
	topics    registrationTopicReader
	semesters semesterReader
	cache     availableInvalidator
	notify    notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(repo registrationRepository, teams registrationTeamReader, topics registrationTopicReader,
	semesters semesterReader, cache availableInvalidator, notify notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{repo: repo, teams: teams, topics: topics, semesters: semesters,
		cache: cache, notify: notify, metrics: metrics, validator: validate, logger: logger}
}

// Register claims a slot on a topic for the caller's team. Only the leader of
// a READY team can register, and only while the registration window is open.
// The capacity check and the insert run under the topic row lock, so two teams
// racing for the last slot resolve in arrival order.
func (s *RegistrationService) Register(ctx context.Context, actorID, teamID, topicID string) (*models.Registration, error) {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.LeaderID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the team leader can register for a topic")
	}
	if team.Status != models.TeamStatusReady {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("team must have %d-%d members before registering", MinTeamSize, MaxTeamSize))
	}

	topic, err := s.loadTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if topic.SemesterID != team.SemesterID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "topic belongs to a different semester")
	}
	semester, err := s.semesters.FindByID(ctx, topic.SemesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	if !semester.RegistrationWindowOpen(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "the registration window is closed")
	}

	registration := &models.Registration{TeamID: teamID, TopicID: topicID}
	topicFull, err := s.repo.CreateWithCapacity(ctx, registration)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTopicFull):
			return nil, appErrors.Clone(appErrors.ErrTopicFull, "")
		case errors.Is(err, repository.ErrTopicClosed):
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic is not open for registration")
		case errors.Is(err, repository.ErrDuplicateRegistration):
			return nil, appErrors.Clone(appErrors.ErrConflict, "your team has already registered for this topic")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register for topic")
	}

	s.cache.InvalidateAvailable(ctx)
	s.metrics.RecordTransition("registration", string(models.RegistrationStatusPending))
	s.notify.Notify(topic.SupervisorID, "New Team Registration",
		fmt.Sprintf("Team %s registered for your topic %s.", team.Name, topic.Code),
		"/registrations/"+registration.ID)
	s.logger.Info("team registered",
		zap.String("registration_id", registration.ID),
		zap.String("team_id", teamID),
		zap.String("topic_id", topicID),
		zap.Bool("topic_full", topicFull))
	return registration, nil
}

// Approve accepts a pending registration. Only the topic's supervisor may
// approve; the team moves to REGISTERED.
func (s *RegistrationService) Approve(ctx context.Context, id, actorID string) (*models.Registration, error) {
	registration, topic, err := s.loadForDecision(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if registration.Status != models.RegistrationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "registration is not pending")
	}
	if err := s.repo.Approve(ctx, id, registration.TeamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "registration is not pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve registration")
	}
	s.metrics.RecordTransition("registration", string(models.RegistrationStatusApproved))
	s.notifyTeamLeader(ctx, registration.TeamID, "Registration Approved",
		fmt.Sprintf("Your registration for topic %s was approved.", topic.Code), "/registrations/"+id)
	return s.load(ctx, id)
}

// Reject declines a pending registration, freeing its slot. The topic reopens
// for registration if it had closed on capacity.
func (s *RegistrationService) Reject(ctx context.Context, id, actorID string, req RejectRegistrationRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}
	registration, topic, err := s.loadForDecision(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if registration.Status != models.RegistrationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "registration is not pending")
	}
	if err := s.repo.Reject(ctx, id, registration.TopicID, req.Reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "registration is not pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject registration")
	}
	s.cache.InvalidateAvailable(ctx)
	s.metrics.RecordTransition("registration", string(models.RegistrationStatusRejected))
	s.notifyTeamLeader(ctx, registration.TeamID, "Registration Rejected",
		fmt.Sprintf("Your registration for topic %s was rejected: %s", topic.Code, req.Reason), "/registrations/"+id)
	return s.load(ctx, id)
}

// Finalize locks in an approved registration: registration, topic and team all
// move to FINALIZED and no further changes are accepted. Finalization is an
// administrative act and does not require the topic's supervisor.
func (s *RegistrationService) Finalize(ctx context.Context, id string) (*models.Registration, error) {
	registration, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	topic, err := s.loadTopic(ctx, registration.TopicID)
	if err != nil {
		return nil, err
	}
	if registration.Status != models.RegistrationStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only approved registrations can be finalized")
	}
	if err := s.repo.Finalize(ctx, id, registration.TopicID, registration.TeamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "only approved registrations can be finalized")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize registration")
	}
	s.cache.InvalidateAvailable(ctx)
	s.metrics.RecordTransition("registration", string(models.RegistrationStatusFinalized))
	s.notifyTeamLeader(ctx, registration.TeamID, "Registration Finalized",
		fmt.Sprintf("Your assignment to topic %s is final.", topic.Code), "/registrations/"+id)
	return s.load(ctx, id)
}

// Get returns one registration.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.Registration, error) {
	return s.load(ctx, id)
}

// ListByTopic returns a topic's registrations.
func (s *RegistrationService) ListByTopic(ctx context.Context, topicID string) ([]models.RegistrationDetail, error) {
	registrations, err := s.repo.FindByTopic(ctx, topicID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return registrations, nil
}

// ListByTeam returns a team's registrations.
func (s *RegistrationService) ListByTeam(ctx context.Context, teamID string) ([]models.RegistrationDetail, error) {
	registrations, err := s.repo.FindByTeam(ctx, teamID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return registrations, nil
}

// ListBySupervisor returns registrations on a supervisor's topics.
func (s *RegistrationService) ListBySupervisor(ctx context.Context, supervisorID string, status models.RegistrationStatus) ([]models.RegistrationDetail, error) {
	registrations, err := s.repo.FindBySupervisor(ctx, supervisorID, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return registrations, nil
}

// loadForDecision loads a registration and its topic and checks that the
// actor supervises the topic.
func (s *RegistrationService) loadForDecision(ctx context.Context, id, actorID string) (*models.Registration, *models.Topic, error) {
	registration, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	topic, err := s.loadTopic(ctx, registration.TopicID)
	if err != nil {
		return nil, nil, err
	}
	if topic.SupervisorID != actorID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the topic's supervisor can decide this registration")
	}
	return registration, topic, nil
}

func (s *RegistrationService) notifyTeamLeader(ctx context.Context, teamID, title, message, link string) {
	team, err := s.teams.FindByID(ctx, teamID)
	if err != nil {
		s.logger.Warn("failed to load team for notification", zap.String("team_id", teamID), zap.Error(err))
		return
	}
	s.notify.Notify(team.LeaderID, title, message, link)
}

func (s *RegistrationService) load(ctx context.Context, id string) (*models.Registration, error) {
	registration, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return registration, nil
}

func (s *RegistrationService) loadTopic(ctx context.Context, id string) (*models.Topic, error) {
	topic, err := s.topics.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic")
	}
	return topic, nil
}

func (s *RegistrationService) loadTeam(ctx context.Context, id string) (*models.Team, error) {
	team, err := s.teams.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "team not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team")
	}
	return team, nil
}
