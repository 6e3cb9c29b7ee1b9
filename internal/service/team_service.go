package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/minhtc/capstone-hub-api/internal/models"
	"github.com/minhtc/capstone-hub-api/internal/repository"
	appErrors "github.com/minhtc/capstone-hub-api/pkg/errors"
)

type teamRepository interface {
	FindByID(ctx context.Context, id string) (*models.Team, error)
	FindByInviteCode(ctx context.Context, code string) (*models.Team, error)
	FindDetailByID(ctx context.Context, id string) (*models.TeamDetail, error)
	FindByMemberAndSemester(ctx context.Context, userID, semesterID string) (*models.Team, error)
	ListBySemester(ctx context.Context, semesterID string) ([]models.Team, error)
	ListMembers(ctx context.Context, teamID string) ([]models.TeamMemberDetail, error)
	ExistsByInviteCode(ctx context.Context, code string) (bool, error)
	IsUserInTeamForSemester(ctx context.Context, userID, semesterID string) (bool, error)
	CountMembers(ctx context.Context, teamID string) (int, error)
	Create(ctx context.Context, team *models.Team) error
	AddMember(ctx context.Context, teamID, userID string, minSize, maxSize int) error
	RemoveMember(ctx context.Context, teamID, userID string, minSize, maxSize int) error
	TransferLeadership(ctx context.Context, teamID, newLeaderID, currentLeaderID string) error
	UpdateInviteCode(ctx context.Context, teamID, code string) error
}

// Team size bounds for capstone registration.
const (
	MinTeamSize = 4
	MaxTeamSize = 5
)

const (
	inviteCodeLength   = 8
	inviteCodeCharset  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	inviteCodeAttempts = 10
)

// CreateTeamRequest names a new team.
type CreateTeamRequest struct {
	Name string `json:"name" validate:"required,min=3,max=100"`
}

// TeamService manages team formation: creation, invite-code joins, member
// removal and leadership transfer, keeping membership inside the size bounds.
type TeamService struct {
	repo      teamRepository
	semesters semesterReader
	notify    notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeamService constructs TeamService.
func NewTeamService(repo teamRepository, semesters semesterReader, notify notifier, validate *validator.Validate, logger *zap.Logger) *TeamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamService{repo: repo, semesters: semesters, notify: notify, validator: validate, logger: logger}
}

// Create forms a new team in the active semester with the caller as leader.
// A student can belong to at most one team per semester.
func (s *TeamService) Create(ctx context.Context, leaderID string, req CreateTeamRequest) (*models.Team, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid team payload")
	}
	semester, err := s.activeSemester(ctx)
	if err != nil {
		return nil, err
	}
	inTeam, err := s.repo.IsUserInTeamForSemester(ctx, leaderID, semester.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if inTeam {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you already belong to a team this semester")
	}

	code, err := s.generateInviteCode(ctx)
	if err != nil {
		return nil, err
	}
	team := &models.Team{
		Name:       req.Name,
		InviteCode: code,
		LeaderID:   leaderID,
		SemesterID: semester.ID,
		Status:     models.TeamStatusForming,
	}
	if err := s.repo.Create(ctx, team); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create team")
	}
	s.logger.Info("team created", zap.String("team_id", team.ID), zap.String("leader_id", leaderID))
	return team, nil
}

// Get returns a team with its members.
func (s *TeamService) Get(ctx context.Context, id string) (*models.TeamDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "team not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team")
	}
	return detail, nil
}

// GetMine returns the caller's team in the active semester.
func (s *TeamService) GetMine(ctx context.Context, userID string) (*models.TeamDetail, error) {
	semester, err := s.activeSemester(ctx)
	if err != nil {
		return nil, err
	}
	team, err := s.repo.FindByMemberAndSemester(ctx, userID, semester.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "you are not in a team this semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team")
	}
	return s.Get(ctx, team.ID)
}

// ListBySemester returns every team in a semester.
func (s *TeamService) ListBySemester(ctx context.Context, semesterID string) ([]models.Team, error) {
	teams, err := s.repo.ListBySemester(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teams")
	}
	return teams, nil
}

// Join adds the caller to the team behind an invite code.
func (s *TeamService) Join(ctx context.Context, userID, inviteCode string) (*models.TeamDetail, error) {
	team, err := s.repo.FindByInviteCode(ctx, inviteCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invalid invite code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team")
	}
	if !s.membershipOpen(team.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "team is no longer accepting members")
	}
	inTeam, err := s.repo.IsUserInTeamForSemester(ctx, userID, team.SemesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if inTeam {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you already belong to a team this semester")
	}

	if err := s.repo.AddMember(ctx, team.ID, userID, MinTeamSize, MaxTeamSize); err != nil {
		if errors.Is(err, repository.ErrTeamFull) {
			return nil, appErrors.Clone(appErrors.ErrTeamFull, fmt.Sprintf("team already has %d members", MaxTeamSize))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join team")
	}
	s.notify.Notify(team.LeaderID, "New Team Member",
		"A new member joined your team "+team.Name+".", "/teams/"+team.ID)
	return s.Get(ctx, team.ID)
}

// Leave removes the caller from their team. The leader must transfer
// leadership first.
func (s *TeamService) Leave(ctx context.Context, teamID, userID string) error {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if !s.membershipOpen(team.Status) {
		return appErrors.Clone(appErrors.ErrInvalidState, "membership is locked once the team has registered")
	}
	if team.LeaderID == userID {
		return appErrors.Clone(appErrors.ErrConflict, "transfer leadership before leaving the team")
	}
	if err := s.repo.RemoveMember(ctx, teamID, userID, MinTeamSize, MaxTeamSize); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "you are not a member of this team")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave team")
	}
	s.notify.Notify(team.LeaderID, "Member Left",
		"A member left your team "+team.Name+".", "/teams/"+team.ID)
	return nil
}

// Kick lets the leader remove another member.
func (s *TeamService) Kick(ctx context.Context, teamID, actorID, memberID string) error {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.LeaderID != actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the team leader can remove members")
	}
	if memberID == actorID {
		return appErrors.Clone(appErrors.ErrConflict, "the leader cannot remove themselves")
	}
	if !s.membershipOpen(team.Status) {
		return appErrors.Clone(appErrors.ErrInvalidState, "membership is locked once the team has registered")
	}
	if err := s.repo.RemoveMember(ctx, teamID, memberID, MinTeamSize, MaxTeamSize); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user is not a member of this team")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove member")
	}
	s.notify.Notify(memberID, "Removed From Team",
		"You have been removed from team "+team.Name+".", "/teams")
	return nil
}

// TransferLeadership hands the LEADER role to another member.
func (s *TeamService) TransferLeadership(ctx context.Context, teamID, actorID, newLeaderID string) error {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.LeaderID != actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the team leader can transfer leadership")
	}
	if newLeaderID == actorID {
		return appErrors.Clone(appErrors.ErrConflict, "you are already the team leader")
	}
	if err := s.repo.TransferLeadership(ctx, teamID, newLeaderID, actorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user is not a member of this team")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transfer leadership")
	}
	s.notify.Notify(newLeaderID, "You Are Now Team Leader",
		"Leadership of team "+team.Name+" has been transferred to you.", "/teams/"+team.ID)
	return nil
}

// RegenerateInviteCode issues a fresh invite code, invalidating the old one.
func (s *TeamService) RegenerateInviteCode(ctx context.Context, teamID, actorID string) (*models.Team, error) {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.LeaderID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the team leader can regenerate the invite code")
	}
	code, err := s.generateInviteCode(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateInviteCode(ctx, teamID, code); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to regenerate invite code")
	}
	team.InviteCode = code
	return team, nil
}

// membershipOpen reports whether members may still join or leave.
func (s *TeamService) membershipOpen(status models.TeamStatus) bool {
	return status == models.TeamStatusForming || status == models.TeamStatusReady
}

// generateInviteCode draws random codes until one is unused.
func (s *TeamService) generateInviteCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := randomInviteCode()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate invite code")
		}
		taken, err := s.repo.ExistsByInviteCode(ctx, code)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check invite code")
		}
		if !taken {
			return code, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrInternal, "could not allocate a unique invite code")
}

func randomInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = inviteCodeCharset[int(b)%len(inviteCodeCharset)]
	}
	return string(buf), nil
}

func (s *TeamService) activeSemester(ctx context.Context) (*models.Semester, error) {
	semester, err := s.semesters.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active semester")
	}
	return semester, nil
}

func (s *TeamService) loadTeam(ctx context.Context, id string) (*models.Team, error) {
	team, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "team not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team")
	}
	return team, nil
}
