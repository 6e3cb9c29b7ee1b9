package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minhtc/capstone-hub-api/internal/models"
	"github.com/minhtc/capstone-hub-api/internal/repository"
	appErrors "github.com/minhtc/capstone-hub-api/pkg/errors"
)

type teamRepoStub struct {
	teams        map[string]*models.Team
	byInviteCode map[string]*models.Team
	inTeam       bool
	takenCodes   map[string]bool
	codeChecks   int
	created      *models.Team
	addErr       error
	removeErr    error
	transferErr  error
	added        []string
	removed      []string
	newCode      string
}

func newTeamRepoStub() *teamRepoStub {
	return &teamRepoStub{
		teams:        map[string]*models.Team{},
		byInviteCode: map[string]*models.Team{},
		takenCodes:   map[string]bool{},
	}
}

func (s *teamRepoStub) FindByID(ctx context.Context, id string) (*models.Team, error) {
	if team, ok := s.teams[id]; ok {
		copied := *team
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *teamRepoStub) FindByInviteCode(ctx context.Context, code string) (*models.Team, error) {
	if team, ok := s.byInviteCode[code]; ok {
		copied := *team
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *teamRepoStub) FindDetailByID(ctx context.Context, id string) (*models.TeamDetail, error) {
	if team, ok := s.teams[id]; ok {
		return &models.TeamDetail{Team: *team}, nil
	}
	return nil, sql.ErrNoRows
}

func (s *teamRepoStub) FindByMemberAndSemester(ctx context.Context, userID, semesterID string) (*models.Team, error) {
	for _, team := range s.teams {
		if team.SemesterID == semesterID {
			copied := *team
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *teamRepoStub) ListBySemester(ctx context.Context, semesterID string) ([]models.Team, error) {
	return nil, nil
}

func (s *teamRepoStub) ListMembers(ctx context.Context, teamID string) ([]models.TeamMemberDetail, error) {
	return nil, nil
}

func (s *teamRepoStub) ExistsByInviteCode(ctx context.Context, code string) (bool, error) {
	s.codeChecks++
	if len(s.takenCodes) > 0 && s.codeChecks <= len(s.takenCodes) {
		return true, nil
	}
	return false, nil
}

func (s *teamRepoStub) IsUserInTeamForSemester(ctx context.Context, userID, semesterID string) (bool, error) {
	return s.inTeam, nil
}

func (s *teamRepoStub) CountMembers(ctx context.Context, teamID string) (int, error) {
	return 0, nil
}

func (s *teamRepoStub) Create(ctx context.Context, team *models.Team) error {
	team.ID = "team-1"
	s.created = team
	s.teams[team.ID] = team
	return nil
}

func (s *teamRepoStub) AddMember(ctx context.Context, teamID, userID string, minSize, maxSize int) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, userID)
	return nil
}

func (s *teamRepoStub) RemoveMember(ctx context.Context, teamID, userID string, minSize, maxSize int) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	s.removed = append(s.removed, userID)
	return nil
}

func (s *teamRepoStub) TransferLeadership(ctx context.Context, teamID, newLeaderID, currentLeaderID string) error {
	if s.transferErr != nil {
		return s.transferErr
	}
	if team, ok := s.teams[teamID]; ok {
		team.LeaderID = newLeaderID
	}
	return nil
}

func (s *teamRepoStub) UpdateInviteCode(ctx context.Context, teamID, code string) error {
	s.newCode = code
	return nil
}

type semesterReaderStub struct {
	active *models.Semester
	byID   map[string]*models.Semester
}

func (s semesterReaderStub) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	if s.byID != nil {
		if semester, ok := s.byID[id]; ok {
			return semester, nil
		}
	}
	if s.active != nil && s.active.ID == id {
		return s.active, nil
	}
	return nil, sql.ErrNoRows
}

func (s semesterReaderStub) FindActive(ctx context.Context) (*models.Semester, error) {
	if s.active == nil {
		return nil, sql.ErrNoRows
	}
	return s.active, nil
}

func TestCreateTeamHappyPath(t *testing.T) {
	repo := newTeamRepoStub()
	semesters := semesterReaderStub{active: &models.Semester{ID: "semester-1", Code: "SP26"}}

	service := NewTeamService(repo, semesters, &notifierStub{}, nil, zap.NewNop())
	team, err := service.Create(context.Background(), "student-1", CreateTeamRequest{Name: "Night Owls"})
	require.NoError(t, err)
	assert.Equal(t, "student-1", team.LeaderID)
	assert.Equal(t, "semester-1", team.SemesterID)
	assert.Equal(t, models.TeamStatusForming, team.Status)
	assert.Len(t, team.InviteCode, inviteCodeLength)
}

func TestCreateTeamAlreadyInTeam(t *testing.T) {
	repo := newTeamRepoStub()
	repo.inTeam = true
	semesters := semesterReaderStub{active: &models.Semester{ID: "semester-1"}}

	service := NewTeamService(repo, semesters, &notifierStub{}, nil, zap.NewNop())
	_, err := service.Create(context.Background(), "student-1", CreateTeamRequest{Name: "Night Owls"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateTeamNoActiveSemester(t *testing.T) {
	service := NewTeamService(newTeamRepoStub(), semesterReaderStub{}, &notifierStub{}, nil, zap.NewNop())
	_, err := service.Create(context.Background(), "student-1", CreateTeamRequest{Name: "Night Owls"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCreateTeamRetriesInviteCodeCollision(t *testing.T) {
	repo := newTeamRepoStub()
	repo.takenCodes = map[string]bool{"first": true, "second": true}
	semesters := semesterReaderStub{active: &models.Semester{ID: "semester-1"}}

	service := NewTeamService(repo, semesters, &notifierStub{}, nil, zap.NewNop())
	team, err := service.Create(context.Background(), "student-1", CreateTeamRequest{Name: "Night Owls"})
	require.NoError(t, err)
	assert.Len(t, team.InviteCode, inviteCodeLength)
	assert.Equal(t, 3, repo.codeChecks)
}

func TestJoinTeamHappyPath(t *testing.T) {
	repo := newTeamRepoStub()
	team := &models.Team{ID: "team-1", Name: "Night Owls", LeaderID: "leader-1",
		SemesterID: "semester-1", Status: models.TeamStatusForming, InviteCode: "ABCD2345"}
	repo.teams[team.ID] = team
	repo.byInviteCode[team.InviteCode] = team
	notify := &notifierStub{}

	service := NewTeamService(repo, semesterReaderStub{}, notify, nil, zap.NewNop())
	detail, err := service.Join(context.Background(), "student-2", "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, "team-1", detail.ID)
	assert.Equal(t, []string{"student-2"}, repo.added)
	assert.Contains(t, notify.users, "leader-1")
}

func TestJoinTeamFull(t *testing.T) {
	repo := newTeamRepoStub()
	team := &models.Team{ID: "team-1", SemesterID: "semester-1", Status: models.TeamStatusForming, InviteCode: "ABCD2345"}
	repo.teams[team.ID] = team
	repo.byInviteCode[team.InviteCode] = team
	repo.addErr = repository.ErrTeamFull

	service := NewTeamService(repo, semesterReaderStub{}, &notifierStub{}, nil, zap.NewNop())
	_, err := service.Join(context.Background(), "student-2", "ABCD2345")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTeamFull.Code, appErrors.FromError(err).Code)
}

func TestJoinTeamInvalidCode(t *testing.T) {
	service := NewTeamService(newTeamRepoStub(), semesterReaderStub{}, &notifierStub{}, nil, zap.NewNop())
	_, err := service.Join(context.Background(), "student-2", "NOPE1234")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestJoinTeamMembershipLocked(t *testing.T) {
	repo := newTeamRepoStub()
	team := &models.Team{ID: "team-1", SemesterID: "semester-1", Status: models.TeamStatusRegistered, InviteCode: "ABCD2345"}
	repo.byInviteCode[team.InviteCode] = team

	service := NewTeamService(repo, semesterReaderStub{}, &notifierStub{}, nil, zap.NewNop())
	_, err := service.Join(context.Background(), "student-2", "ABCD2345")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestLeaveBlocksLeader(t *testing.T) {
	repo := newTeamRepoStub()
	repo.teams["team-1"] = &models.Team{ID: "team-1", LeaderID: "leader-1", Status: models.TeamStatusForming}

	service := NewTeamService(repo, semesterReaderStub{}, &notifierStub{}, nil, zap.NewNop())
	err := service.Leave(context.Background(), "team-1", "leader-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.removed)
}

func TestLeaveRemovesMember(t *testing.T) {
	repo := newTeamRepoStub()
	repo.teams["team-1"] = &models.Team{ID: "team-1", LeaderID: "leader-1", Status: models.TeamStatusReady}

	service := NewTeamService(repo, semesterReaderStub{}, &notifierStub{}, nil, zap.NewNop())
	err := service.Leave(context.Background(), "team-1", "student-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"student-2"}, repo.removed)
}

func TestKickRequiresLeader(t *testing.T) {
	repo := newTeamRepoStub()
	repo.teams["team-1"] = &models.Team{ID: "team-1", LeaderID: "leader-1", Status: models.TeamStatusForming}

	service := NewTeamService(repo, semesterReaderStub{}, &notifierStub{}, nil, zap.NewNop())
	err := service.Kick(context.Background(), "team-1", "student-2", "student-3")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestKickLeaderCannotKickSelf(t *testing.T) {
	repo := newTeamRepoStub()
	repo.teams["team-1"] = &models.Team{ID: "team-1", LeaderID: "leader-1", Status: models.TeamStatusForming}

	service := NewTeamService(repo, semesterReaderStub{}, &notifierStub{}, nil, zap.NewNop())
	err := service.Kick(context.Background(), "team-1", "leader-1", "leader-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestKickNotifiesRemovedMember(t *testing.T) {
	repo := newTeamRepoStub()
	repo.teams["team-1"] = &models.Team{ID: "team-1", Name: "Night Owls", LeaderID: "leader-1", Status: models.TeamStatusForming}
	notify := &notifierStub{}

	service := NewTeamService(repo, semesterReaderStub{}, notify, nil, zap.NewNop())
	err := service.Kick(context.Background(), "team-1", "leader-1", "student-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"student-2"}, repo.removed)
	assert.Contains(t, notify.users, "student-2")
}

func TestTransferLeadership(t *testing.T) {
	repo := newTeamRepoStub()
	repo.teams["team-1"] = &models.Team{ID: "team-1", LeaderID: "leader-1", Status: models.TeamStatusForming}

	service := NewTeamService(repo, semesterReaderStub{}, &notifierStub{}, nil, zap.NewNop())
	err := service.TransferLeadership(context.Background(), "team-1", "leader-1", "student-2")
	require.NoError(t, err)
	assert.Equal(t, "student-2", repo.teams["team-1"].LeaderID)
}

func TestTransferLeadershipToNonMember(t *testing.T) {
	repo := newTeamRepoStub()
	repo.teams["team-1"] = &models.Team{ID: "team-1", LeaderID: "leader-1", Status: models.TeamStatusForming}
	repo.transferErr = sql.ErrNoRows

	service := NewTeamService(repo, semesterReaderStub{}, &notifierStub{}, nil, zap.NewNop())
	err := service.TransferLeadership(context.Background(), "team-1", "leader-1", "outsider-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRegenerateInviteCodeLeaderOnly(t *testing.T) {
	repo := newTeamRepoStub()
	repo.teams["team-1"] = &models.Team{ID: "team-1", LeaderID: "leader-1", InviteCode: "OLDCODE2"}

	service := NewTeamService(repo, semesterReaderStub{}, &notifierStub{}, nil, zap.NewNop())
	_, err := service.RegenerateInviteCode(context.Background(), "team-1", "student-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	team, err := service.RegenerateInviteCode(context.Background(), "team-1", "leader-1")
	require.NoError(t, err)
	assert.Len(t, team.InviteCode, inviteCodeLength)
	assert.NotEqual(t, "OLDCODE2", team.InviteCode)
	assert.Equal(t, team.InviteCode, repo.newCode)
}
