package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/minhtc/capstone-hub-api/internal/models"
	appErrors "github.com/minhtc/capstone-hub-api/pkg/errors"
)

type authRepoStub struct {
	users     map[string]*models.User
	lastLogin *time.Time
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLogin = &ts
	return nil
}

func authFixture(t *testing.T) (*authRepoStub, *AuthService) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &authRepoStub{users: map[string]*models.User{
		"user-1": {ID: "user-1", Email: "lecturer@example.edu", PasswordHash: string(hash),
			FullName: "Dr. Lecturer", Role: models.RoleSupervisor, Active: true},
	}}
	service := NewAuthService(repo, nil, zap.NewNop(), AuthConfig{
		TokenSecret: "test-secret",
		TokenExpiry: time.Hour,
		Issuer:      "capstone-hub",
	})
	return repo, service
}

func TestLoginSuccess(t *testing.T) {
	repo, service := authFixture(t)

	resp, err := service.Login(context.Background(), models.LoginRequest{
		Email: "lecturer@example.edu", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Equal(t, models.RoleSupervisor, resp.User.Role)
	assert.NotNil(t, repo.lastLogin)
}

func TestLoginWrongPassword(t *testing.T) {
	_, service := authFixture(t)

	_, err := service.Login(context.Background(), models.LoginRequest{
		Email: "lecturer@example.edu", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	_, service := authFixture(t)

	_, err := service.Login(context.Background(), models.LoginRequest{
		Email: "nobody@example.edu", Password: "s3cret-pass"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo, service := authFixture(t)
	repo.users["user-1"].Active = false

	_, err := service.Login(context.Background(), models.LoginRequest{
		Email: "lecturer@example.edu", Password: "s3cret-pass"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestLoginValidatesPayload(t *testing.T) {
	_, service := authFixture(t)

	_, err := service.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRoundTrip(t *testing.T) {
	_, service := authFixture(t)

	resp, err := service.Login(context.Background(), models.LoginRequest{
		Email: "lecturer@example.edu", Password: "s3cret-pass"})
	require.NoError(t, err)

	claims, err := service.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleSupervisor, claims.Role)
	assert.Equal(t, "capstone-hub", claims.Issuer)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, service := authFixture(t)

	_, err := service.ValidateToken("not.a.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	repo, service := authFixture(t)
	resp, err := service.Login(context.Background(), models.LoginRequest{
		Email: "lecturer@example.edu", Password: "s3cret-pass"})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, zap.NewNop(), AuthConfig{
		TokenSecret: "different-secret", TokenExpiry: time.Hour})
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestMe(t *testing.T) {
	_, service := authFixture(t)

	user, err := service.Me(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "lecturer@example.edu", user.Email)

	_, err = service.Me(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
