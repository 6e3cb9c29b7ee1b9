package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/minhtc/capstone-hub-api/internal/middleware"
	"github.com/minhtc/capstone-hub-api/internal/models"
	"github.com/minhtc/capstone-hub-api/internal/service"
)

func TestTeamHandlerCreateRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewTeamHandler(&service.TeamService{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = newJSONRequest(t, http.MethodPost, "/api/v1/teams", service.CreateTeamRequest{Name: "Night Owls"})

	h.Create(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTeamHandlerCreateRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewTeamHandler(&service.TeamService{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodPost, "/api/v1/teams", bytes.NewReader([]byte("not-json")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})

	h.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTeamHandlerJoinRequiresInviteCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewTeamHandler(&service.TeamService{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = newJSONRequest(t, http.MethodPost, "/api/v1/teams/join", map[string]string{})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})

	h.Join(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTeamHandlerTransferLeadershipRequiresTarget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewTeamHandler(&service.TeamService{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = newJSONRequest(t, http.MethodPost, "/api/v1/teams/team-1/transfer-leadership", map[string]string{})
	c.Params = gin.Params{{Key: "id", Value: "team-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "leader-1", Role: models.RoleStudent})

	h.TransferLeadership(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
