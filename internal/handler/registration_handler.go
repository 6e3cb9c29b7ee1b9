package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/minhtc/capstone-hub-api/internal/models"
	"github.com/minhtc/capstone-hub-api/internal/service"
	appErrors "github.com/minhtc/capstone-hub-api/pkg/errors"
	"github.com/minhtc/capstone-hub-api/pkg/response"
)

// RegistrationHandler wires HTTP endpoints to the registration service.
type RegistrationHandler struct {
	service *service.RegistrationService
}

// NewRegistrationHandler creates a new handler.
func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// Register godoc
// @Summary Register team for topic
// @Description Claim a slot on a published topic, first-come-first-served
// @Tags Registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body object true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		TeamID  string `json:"team_id" binding:"required"`
		TopicID string `json:"topic_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "team and topic required"))
		return
	}

	registration, err := h.service.Register(c.Request.Context(), claims.UserID, payload.TeamID, payload.TopicID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, registration)
}

// Approve godoc
// @Summary Approve registration
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /registrations/{id}/approve [post]
func (h *RegistrationHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	registration, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}

// Reject godoc
// @Summary Reject registration
// @Description Decline a pending registration, freeing its slot
// @Tags Registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Registration ID"
// @Param payload body service.RejectRegistrationRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /registrations/{id}/reject [post]
func (h *RegistrationHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.RejectRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "rejection reason required"))
		return
	}

	registration, err := h.service.Reject(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}

// Finalize godoc
// @Summary Finalize registration
// @Description Lock in an approved registration; topic and team become FINALIZED
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /registrations/{id}/finalize [post]
func (h *RegistrationHandler) Finalize(c *gin.Context) {
	registration, err := h.service.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}

// ListByTopic godoc
// @Summary List registrations for a topic
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Topic ID"
// @Success 200 {object} response.Envelope
// @Router /topics/{id}/registrations [get]
func (h *RegistrationHandler) ListByTopic(c *gin.Context) {
	registrations, err := h.service.ListByTopic(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registrations, nil)
}

// ListByTeam godoc
// @Summary List registrations for a team
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Team ID"
// @Success 200 {object} response.Envelope
// @Router /teams/{id}/registrations [get]
func (h *RegistrationHandler) ListByTeam(c *gin.Context) {
	registrations, err := h.service.ListByTeam(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registrations, nil)
}

// ListMine godoc
// @Summary List registrations on my topics
// @Description Registrations for topics supervised by the caller
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	status := models.RegistrationStatus(c.Query("status"))
	registrations, err := h.service.ListBySupervisor(c.Request.Context(), claims.UserID, status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registrations, nil)
}
