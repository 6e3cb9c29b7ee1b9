package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/minhtc/capstone-hub-api/internal/models"
	"github.com/minhtc/capstone-hub-api/internal/service"
	appErrors "github.com/minhtc/capstone-hub-api/pkg/errors"
	"github.com/minhtc/capstone-hub-api/pkg/response"
)

// TopicHandler wires HTTP endpoints to the topic service and the screening
// pipeline.
type TopicHandler struct {
	service   *service.TopicService
	screening *service.ScreeningService
}

// NewTopicHandler creates a new handler.
func NewTopicHandler(svc *service.TopicService, screening *service.ScreeningService) *TopicHandler {
	return &TopicHandler{service: svc, screening: screening}
}

// Create godoc
// @Summary Create topic proposal
// @Description Create a new DRAFT topic owned by the authenticated supervisor
// @Tags Topics
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateTopicRequest true "Topic payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /topics [post]
func (h *TopicHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid topic payload"))
		return
	}

	topic, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, topic)
}

// Get godoc
// @Summary Get topic
// @Tags Topics
// @Produce json
// @Security BearerAuth
// @Param id path string true "Topic ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /topics/{id} [get]
func (h *TopicHandler) Get(c *gin.Context) {
	topic, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topic, nil)
}

// GetByCode godoc
// @Summary Get topic by code
// @Tags Topics
// @Produce json
// @Security BearerAuth
// @Param code path string true "Topic code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /topics/code/{code} [get]
func (h *TopicHandler) GetByCode(c *gin.Context) {
	topic, err := h.service.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topic, nil)
}

// List godoc
// @Summary List topics
// @Description List topics with filters and pagination
// @Tags Topics
// @Produce json
// @Security BearerAuth
// @Param semester_id query string false "Semester filter"
// @Param supervisor_id query string false "Supervisor filter"
// @Param status query string false "Status filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /topics [get]
func (h *TopicHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := models.TopicFilter{
		SemesterID:   c.Query("semester_id"),
		SupervisorID: c.Query("supervisor_id"),
		Status:       models.TopicStatus(c.Query("status")),
		Page:         page,
		PageSize:     pageSize,
		SortBy:       c.Query("sort_by"),
		SortOrder:    c.Query("sort_order"),
	}

	topics, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topics, pagination)
}

// ListAvailable godoc
// @Summary List topics open for registration
// @Description Published topics of the active semester with free slots
// @Tags Topics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /topics/available [get]
func (h *TopicHandler) ListAvailable(c *gin.Context) {
	topics, err := h.service.ListAvailable(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topics, nil)
}

// Update godoc
// @Summary Update topic proposal
// @Description Edit a DRAFT, AI_FAILED or REJECTED topic
// @Tags Topics
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Topic ID"
// @Param payload body service.UpdateTopicRequest true "Topic payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /topics/{id} [put]
func (h *TopicHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid topic payload"))
		return
	}

	topic, err := h.service.Update(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topic, nil)
}

// Submit godoc
// @Summary Submit topic for screening
// @Description Move a DRAFT topic to PROCESSING and queue automated screening
// @Tags Topics
// @Produce json
// @Security BearerAuth
// @Param id path string true "Topic ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /topics/{id}/submit [post]
func (h *TopicHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	topic, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.screening.Dispatch(c.Request.Context(), topic.ID, topic.Version); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue screening"))
		return
	}
	response.JSON(c, http.StatusOK, topic, nil)
}

// Resubmit godoc
// @Summary Resubmit topic
// @Description Bump the version of an AI_FAILED or REJECTED topic and rescreen
// @Tags Topics
// @Produce json
// @Security BearerAuth
// @Param id path string true "Topic ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /topics/{id}/resubmit [post]
func (h *TopicHandler) Resubmit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	topic, err := h.service.Resubmit(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.screening.Dispatch(c.Request.Context(), topic.ID, topic.Version); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue screening"))
		return
	}
	response.JSON(c, http.StatusOK, topic, nil)
}

// Publish godoc
// @Summary Publish approved topic
// @Description Make an APPROVED topic visible for team registration
// @Tags Topics
// @Produce json
// @Security BearerAuth
// @Param id path string true "Topic ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /topics/{id}/publish [post]
func (h *TopicHandler) Publish(c *gin.Context) {
	topic, err := h.service.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topic, nil)
}

// ApplyAIResult godoc
// @Summary Apply a screening result
// @Description Record an externally produced screening verdict on a PROCESSING topic
// @Tags Topics
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Topic ID"
// @Param payload body models.AIResult true "Screening result"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /topics/{id}/ai-result [post]
func (h *TopicHandler) ApplyAIResult(c *gin.Context) {
	var result models.AIResult
	if err := c.ShouldBindJSON(&result); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid screening result payload"))
		return
	}

	topic, err := h.service.ApplyAIResult(c.Request.Context(), c.Param("id"), result)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topic, nil)
}
