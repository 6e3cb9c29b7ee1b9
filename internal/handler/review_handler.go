package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/minhtc/capstone-hub-api/internal/service"
	appErrors "github.com/minhtc/capstone-hub-api/pkg/errors"
	"github.com/minhtc/capstone-hub-api/pkg/response"
)

// ReviewHandler wires HTTP endpoints to the review service.
type ReviewHandler struct {
	service *service.ReviewService
}

// NewReviewHandler creates a new handler.
func NewReviewHandler(svc *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{service: svc}
}

// ListPending godoc
// @Summary List my pending reviews
// @Tags Reviews
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reviews/pending [get]
func (h *ReviewHandler) ListPending(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	reviews, err := h.service.ListPending(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, nil)
}

// ListByTopic godoc
// @Summary List reviews of a topic
// @Tags Reviews
// @Produce json
// @Security BearerAuth
// @Param id path string true "Topic ID"
// @Success 200 {object} response.Envelope
// @Router /topics/{id}/reviews [get]
func (h *ReviewHandler) ListByTopic(c *gin.Context) {
	reviews, err := h.service.ListByTopic(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, nil)
}

// Decide godoc
// @Summary Submit review decision
// @Description Record the reviewer's verdict; the topic moves on once all reviews are in
// @Tags Reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Review ID"
// @Param payload body service.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /reviews/{id}/decide [post]
func (h *ReviewHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	review, err := h.service.SubmitDecision(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, review, nil)
}

// CoordinatorDecide godoc
// @Summary Coordinator decision
// @Description Resolve a WAITING_COORDINATOR topic with a final verdict
// @Tags Reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Topic ID"
// @Param payload body service.CoordinatorDecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /topics/{id}/coordinator-decision [post]
func (h *ReviewHandler) CoordinatorDecide(c *gin.Context) {
	var req service.CoordinatorDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	topic, err := h.service.CoordinatorDecide(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topic, nil)
}

// Assign godoc
// @Summary Assign reviewers
// @Description Draw reviewers for an AI_PASSED topic and move it to PENDING_REVIEW
// @Tags Reviews
// @Produce json
// @Security BearerAuth
// @Param id path string true "Topic ID"
// @Success 201 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /topics/{id}/assign-reviewers [post]
func (h *ReviewHandler) Assign(c *gin.Context) {
	reviews, err := h.service.AssignReviewers(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reviews)
}
