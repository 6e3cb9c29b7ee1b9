package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/minhtc/capstone-hub-api/internal/service"
	"github.com/minhtc/capstone-hub-api/pkg/response"
)

// ExportHandler streams rendered roster documents.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// TopicRoster godoc
// @Summary Export semester topic roster
// @Description Download the semester's topics and slot usage as CSV or PDF
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Semester ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /semesters/{id}/export [get]
func (h *ExportHandler) TopicRoster(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.service.TopicRoster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(200, result.ContentType, result.Payload)
}

// RegistrationSheet godoc
// @Summary Export topic registrations
// @Description Download a topic's registrations as CSV or PDF
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Topic ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /topics/{id}/export [get]
func (h *ExportHandler) RegistrationSheet(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.service.RegistrationSheet(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(200, result.ContentType, result.Payload)
}
