package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/minhtc/capstone-hub-api/internal/models"
	appErrors "github.com/minhtc/capstone-hub-api/pkg/errors"
	"github.com/minhtc/capstone-hub-api/pkg/export"
)

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type exportTopicReader interface {
	List(ctx context.Context, filter models.TopicFilter) ([]models.TopicDetail, int, error)
}

type exportRegistrationReader interface {
	FindByTopic(ctx context.Context, topicID string) ([]models.RegistrationDetail, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered document ready to stream to the client.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders semester rosters for coordinators: which topics exist,
// who supervises them and which teams hold their slots.
type ExportService struct {
	topics        exportTopicReader
	registrations exportRegistrationReader
	semesters     semesterReader
	csv           csvRenderer
	pdf           pdfRenderer
	logger        *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(topics exportTopicReader, registrations exportRegistrationReader, semesters semesterReader,
	csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{topics: topics, registrations: registrations, semesters: semesters,
		csv: csv, pdf: pdf, logger: logger}
}

// TopicRoster renders every topic of a semester with its registration counts.
func (s *ExportService) TopicRoster(ctx context.Context, semesterID string, format ExportFormat) (*ExportResult, error) {
	semester, err := s.semesters.FindByID(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
	}
	topics, _, err := s.topics.List(ctx, models.TopicFilter{SemesterID: semesterID, PageSize: 1000})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list topics")
	}

	dataset := export.Dataset{
		Headers: []string{"Code", "Title", "Supervisor", "Status", "Slots", "Teams"},
	}
	for _, topic := range topics {
		registrations, err := s.registrations.FindByTopic(ctx, topic.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
		}
		teams := make([]string, 0, len(registrations))
		for _, registration := range registrations {
			if registration.Status.CountsAgainstCapacity() {
				teams = append(teams, registration.TeamName)
			}
		}
		dataset.AddRow(topic.Code, topic.TitleEn, topic.SupervisorName, string(topic.Status),
			fmt.Sprintf("%d/%d", len(teams), topic.MaxTeams), strings.Join(teams, "; "))
	}

	title := fmt.Sprintf("Topic Roster %s", semester.Code)
	return s.render(dataset, title, format)
}

// RegistrationSheet renders the registrations of a single topic.
func (s *ExportService) RegistrationSheet(ctx context.Context, topicID string, format ExportFormat) (*ExportResult, error) {
	registrations, err := s.registrations.FindByTopic(ctx, topicID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}

	dataset := export.Dataset{
		Headers: []string{"Team", "Status", "Registered At", "Reject Reason"},
	}
	title := "Topic Registrations"
	for _, registration := range registrations {
		reason := ""
		if registration.RejectReason != nil {
			reason = *registration.RejectReason
		}
		if title == "Topic Registrations" && registration.TopicCode != "" {
			title = fmt.Sprintf("Registrations %s", registration.TopicCode)
		}
		dataset.AddRow(registration.TeamName, string(registration.Status),
			registration.RegisteredAt.Format(time.RFC3339), reason)
	}
	return s.render(dataset, title, format)
}

func (s *ExportService) render(dataset export.Dataset, title string, format ExportFormat) (*ExportResult, error) {
	slug := strings.ToLower(strings.ReplaceAll(title, " ", "-"))
	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{Filename: slug + ".csv", ContentType: "text/csv", Payload: payload}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{Filename: slug + ".pdf", ContentType: "application/pdf", Payload: payload}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
}
