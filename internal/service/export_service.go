package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/special-week-api/internal/dto"
	"github.com/noah-isme/special-week-api/internal/models"
	appErrors "github.com/noah-isme/special-week-api/pkg/errors"
	"github.com/noah-isme/special-week-api/pkg/export"
)

type timetableLister interface {
	List(ctx context.Context, query dto.PlacementQuery) ([]models.PlacementDetail, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered timetable ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

var timetableHeaders = []string{"Day", "Block", "Workshop", "Room", "Slots", "Enrolled", "Capacity"}

// TimetableExportService renders the timetable as CSV or PDF.
type TimetableExportService struct {
	timetable timetableLister
	csv       csvRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTimetableExportService constructs a TimetableExportService.
func NewTimetableExportService(timetable timetableLister, csv csvRenderer, pdf pdfRenderer, validate *validator.Validate, logger *zap.Logger) *TimetableExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableExportService{
		timetable: timetable,
		csv:       csv,
		pdf:       pdf,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Export renders the filtered timetable. CSV is the default format.
func (s *TimetableExportService) Export(ctx context.Context, query dto.ExportTimetableQuery) (*ExportFile, error) {
	query.Format = strings.ToLower(strings.TrimSpace(query.Format))
	if query.Format == "" {
		query.Format = "csv"
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query")
	}

	details, err := s.timetable.List(ctx, query.PlacementQuery)
	if err != nil {
		return nil, err
	}
	dataset := export.Dataset{Headers: timetableHeaders}
	for _, d := range details {
		dataset.Append(
			d.DayOfWeek.String(),
			d.Block.String(),
			d.WorkshopTitle,
			d.RoomName,
			strconv.Itoa(d.SlotCount),
			strconv.Itoa(d.Enrolled),
			strconv.Itoa(d.MaxCapacity),
		)
	}

	stamp := s.now().Format("20060102-150405")
	var file ExportFile
	switch query.Format {
	case "pdf":
		body, err := s.pdf.Render(dataset, "Special week timetable")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable pdf")
		}
		file = ExportFile{Filename: fmt.Sprintf("timetable-%s.pdf", stamp), ContentType: "application/pdf", Body: body}
	default:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable csv")
		}
		file = ExportFile{Filename: fmt.Sprintf("timetable-%s.csv", stamp), ContentType: "text/csv; charset=utf-8", Body: body}
	}
	s.logger.Info("timetable exported", zap.String("format", query.Format), zap.Int("rows", len(details)))
	return &file, nil
}
