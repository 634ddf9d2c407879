package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/xuri/excelize/v2"
)

const resultSheet = "Hasil"

var resultHeader = []interface{}{
	"No", "NISN", "Nama", "Status", "Peringatan", "Mulai", "Selesai", "Nilai",
}

// ResultExportService renders an exam's session report as an xlsx workbook.
type ResultExportService struct {
	exams    ExamStore
	sessions SessionStore
	log      zerolog.Logger
	loc      *time.Location
}

// NewResultExportService creates a new ResultExportService.
func NewResultExportService(exams ExamStore, sessions SessionStore, log zerolog.Logger) *ResultExportService {
	return &ResultExportService{
		exams:    exams,
		sessions: sessions,
		log:      log.With().Str("component", "result_export_service").Logger(),
		loc:      time.Local,
	}
}

// Export writes the workbook to w and returns the suggested file name.
func (s *ResultExportService) Export(ctx context.Context, examID uuid.UUID, w io.Writer) (string, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return "", err
	}
	rows, err := s.sessions.ListReport(ctx, examID)
	if err != nil {
		return "", fmt.Errorf("list report: %w", err)
	}

	f, err := s.build(rows)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return "", fmt.Errorf("write workbook: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("rows", len(rows)).
		Msg("Results exported")
	return fmt.Sprintf("hasil-%s.xlsx", exam.ID), nil
}

func (s *ResultExportService) build(rows []model.SessionReportRow) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", resultSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(resultSheet, "A1", &resultHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(resultSheet, "A1", "H1", bold); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}
	_ = f.SetColWidth(resultSheet, "B", "C", 24)
	_ = f.SetColWidth(resultSheet, "F", "G", 20)

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{
			i + 1,
			r.NISN,
			r.Name,
			string(r.Status),
			r.WarningCount,
			r.StartedAt.In(s.loc).Format("2006-01-02 15:04:05"),
			formatTime(r.FinishedAt, s.loc),
			formatScore(r.FinalScore),
		}
		if err := f.SetSheetRow(resultSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f, nil
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}

func formatScore(score *float64) interface{} {
	if score == nil {
		return "-"
	}
	return *score
}
