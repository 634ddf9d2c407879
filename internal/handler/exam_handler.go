package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExamAdmin is the admin side of service.ExamService.
type ExamAdmin interface {
	SetResultsReleased(ctx context.Context, examID uuid.UUID, released bool) error
	RefreshCache(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error)
}

type ResultReporter interface {
	ListReport(ctx context.Context, examID uuid.UUID) ([]model.SessionReportRow, error)
}

type ResultExporter interface {
	Export(ctx context.Context, examID uuid.UUID, w io.Writer) (string, error)
}

// ExamHandler handles exam administration endpoints.
type ExamHandler struct {
	exams    ExamAdmin
	reports  ResultReporter
	exporter ResultExporter
	log      zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(exams ExamAdmin, reports ResultReporter, exporter ResultExporter, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		exams:    exams,
		reports:  reports,
		exporter: exporter,
		log:      log.With().Str("component", "exam_handler").Logger(),
	}
}

// ReleaseResults godoc
// POST /api/v1/admin/exams/:exam_id/release
// Toggles whether students may read their graded results.
func (h *ExamHandler) ReleaseResults(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	var req model.ReleaseResultsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.exams.SetResultsReleased(c.Request.Context(), examID, *req.Released); err != nil {
		failSession(c, h.log, err)
		return
	}

	h.log.Info().Str("exam_id", examID.String()).Bool("released", *req.Released).Msg("Result release changed")
	response.OK(c, gin.H{"exam_id": examID, "released": *req.Released})
}

// RefreshExamCache godoc
// POST /api/v1/admin/exams/:exam_id/refresh-cache
// Re-caches the exam payload to Redis after question changes.
func (h *ExamHandler) RefreshExamCache(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	payload, err := h.exams.RefreshCache(c.Request.Context(), examID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}

	response.OK(c, gin.H{"exam_id": examID, "questions": len(payload.Questions)})
}

// GetExamResults godoc
// GET /api/v1/admin/exams/:exam_id/results
// Returns every session of the exam with status, warnings and score.
func (h *ExamHandler) GetExamResults(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	rows, err := h.reports.ListReport(c.Request.Context(), examID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}
	if rows == nil {
		rows = []model.SessionReportRow{}
	}

	response.OK(c, gin.H{"results": rows, "total": len(rows)})
}

// ExportResults godoc
// GET /api/v1/admin/exams/:exam_id/results/export
// Downloads the results as an .xlsx workbook.
func (h *ExamHandler) ExportResults(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	var buf bytes.Buffer
	filename, err := h.exporter.Export(c.Request.Context(), examID, &buf)
	if err != nil {
		failSession(c, h.log, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Length", strconv.Itoa(buf.Len()))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
