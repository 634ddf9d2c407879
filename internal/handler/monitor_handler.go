package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

type ExamReader interface {
	GetByID(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
}

type ExamMonitor interface {
	Snapshot(ctx context.Context, examID uuid.UUID) (*service.MonitorSnapshot, error)
	GetStudentProgress(ctx context.Context, examID uuid.UUID) (*service.StudentProgressSnapshot, error)
}

type MonitorHandler struct {
	rdb     *redis.Client
	exams   ExamReader
	monitor ExamMonitor
	log     zerolog.Logger
}

func NewMonitorHandler(rdb *redis.Client, exams ExamReader, monitor ExamMonitor, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:     rdb,
		exams:   exams,
		monitor: monitor,
		log:     log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:exam_id/monitor
// Streams a snapshot, then live started/violation/finished events and
// periodic progress refreshes.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.exams.GetByID(c.Request.Context(), examID)
	if err != nil {
		failSession(c, h.log, err)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before the snapshot so no event falls in between.
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	h.sendSnapshot(c, reqCtx, exam)

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Events are published as JSON; forward them untouched.
			c.Writer.Write([]byte("event: session\ndata: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendRefresh(c, reqCtx, examID)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte(": ping\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes the first SSE event.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, ctx context.Context, exam *model.Exam) {
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	snap, err := h.monitor.Snapshot(fetchCtx, exam.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to build monitor snapshot")
		snap = &service.MonitorSnapshot{Students: []service.MonitorStudent{}}
	}

	c.SSEvent("snapshot", gin.H{
		"exam": gin.H{
			"id":           exam.ID,
			"title":        exam.Title,
			"duration":     exam.DurationMinutes,
			"max_warnings": exam.MaxWarnings,
		},
		"stats":    snap.Stats,
		"students": snap.Students,
	})
	c.Writer.Flush()
}

// sendRefresh polls progress counts and sends a compact refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.monitor.GetStudentProgress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch student progress for refresh")
		return
	}
	if len(progress.AnsweredCounts) == 0 && len(progress.ViolationCounts) == 0 {
		return
	}

	rows := make([]gin.H, 0, len(progress.AnsweredCounts)+len(progress.ViolationCounts))
	for sid, answered := range progress.AnsweredCounts {
		rows = append(rows, gin.H{
			"student_id":      sid,
			"answered_count":  answered,
			"violation_count": progress.ViolationCounts[sid],
		})
	}
	for sid, violations := range progress.ViolationCounts {
		if _, seen := progress.AnsweredCounts[sid]; seen {
			continue
		}
		rows = append(rows, gin.H{
			"student_id":      sid,
			"answered_count":  int64(0),
			"violation_count": violations,
		})
	}

	c.SSEvent("refresh", gin.H{
		"total_violations": progress.TotalViolations,
		"students":         rows,
	})
	c.Writer.Flush()
}
