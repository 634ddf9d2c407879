package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

type ViolationWriter interface {
	CopyMany(ctx context.Context, violations []model.Violation) error
	Insert(ctx context.Context, v model.Violation) error
}

type WarningCountWriter interface {
	BulkRaiseWarningCounts(ctx context.Context, examIDs []uuid.UUID, studentIDs, counts []int) error
}

// ViolationWorker batches persist_violations_queue into exam_violations and
// mirrors the latest warning count onto exam_sessions.
type ViolationWorker struct {
	violations ViolationWriter
	sessions   WarningCountWriter
	rdb        *redis.Client
	log        zerolog.Logger
	backoff    time.Duration
}

func NewViolationWorker(violations ViolationWriter, sessions WarningCountWriter, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		violations: violations,
		sessions:   sessions,
		rdb:        rdb,
		log:        log.With().Str("component", "violation_worker").Logger(),
		backoff:    2 * time.Second,
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]*model.ViolationJob, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}

		var job model.ViolationJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			// Malformed JSON can never succeed. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &job)
	}
}

// flushSafe attempts a bulk COPY, then row inserts, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*model.ViolationJob) {
	if len(batch) == 0 {
		return
	}

	rows := make([]model.Violation, 0, len(batch))
	for _, j := range batch {
		rows = append(rows, j.Violation())
	}

	if err := w.violations.CopyMany(ctx, rows); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk copy failed, attempting row-by-row recovery")
		batch = w.fallbackInsert(ctx, batch)
	}

	w.raiseWarningCounts(ctx, batch)
}

// fallbackInsert inserts rows one by one and returns the ones that made it.
func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []*model.ViolationJob) []*model.ViolationJob {
	stored := make([]*model.ViolationJob, 0, len(batch))
	requeueList := make([]*model.ViolationJob, 0)

	for _, j := range batch {
		if err := w.violations.Insert(ctx, j.Violation()); err != nil {
			w.log.Error().Err(err).Int("student_id", j.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, j)
			continue
		}
		stored = append(stored, j)
	}

	if len(requeueList) > 0 {
		w.requeue(requeueList)
	}
	return stored
}

func (w *ViolationWorker) raiseWarningCounts(ctx context.Context, batch []*model.ViolationJob) {
	if len(batch) == 0 {
		return
	}
	examIDs := make([]uuid.UUID, 0, len(batch))
	studentIDs := make([]int, 0, len(batch))
	counts := make([]int, 0, len(batch))
	for _, j := range batch {
		examIDs = append(examIDs, j.ExamID)
		studentIDs = append(studentIDs, j.StudentID)
		counts = append(counts, j.WarningCount)
	}
	if err := w.sessions.BulkRaiseWarningCounts(ctx, examIDs, studentIDs, counts); err != nil {
		// The Redis counter stays authoritative while the session is live.
		w.log.Warn().Err(err).Msg("Failed to mirror warning counts")
	}
}

func (w *ViolationWorker) requeue(items []*model.ViolationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := w.rdb.Pipeline()
	for _, j := range items {
		data, _ := json.Marshal(j)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	time.Sleep(w.backoff)
}

func (w *ViolationWorker) shutdown(buffer []*model.ViolationJob) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
