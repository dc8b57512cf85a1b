package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flariki/internal/domain"
	"flariki/internal/metrics"
	"flariki/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SyncStore is the persistence the worker needs: the queue plus fresh entity reads.
type SyncStore interface {
	domain.SyncQueueStore
	GetReport(ctx context.Context, id string) (*models.Report, error)
	GetPurchase(ctx context.Context, id string) (*models.Purchase, error)
}

// syncPayload is persisted in SyncTask.Payload as JSON.
type syncPayload struct {
	ReportID   string `json:"report_id,omitempty"`
	PurchaseID string `json:"purchase_id,omitempty"`
}

// SheetsWorker consumes sync_queue tasks and mirrors reports and purchases to
// Google Sheets. Each task gets one attempt; failures are recorded and counted.
type SheetsWorker struct {
	store         SyncStore
	sheets        domain.SheetsWriter
	redis         *redis.Client
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewSheetsWorker builds a worker. redisClient may be nil.
func NewSheetsWorker(store SyncStore, sheets domain.SheetsWriter, redisClient *redis.Client, logger *zerolog.Logger) *SheetsWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "sheets_worker").Logger()

	return &SheetsWorker{
		store:         store,
		sheets:        sheets,
		redis:         redisClient,
		queue:         make(chan models.SyncTask, 128),
		redisQueueKey: "sheets:queue",
		deadLetterKey: "sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        &l,
	}
}

func (w *SheetsWorker) EnqueueReport(ctx context.Context, report *models.Report) error {
	if report == nil || report.ID == "" {
		return errors.New("report id is required")
	}
	return w.enqueue(ctx, models.SyncUpsertReport, report.ID, syncPayload{ReportID: report.ID})
}

func (w *SheetsWorker) EnqueuePurchase(ctx context.Context, purchase *models.Purchase) error {
	if purchase == nil || purchase.ID == "" {
		return errors.New("purchase id is required")
	}
	return w.enqueue(ctx, models.SyncUpsertPurchase, purchase.ID, syncPayload{PurchaseID: purchase.ID})
}

// enqueue persists the task and schedules it via redis or the in-memory queue.
func (w *SheetsWorker) enqueue(ctx context.Context, taskType, entityID string, payload syncPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType: taskType,
		EntityID: entityID,
		Payload:  string(payloadBytes),
		Status:   models.SyncStatusPending,
	}
	if err := w.store.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		// останется pending и будет подобрана опросом
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the loop until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("started")
	defer w.logger.Info().Msg("stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}
		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *SheetsWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	// задача могла прийти и из очереди, и из опроса
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusProcessing, ""); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark processing")
	}

	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleSyncTask(ctx, task.TaskType, payload); err != nil {
		w.failTask(ctx, task, err)
		return
	}

	metrics.IncSheetsSync(task.TaskType, true)
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, ""); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

func (w *SheetsWorker) handleSyncTask(ctx context.Context, taskType string, payload syncPayload) error {
	switch taskType {
	case models.SyncUpsertReport:
		if payload.ReportID == "" {
			return errors.New("report id missing")
		}
		report, err := w.store.GetReport(ctx, payload.ReportID)
		if err != nil {
			return fmt.Errorf("load report: %w", err)
		}
		return w.sheets.UpsertReport(ctx, report)
	case models.SyncUpsertPurchase:
		if payload.PurchaseID == "" {
			return errors.New("purchase id missing")
		}
		purchase, err := w.store.GetPurchase(ctx, payload.PurchaseID)
		if err != nil {
			return fmt.Errorf("load purchase: %w", err)
		}
		return w.sheets.UpsertPurchase(ctx, purchase)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	metrics.IncSheetsSync(task.TaskType, false)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("sheets sync failed")

	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error()); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
		}
	}
}

func (w *SheetsWorker) decodePayload(raw string) (syncPayload, error) {
	var payload syncPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *SheetsWorker) pushRedis(ctx context.Context, key string, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

