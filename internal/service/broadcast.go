package service

import (
	"context"
	"strings"

	"flariki/internal/domain"
	"flariki/internal/events"
	"flariki/internal/models"

	"github.com/rs/zerolog"
)

// BroadcastInput is the body of a broadcast.
type BroadcastInput struct {
	Title   string
	Message string
	TagIDs  []string
	TaskIDs []string
}

type BroadcastService struct {
	broadcasts domain.BroadcastStore
	users      domain.UserStore
	tasks      domain.TaskStore
	dispatcher domain.Dispatcher
	audit      *Auditor
	eventBus   domain.EventPublisher
	links      Links
	logger     *zerolog.Logger
}

func NewBroadcastService(
	broadcasts domain.BroadcastStore,
	users domain.UserStore,
	tasks domain.TaskStore,
	dispatcher domain.Dispatcher,
	audit *Auditor,
	eventBus domain.EventPublisher,
	links Links,
	logger *zerolog.Logger,
) *BroadcastService {
	return &BroadcastService{
		broadcasts: broadcasts,
		users:      users,
		tasks:      tasks,
		dispatcher: dispatcher,
		audit:      audit,
		eventBus:   eventBus,
		links:      links,
		logger:     logger,
	}
}

// Send persists the broadcast and hands delivery to the dispatcher. The
// stored record is never changed by delivery results.
func (s *BroadcastService) Send(ctx context.Context, actorID string, in BroadcastInput) (*models.Broadcast, error) {
	var fields []domain.FieldError
	if strings.TrimSpace(in.Title) == "" {
		fields = append(fields, domain.FieldError{Field: "title", Message: "required"})
	}
	if strings.TrimSpace(in.Message) == "" {
		fields = append(fields, domain.FieldError{Field: "message", Message: "required"})
	}
	if len(fields) > 0 {
		return nil, domain.Validation("invalid broadcast", fields...)
	}

	tasks := make([]*models.Task, 0, len(in.TaskIDs))
	for _, id := range in.TaskIDs {
		task, err := s.tasks.GetTask(ctx, id)
		if err != nil {
			return nil, translate(err, "task")
		}
		tasks = append(tasks, task)
	}

	recipients, err := s.users.ListActiveUsersByTags(ctx, in.TagIDs)
	if err != nil {
		return nil, translate(err, "user")
	}

	b := &models.Broadcast{
		Title:           strings.TrimSpace(in.Title),
		Message:         strings.TrimSpace(in.Message),
		TagIDs:          in.TagIDs,
		TaskIDs:         in.TaskIDs,
		RecipientsCount: len(recipients),
		CreatedByID:     actorID,
	}
	if err := s.broadcasts.CreateBroadcast(ctx, b); err != nil {
		return nil, translate(err, "broadcast")
	}

	s.audit.Record(ctx, actorID, AuditBroadcastCreated, "broadcast", b.ID, map[string]interface{}{
		"recipients": b.RecipientsCount,
		"tags":       len(b.TagIDs),
		"tasks":      len(b.TaskIDs),
	})

	batch := domain.Batch{Name: "broadcast"}
	text := broadcastText(b.Title, b.Message)
	for _, u := range recipients {
		if u.TelegramID == 0 {
			continue
		}
		batch.Notifications = append(batch.Notifications, domain.Notification{TelegramID: u.TelegramID, Text: text})
		for _, task := range tasks {
			batch.Notifications = append(batch.Notifications, taskPublishedNotification(s.links, task, u.TelegramID))
		}
	}

	broadcastID, recipientsCount := b.ID, b.RecipientsCount
	batch.OnDone = func(delivered, failed int) {
		s.logger.Info().
			Str("broadcast_id", broadcastID).
			Int("recipients", recipientsCount).
			Int("delivered", delivered).
			Int("failed", failed).
			Msg("broadcast completed")
		publishEvent(s.eventBus, s.logger, events.EventBroadcastCompleted, events.BroadcastEventPayload{
			BroadcastID: broadcastID,
			Recipients:  recipientsCount,
			Delivered:   delivered,
			Failed:      failed,
		})
	}
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(batch)
	}

	return b, nil
}

func (s *BroadcastService) List(ctx context.Context, page models.Page) ([]*models.Broadcast, models.Pagination, error) {
	rows, total, err := s.broadcasts.ListBroadcasts(ctx, page)
	if err != nil {
		return nil, models.Pagination{}, translate(err, "broadcast")
	}
	return rows, models.NewPagination(page, total), nil
}
