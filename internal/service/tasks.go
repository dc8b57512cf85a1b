package service

import (
	"context"
	"strings"
	"time"

	"flariki/internal/domain"
	"flariki/internal/events"
	"flariki/internal/models"

	"github.com/rs/zerolog"
)

// TaskInput is the body of a task creation.
type TaskInput struct {
	Title           string
	Description     string
	Type            models.TaskType
	Requirements    *string
	Deadline        *time.Time
	RewardFlariki   *int64
	AssignedUserIDs []string
}

func (in TaskInput) validate() error {
	var fields []domain.FieldError
	if strings.TrimSpace(in.Title) == "" {
		fields = append(fields, domain.FieldError{Field: "title", Message: "required"})
	}
	if strings.TrimSpace(in.Description) == "" {
		fields = append(fields, domain.FieldError{Field: "description", Message: "required"})
	}
	if !in.Type.Valid() {
		fields = append(fields, domain.FieldError{Field: "type", Message: "must be GENERAL or PERSONAL"})
	}
	if in.RewardFlariki != nil && *in.RewardFlariki <= 0 {
		fields = append(fields, domain.FieldError{Field: "rewardFlariki", Message: "must be greater than 0"})
	}
	if in.Type == models.TaskPersonal && len(in.AssignedUserIDs) == 0 {
		fields = append(fields, domain.FieldError{Field: "assignedUserIds", Message: "personal task requires at least one assignee"})
	}
	if len(fields) > 0 {
		return domain.Validation("invalid task", fields...)
	}
	return nil
}

type TaskService struct {
	tasks      domain.TaskStore
	users      domain.UserStore
	gates      *GateService
	dispatcher domain.Dispatcher
	audit      *Auditor
	eventBus   domain.EventPublisher
	links      Links
	logger     *zerolog.Logger
}

func NewTaskService(
	tasks domain.TaskStore,
	users domain.UserStore,
	gates *GateService,
	dispatcher domain.Dispatcher,
	audit *Auditor,
	eventBus domain.EventPublisher,
	links Links,
	logger *zerolog.Logger,
) *TaskService {
	return &TaskService{
		tasks:      tasks,
		users:      users,
		gates:      gates,
		dispatcher: dispatcher,
		audit:      audit,
		eventBus:   eventBus,
		links:      links,
		logger:     logger,
	}
}

// ListForUser returns the tasks visible to the caller. status defaults to ACTIVE.
func (s *TaskService) ListForUser(ctx context.Context, userID string, status *models.TaskStatus, taskType *models.TaskType) ([]*models.Task, error) {
	if _, err := s.gates.RequireProfile(ctx, userID); err != nil {
		return nil, err
	}
	st := models.TaskActive
	if status != nil {
		st = *status
	}
	tasks, err := s.tasks.ListVisibleTasks(ctx, userID, st, taskType)
	return tasks, translate(err, "task")
}

// GetForUser returns an ACTIVE task visible to the caller.
func (s *TaskService) GetForUser(ctx context.Context, userID, taskID string) (*models.Task, error) {
	if _, err := s.gates.RequireProfile(ctx, userID); err != nil {
		return nil, err
	}
	task, err := s.tasks.GetVisibleTask(ctx, userID, taskID)
	if err != nil {
		return nil, translate(err, "task")
	}
	return task, nil
}

func (s *TaskService) Create(ctx context.Context, actorID string, in TaskInput) (*models.Task, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	task := &models.Task{
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		Requirements:  in.Requirements,
		Type:          in.Type,
		Status:        models.TaskDraft,
		RewardFlariki: in.RewardFlariki,
		Deadline:      in.Deadline,
		CreatedByID:   actorID,
	}
	assignees := in.AssignedUserIDs
	if task.Type == models.TaskGeneral {
		assignees = nil
	}
	if err := s.tasks.CreateTask(ctx, task, assignees); err != nil {
		return nil, translate(err, "assignee")
	}

	s.audit.Record(ctx, actorID, AuditTaskCreated, "task", task.ID, map[string]interface{}{
		"title":     task.Title,
		"type":      task.Type,
		"assignees": len(task.Assignments),
	})
	return task, nil
}

func (s *TaskService) Update(ctx context.Context, actorID, taskID string, upd models.TaskUpdate) (*models.Task, error) {
	var fields []domain.FieldError
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		fields = append(fields, domain.FieldError{Field: "title", Message: "must not be empty"})
	}
	if upd.Description != nil && strings.TrimSpace(*upd.Description) == "" {
		fields = append(fields, domain.FieldError{Field: "description", Message: "must not be empty"})
	}
	if upd.Type != nil && !upd.Type.Valid() {
		fields = append(fields, domain.FieldError{Field: "type", Message: "must be GENERAL or PERSONAL"})
	}
	if upd.Status != nil && !upd.Status.Valid() {
		fields = append(fields, domain.FieldError{Field: "status", Message: "unknown status"})
	}
	if upd.RewardFlariki != nil && *upd.RewardFlariki <= 0 {
		fields = append(fields, domain.FieldError{Field: "rewardFlariki", Message: "must be greater than 0"})
	}
	if len(fields) > 0 {
		return nil, domain.Validation("invalid task update", fields...)
	}

	current, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, translate(err, "task")
	}
	if upd.Status != nil && *upd.Status == models.TaskActive && current.Status == models.TaskDraft {
		return nil, domain.Conflict(domain.CodeInvalidTransition, "use publish to activate a draft task", nil)
	}

	resultType := current.Type
	if upd.Type != nil {
		resultType = *upd.Type
	}
	assignees := len(current.Assignments)
	if upd.ReplaceAssignments {
		assignees = len(upd.AssignedUserIDs)
	}
	if resultType == models.TaskPersonal && assignees == 0 && current.Status != models.TaskDraft {
		return nil, domain.Validation("personal task requires at least one assignee",
			domain.FieldError{Field: "assignedUserIds", Message: "at least one assignee is required"})
	}

	task, err := s.tasks.UpdateTask(ctx, taskID, upd)
	if err != nil {
		return nil, translate(err, "task")
	}

	s.audit.Record(ctx, actorID, AuditTaskUpdated, "task", task.ID, map[string]interface{}{
		"status": task.Status,
	})
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, actorID, taskID string) error {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return translate(err, "task")
	}
	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		return translate(err, "task")
	}
	s.audit.Record(ctx, actorID, AuditTaskDeleted, "task", taskID, map[string]interface{}{"title": task.Title})
	return nil
}

// Publish activates a draft task and notifies its audience.
func (s *TaskService) Publish(ctx context.Context, actorID, taskID string) (*models.Task, error) {
	task, err := s.tasks.PublishTask(ctx, taskID, actorID)
	if err != nil {
		return nil, translate(err, "task")
	}

	recipients, err := s.audience(ctx, task)
	if err != nil {
		// задание уже опубликовано, рассылка не критична
		s.logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to resolve task audience")
	}

	if len(recipients) > 0 && s.dispatcher != nil {
		batch := domain.Batch{Name: "task_published"}
		for _, u := range recipients {
			if u.TelegramID == 0 {
				continue
			}
			batch.Notifications = append(batch.Notifications, taskPublishedNotification(s.links, task, u.TelegramID))
		}
		s.dispatcher.Dispatch(batch)
	}

	s.audit.Record(ctx, actorID, AuditTaskPublished, "task", task.ID, map[string]interface{}{
		"recipients": len(recipients),
	})
	publishEvent(s.eventBus, s.logger, events.EventTaskPublished, events.TaskEventPayload{
		TaskID:     task.ID,
		Title:      task.Title,
		Type:       string(task.Type),
		Recipients: len(recipients),
		ActorID:    actorID,
	})
	return task, nil
}

// audience: GENERAL получают все активные амбассадоры, PERSONAL только активные исполнители.
func (s *TaskService) audience(ctx context.Context, task *models.Task) ([]*models.User, error) {
	if task.Type == models.TaskGeneral {
		role := models.RoleAmbassador
		return s.users.ListActiveUsers(ctx, &role)
	}

	ids := make([]string, 0, len(task.Assignments))
	for _, a := range task.Assignments {
		ids = append(ids, a.UserID)
	}
	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	active := users[:0]
	for _, u := range users {
		if u.Status == models.UserActive {
			active = append(active, u)
		}
	}
	return active, nil
}

func (s *TaskService) List(ctx context.Context, f models.TaskFilter) ([]*models.Task, models.Pagination, error) {
	tasks, total, err := s.tasks.ListTasks(ctx, f)
	if err != nil {
		return nil, models.Pagination{}, translate(err, "task")
	}
	return tasks, models.NewPagination(f.Page, total), nil
}

func (s *TaskService) Get(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, translate(err, "task")
	}
	return task, nil
}
