package service

import (
	"context"
	"fmt"
	"time"

	"flariki/internal/domain"
	"flariki/internal/models"

	"github.com/rs/zerolog"
)

// WeekStart returns Monday 00:00 of t's week in t's location.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := t.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
}

// ReminderService reminds ambassadors who have not reported on an active task this week.
type ReminderService struct {
	tasks      domain.TaskStore
	users      domain.UserStore
	reports    domain.ReportStore
	dispatcher domain.Dispatcher
	links      Links
	loc        *time.Location
	now        func() time.Time
	logger     *zerolog.Logger
}

func NewReminderService(
	tasks domain.TaskStore,
	users domain.UserStore,
	reports domain.ReportStore,
	dispatcher domain.Dispatcher,
	links Links,
	loc *time.Location,
	logger *zerolog.Logger,
) *ReminderService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReminderService{
		tasks:      tasks,
		users:      users,
		reports:    reports,
		dispatcher: dispatcher,
		links:      links,
		loc:        loc,
		now:        time.Now,
		logger:     logger,
	}
}

func (s *ReminderService) activeTasks(ctx context.Context) ([]*models.Task, error) {
	status := models.TaskActive
	var out []*models.Task
	for page := 1; ; page++ {
		tasks, total, err := s.tasks.ListTasks(ctx, models.TaskFilter{
			Status: &status,
			Page:   models.Page{Page: page, Limit: models.MaxPageSize},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, tasks...)
		if len(tasks) == 0 || len(out) >= total {
			return out, nil
		}
	}
}

// SendWeekly queues reminders and returns how many were queued.
func (s *ReminderService) SendWeekly(ctx context.Context) (int, error) {
	since := WeekStart(s.now().In(s.loc))

	tasks, err := s.activeTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active tasks: %w", err)
	}
	role := models.RoleAmbassador
	ambassadors, err := s.users.ListActiveUsers(ctx, &role)
	if err != nil {
		return 0, fmt.Errorf("failed to list ambassadors: %w", err)
	}

	batch := domain.Batch{Name: "reminders"}
	for _, task := range tasks {
		reported, err := s.reports.ReportedUsersSince(ctx, task.ID, since)
		if err != nil {
			s.logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to load reporters, task skipped")
			continue
		}
		for _, u := range ambassadors {
			if u.TelegramID == 0 || reported[u.ID] || !task.VisibleTo(u.ID) {
				continue
			}
			batch.Notifications = append(batch.Notifications, reminderNotification(s.links, task, u.TelegramID))
		}
	}

	count := len(batch.Notifications)
	if count > 0 && s.dispatcher != nil {
		s.dispatcher.Dispatch(batch)
	}
	s.logger.Info().Int("tasks", len(tasks)).Int("reminders", count).Time("since", since).Msg("weekly reminders queued")
	return count, nil
}
