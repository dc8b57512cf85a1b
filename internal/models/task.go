package models

import "time"

type TaskType string

const (
	TaskGeneral  TaskType = "GENERAL"
	TaskPersonal TaskType = "PERSONAL"
)

func (t TaskType) Valid() bool {
	return t == TaskGeneral || t == TaskPersonal
}

type TaskStatus string

const (
	TaskDraft     TaskStatus = "DRAFT"
	TaskActive    TaskStatus = "ACTIVE"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskCancelled TaskStatus = "CANCELLED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskDraft, TaskActive, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// taskTransitions: DRAFT -> ACTIVE идет только через publish.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskDraft:  {TaskCancelled},
	TaskActive: {TaskCompleted, TaskCancelled},
}

// CanTransitionTask reports whether a manual status update from -> to is allowed.
// Publishing is handled separately.
func CanTransitionTask(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Requirements  *string    `json:"requirements"`
	Type          TaskType   `json:"type"`
	Status        TaskStatus `json:"status"`
	RewardFlariki *int64     `json:"rewardFlariki"`
	Deadline      *time.Time `json:"deadline"`
	CreatedByID   string     `json:"createdById"`
	PublishedAt   *time.Time `json:"publishedAt"`
	PublishedByID *string    `json:"publishedById"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	Assignments []Assignment `json:"assignments,omitempty"`
	ReportCount int          `json:"reportCount"`
}

// Reward returns the configured reward or 0.
func (t *Task) Reward() int64 {
	if t.RewardFlariki == nil {
		return 0
	}
	return *t.RewardFlariki
}

// VisibleTo is the task audience predicate.
func (t *Task) VisibleTo(userID string) bool {
	if t.Type == TaskGeneral {
		return true
	}
	for _, a := range t.Assignments {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

type Assignment struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	UserID     string    `json:"userId"`
	AssignedAt time.Time `json:"assignedAt"`
}

type TaskFilter struct {
	Status *TaskStatus
	Type   *TaskType
	Page
}
