package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"flariki/internal/models"
	"flariki/internal/service"
)

// nullable различает отсутствующее поле и явный null.
type nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (s *Server) listTasks(c *gin.Context) {
	tasks, err := s.svc.Tasks.ListForUser(c.Request.Context(), identity(c).UserID,
		queryEnum[models.TaskStatus](c, "status"),
		queryEnum[models.TaskType](c, "type"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) getTask(c *gin.Context) {
	task, err := s.svc.Tasks.GetForUser(c.Request.Context(), identity(c).UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

type createTaskRequest struct {
	Title           string          `json:"title" binding:"required,max=255"`
	Description     string          `json:"description" binding:"required"`
	Type            models.TaskType `json:"type" binding:"required,oneof=GENERAL PERSONAL"`
	Requirements    *string         `json:"requirements"`
	Deadline        *time.Time      `json:"deadline"`
	RewardFlariki   *int64          `json:"rewardFlariki" binding:"omitempty,gt=0"`
	AssignedUserIDs []string        `json:"assignedUserIds" binding:"omitempty,dive,required"`
}

func (s *Server) createTask(c *gin.Context) {
	var req createTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	task, err := s.svc.Tasks.Create(c.Request.Context(), identity(c).UserID, service.TaskInput{
		Title:           req.Title,
		Description:     req.Description,
		Type:            req.Type,
		Requirements:    req.Requirements,
		Deadline:        req.Deadline,
		RewardFlariki:   req.RewardFlariki,
		AssignedUserIDs: req.AssignedUserIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

type updateTaskRequest struct {
	Title           *string            `json:"title"`
	Description     *string            `json:"description"`
	Requirements    *string            `json:"requirements"`
	Type            *models.TaskType   `json:"type"`
	Status          *models.TaskStatus `json:"status"`
	RewardFlariki   nullable[int64]    `json:"rewardFlariki"`
	Deadline        nullable[time.Time] `json:"deadline"`
	AssignedUserIDs *[]string          `json:"assignedUserIds"`
}

func (r updateTaskRequest) toUpdate() models.TaskUpdate {
	upd := models.TaskUpdate{
		Title:         r.Title,
		Description:   r.Description,
		Requirements:  r.Requirements,
		Type:          r.Type,
		Status:        r.Status,
		RewardFlariki: r.RewardFlariki.Value,
		ClearReward:   r.RewardFlariki.Set && r.RewardFlariki.Value == nil,
		Deadline:      r.Deadline.Value,
		ClearDeadline: r.Deadline.Set && r.Deadline.Value == nil,
	}
	if r.AssignedUserIDs != nil {
		upd.ReplaceAssignments = true
		upd.AssignedUserIDs = *r.AssignedUserIDs
	}
	return upd
}

func (s *Server) updateTask(c *gin.Context) {
	var req updateTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	task, err := s.svc.Tasks.Update(c.Request.Context(), identity(c).UserID, c.Param("id"), req.toUpdate())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (s *Server) deleteTask(c *gin.Context) {
	if err := s.svc.Tasks.Delete(c.Request.Context(), identity(c).UserID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Задание удалено"})
}

func (s *Server) publishTask(c *gin.Context) {
	task, err := s.svc.Tasks.Publish(c.Request.Context(), identity(c).UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (s *Server) adminListTasks(c *gin.Context) {
	tasks, page, err := s.svc.Tasks.List(c.Request.Context(), models.TaskFilter{
		Status: queryEnum[models.TaskStatus](c, "status"),
		Type:   queryEnum[models.TaskType](c, "type"),
		Page:   pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, "tasks", tasks, page)
}

func (s *Server) adminGetTask(c *gin.Context) {
	task, err := s.svc.Tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}
