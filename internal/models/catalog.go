package models

import (
	"encoding/json"
	"time"
)

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	ImageURL    *string   `json:"imageUrl"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Tag struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Color       *string   `json:"color"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UsersCount  int       `json:"usersCount"`
}

type Broadcast struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	TagIDs          []string  `json:"tagIds"`
	TaskIDs         []string  `json:"taskIds"`
	RecipientsCount int       `json:"recipientsCount"`
	CreatedByID     string    `json:"createdById"`
	SentAt          time.Time `json:"sentAt"`
}

type AuditLog struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   *string         `json:"entityId"`
	UserID     *string         `json:"userId"`
	Details    json.RawMessage `json:"details"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type AuditFilter struct {
	Action     *string
	EntityType *string
	Page
}

type UserFilter struct {
	Status *UserStatus
	Role   *Role
	Search string
	Page
}
