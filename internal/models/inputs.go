package models

import "time"

// TelegramProfile is the verified identity from Mini App init data.
type TelegramProfile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// ProfileUpdate holds user-editable fields. Nil leaves the column unchanged,
// a pointer to "" clears it.
type ProfileUpdate struct {
	Phone         *string
	Email         *string
	CdekPvz       *string
	Address       *string
	InstagramLink *string
	YoutubeLink   *string
	TiktokLink    *string
	VkLink        *string
}

// TaskUpdate is a partial admin update. Nil pointers leave fields unchanged.
type TaskUpdate struct {
	Title              *string
	Description        *string
	Requirements       *string
	Type               *TaskType
	Status             *TaskStatus
	RewardFlariki      *int64
	ClearReward        bool
	Deadline           *time.Time
	ClearDeadline      bool
	ReplaceAssignments bool
	AssignedUserIDs    []string
}
