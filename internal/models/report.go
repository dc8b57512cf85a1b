package models

import "time"

type ReportType string

const (
	ReportVideoLink       ReportType = "VIDEO_LINK"
	ReportStoryScreenshot ReportType = "STORY_SCREENSHOT"
)

func (t ReportType) Valid() bool {
	return t == ReportVideoLink || t == ReportStoryScreenshot
}

type ReportStatus string

const (
	ReportPending  ReportStatus = "PENDING"
	ReportApproved ReportStatus = "APPROVED"
	ReportRejected ReportStatus = "REJECTED"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportApproved, ReportRejected:
		return true
	}
	return false
}

func (s ReportStatus) Terminal() bool {
	return s == ReportApproved || s == ReportRejected
}

type Report struct {
	ID              string       `json:"id"`
	UserID          string       `json:"userId"`
	TaskID          string       `json:"taskId"`
	Type            ReportType   `json:"type"`
	Status          ReportStatus `json:"status"`
	Notes           *string      `json:"notes"`
	RejectionReason *string      `json:"rejectionReason"`
	SubmittedAt     time.Time    `json:"submittedAt"`
	ReviewedAt      *time.Time   `json:"reviewedAt"`
	ReviewedByID    *string      `json:"reviewedById"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`

	VideoLinks []VideoLink `json:"videoLinks"`
	Stories    []Story     `json:"stories"`
	Products   []Product   `json:"products"`

	Task *Task `json:"task,omitempty"`
	User *User `json:"user,omitempty"`
}

type VideoLink struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	Platform *string `json:"platform"`
	Views    *int64  `json:"views"`
	Likes    *int64  `json:"likes"`
	Comments *int64  `json:"comments"`
	Position int     `json:"position"`
}

type Story struct {
	ID             string  `json:"id"`
	StoryURL       string  `json:"storyUrl"`
	ScreenshotFile *string `json:"screenshotFile"`
	ScreenshotURL  *string `json:"screenshotUrl"`
	Reach          int64   `json:"reach"`
	Position       int     `json:"position"`
}

// NewReport is the validated input for report creation.
type NewReport struct {
	UserID     string
	TaskID     string
	Type       ReportType
	Notes      *string
	VideoLinks []VideoLink
	Stories    []Story
	ProductIDs []string
}

// Moderation is a manager decision on a report.
type Moderation struct {
	ReportID        string
	ModeratorID     string
	Status          ReportStatus
	Notes           *string
	RejectionReason *string
}

// ModerationResult describes what a moderation call changed.
type ModerationResult struct {
	Report         *Report
	PreviousStatus ReportStatus
	StatusChanged  bool
	Reward         *FlarikiTransaction
}

type ReportFilter struct {
	UserID *string
	TaskID *string
	Status *ReportStatus
	Type   *ReportType
	Page
}
