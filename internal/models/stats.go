package models

import "time"

type StatsFilter struct {
	From   *time.Time
	To     *time.Time
	UserID *string
	TaskID *string
}

// ReportStat aggregates the engagement of one approved report.
type ReportStat struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	UserName    string     `json:"userName"`
	TaskID      string     `json:"taskId"`
	TaskTitle   string     `json:"taskTitle"`
	Type        ReportType `json:"type"`
	Videos      int64      `json:"videos"`
	Stories     int64      `json:"stories"`
	Views       int64      `json:"views"`
	Likes       int64      `json:"likes"`
	Comments    int64      `json:"comments"`
	StoryReach  int64      `json:"storyReach"`
	SubmittedAt time.Time  `json:"submittedAt"`
}

type StatsTotals struct {
	Reports    int64 `json:"reports"`
	Videos     int64 `json:"videos"`
	Stories    int64 `json:"stories"`
	Views      int64 `json:"views"`
	Likes      int64 `json:"likes"`
	Comments   int64 `json:"comments"`
	StoryReach int64 `json:"storyReach"`
}

func (t *StatsTotals) Add(r ReportStat) {
	t.Reports++
	t.Videos += r.Videos
	t.Stories += r.Stories
	t.Views += r.Views
	t.Likes += r.Likes
	t.Comments += r.Comments
	t.StoryReach += r.StoryReach
}

type StatsPeriod struct {
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

type StatsOverview struct {
	Period  StatsPeriod  `json:"period"`
	Totals  StatsTotals  `json:"totals"`
	Reports []ReportStat `json:"reports"`
}

type LeaderboardEntry struct {
	UserID         string  `json:"userId"`
	UserName       string  `json:"userName"`
	Username       *string `json:"username"`
	TelegramID     int64   `json:"telegramId"`
	ReportsCount   int64   `json:"reportsCount"`
	Videos         int64   `json:"videos"`
	Stories        int64   `json:"stories"`
	Views          int64   `json:"views"`
	Likes          int64   `json:"likes"`
	Comments       int64   `json:"comments"`
	StoryReach     int64   `json:"storyReach"`
	Rating         float64 `json:"rating"`
	FlarikiBalance int64   `json:"flarikiBalance"`
}

type Leaderboard struct {
	Period      StatsPeriod        `json:"period"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}
