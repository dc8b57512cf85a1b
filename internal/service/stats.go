package service

import (
	"context"
	"math"
	"sort"
	"strings"

	"flariki/internal/domain"
	"flariki/internal/models"
)

// Rating weights for the leaderboard.
const (
	weightViews    = 1.0
	weightLikes    = 2.0
	weightComments = 3.0
	weightReach    = 0.5
)

// Rating scores engagement, rounded to two decimals.
func Rating(views, likes, comments, reach int64) float64 {
	r := weightViews*float64(views) + weightLikes*float64(likes) + weightComments*float64(comments) + weightReach*float64(reach)
	return math.Round(r*100) / 100
}

type StatsService struct {
	stats domain.StatsStore
}

func NewStatsService(stats domain.StatsStore) *StatsService {
	return &StatsService{stats: stats}
}

func (s *StatsService) Overview(ctx context.Context, f models.StatsFilter) (*models.StatsOverview, error) {
	rows, err := s.stats.ApprovedReportStats(ctx, f)
	if err != nil {
		return nil, translate(err, "report")
	}
	out := &models.StatsOverview{
		Period:  models.StatsPeriod{StartDate: f.From, EndDate: f.To},
		Reports: rows,
	}
	for _, r := range rows {
		out.Totals.Add(r)
	}
	return out, nil
}

func leaderboardName(u *models.User) string {
	name := strings.TrimSpace(models.Deref(u.FirstName) + " " + models.Deref(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	return "Неизвестно"
}

// Leaderboard ranks ACTIVE ambassadors with approved reports in the period.
func (s *StatsService) Leaderboard(ctx context.Context, f models.StatsFilter) (*models.Leaderboard, error) {
	role := models.RoleAmbassador
	users, err := s.stats.ListActiveUsers(ctx, &role)
	if err != nil {
		return nil, translate(err, "user")
	}
	rows, err := s.stats.ApprovedReportStats(ctx, models.StatsFilter{From: f.From, To: f.To})
	if err != nil {
		return nil, translate(err, "report")
	}

	byUser := make(map[string]*models.LeaderboardEntry, len(users))
	for _, u := range users {
		byUser[u.ID] = &models.LeaderboardEntry{
			UserID:         u.ID,
			UserName:       leaderboardName(u),
			Username:       u.Username,
			TelegramID:     u.TelegramID,
			FlarikiBalance: u.FlarikiBalance,
		}
	}
	for _, r := range rows {
		e, ok := byUser[r.UserID]
		if !ok {
			continue
		}
		e.ReportsCount++
		e.Videos += r.Videos
		e.Stories += r.Stories
		e.Views += r.Views
		e.Likes += r.Likes
		e.Comments += r.Comments
		e.StoryReach += r.StoryReach
	}

	entries := make([]models.LeaderboardEntry, 0, len(byUser))
	for _, e := range byUser {
		if e.ReportsCount == 0 {
			continue
		}
		e.Rating = Rating(e.Views, e.Likes, e.Comments, e.StoryReach)
		entries = append(entries, *e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Rating != entries[j].Rating {
			return entries[i].Rating > entries[j].Rating
		}
		return entries[i].UserID < entries[j].UserID
	})

	return &models.Leaderboard{
		Period:      models.StatsPeriod{StartDate: f.From, EndDate: f.To},
		Leaderboard: entries,
	}, nil
}
