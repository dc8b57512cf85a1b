package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"flariki/internal/domain"
	"flariki/internal/events"
	"flariki/internal/metrics"
	"flariki/internal/models"

	"github.com/rs/zerolog"
)

func validURL(raw string) bool {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func nonNegative(field string, v *int64, fields []domain.FieldError) []domain.FieldError {
	if v != nil && *v < 0 {
		return append(fields, domain.FieldError{Field: field, Message: "must be a non-negative integer"})
	}
	return fields
}

// ValidateReport checks the submission body and returns every violation.
func ValidateReport(in models.NewReport) error {
	var fields []domain.FieldError
	if in.TaskID == "" {
		fields = append(fields, domain.FieldError{Field: "taskId", Message: "required"})
	}

	switch in.Type {
	case models.ReportVideoLink:
		if len(in.VideoLinks) == 0 {
			fields = append(fields, domain.FieldError{Field: "videoLinks", Message: "at least one video link is required"})
		}
		for i, link := range in.VideoLinks {
			prefix := fmt.Sprintf("videoLinks[%d]", i)
			if !validURL(link.URL) {
				fields = append(fields, domain.FieldError{Field: prefix + ".url", Message: "must be a valid URL"})
			}
			fields = nonNegative(prefix+".views", link.Views, fields)
			fields = nonNegative(prefix+".likes", link.Likes, fields)
			fields = nonNegative(prefix+".comments", link.Comments, fields)
		}
	case models.ReportStoryScreenshot:
		if len(in.Stories) == 0 {
			fields = append(fields, domain.FieldError{Field: "stories", Message: "at least one story is required"})
		}
		for i, story := range in.Stories {
			prefix := fmt.Sprintf("stories[%d]", i)
			if !validURL(story.StoryURL) {
				fields = append(fields, domain.FieldError{Field: prefix + ".storyUrl", Message: "must be a valid URL"})
			}
			if story.Reach <= 0 {
				fields = append(fields, domain.FieldError{Field: prefix + ".reach", Message: "must be greater than 0"})
			}
		}
	default:
		fields = append(fields, domain.FieldError{Field: "type", Message: "must be VIDEO_LINK or STORY_SCREENSHOT"})
	}

	if len(fields) > 0 {
		return domain.Validation("invalid report", fields...)
	}
	return nil
}

type ReportService struct {
	reports    domain.ReportStore
	gates      *GateService
	dispatcher domain.Dispatcher
	sync       domain.SyncEnqueuer
	audit      *Auditor
	eventBus   domain.EventPublisher
	logger     *zerolog.Logger
}

func NewReportService(
	reports domain.ReportStore,
	gates *GateService,
	dispatcher domain.Dispatcher,
	sync domain.SyncEnqueuer,
	audit *Auditor,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *ReportService {
	return &ReportService{
		reports:    reports,
		gates:      gates,
		dispatcher: dispatcher,
		sync:       sync,
		audit:      audit,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Submit stores a report for a visible ACTIVE task.
func (s *ReportService) Submit(ctx context.Context, userID string, in models.NewReport) (*models.Report, error) {
	if _, err := s.gates.RequireProfile(ctx, userID); err != nil {
		return nil, err
	}
	if err := ValidateReport(in); err != nil {
		return nil, err
	}

	// дети другого типа не сохраняем
	in.UserID = userID
	if in.Type == models.ReportVideoLink {
		in.Stories = nil
	} else {
		in.VideoLinks = nil
	}

	report, err := s.reports.CreateReport(ctx, in)
	if err != nil {
		return nil, translate(err, "task")
	}

	s.enqueueSync(ctx, report)
	publishEvent(s.eventBus, s.logger, events.EventReportSubmitted, events.ReportEventPayload{
		ReportID: report.ID,
		TaskID:   report.TaskID,
		UserID:   report.UserID,
		Status:   string(report.Status),
	})
	return report, nil
}

func (s *ReportService) ListMine(ctx context.Context, userID string, f models.ReportFilter) ([]*models.Report, models.Pagination, error) {
	if _, err := s.gates.RequireProfile(ctx, userID); err != nil {
		return nil, models.Pagination{}, err
	}
	f.UserID = &userID
	return s.List(ctx, f)
}

// Get returns a report to its owner or to staff.
func (s *ReportService) Get(ctx context.Context, caller *Identity, reportID string) (*models.Report, error) {
	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, translate(err, "report")
	}
	if report.UserID != caller.UserID && !caller.Role.IsStaff() {
		return nil, domain.Forbidden(domain.ReasonInsufficientRole, "Нет доступа к отчету", nil)
	}
	return report, nil
}

func (s *ReportService) List(ctx context.Context, f models.ReportFilter) ([]*models.Report, models.Pagination, error) {
	reports, total, err := s.reports.ListReports(ctx, f)
	if err != nil {
		return nil, models.Pagination{}, translate(err, "report")
	}
	return reports, models.NewPagination(f.Page, total), nil
}

// Moderate applies a moderation decision. The reward is credited inside the
// store transaction; notification, audit, event and sync run after commit.
// An empty status keeps the current one, so terminal reports can get notes.
func (s *ReportService) Moderate(ctx context.Context, m models.Moderation) (*models.ModerationResult, error) {
	if m.Status != "" && !m.Status.Valid() {
		return nil, domain.Validation("invalid status",
			domain.FieldError{Field: "status", Message: "must be PENDING, APPROVED or REJECTED"})
	}

	res, err := s.reports.ModerateReport(ctx, m)
	if err != nil {
		return nil, translate(err, "report")
	}
	report := res.Report

	action := AuditReportModerated
	if res.StatusChanged {
		switch report.Status {
		case models.ReportApproved:
			action = AuditReportApproved
		case models.ReportRejected:
			action = AuditReportRejected
		}
		s.notifySubmitter(report, res.Reward)
	}

	details := map[string]interface{}{
		"previousStatus": res.PreviousStatus,
		"status":         report.Status,
	}
	var reward int64
	if res.Reward != nil {
		reward = res.Reward.Amount
		details["reward"] = reward
		metrics.IncLedger(string(res.Reward.Type))
	}
	s.audit.Record(ctx, m.ModeratorID, action, "report", report.ID, details)

	publishEvent(s.eventBus, s.logger, events.EventReportModerated, events.ReportEventPayload{
		ReportID:       report.ID,
		TaskID:         report.TaskID,
		UserID:         report.UserID,
		Status:         string(report.Status),
		PreviousStatus: string(res.PreviousStatus),
		Reward:         reward,
		ModeratorID:    m.ModeratorID,
	})
	if res.Reward != nil {
		publishEvent(s.eventBus, s.logger, events.EventFlarikiAwarded, events.LedgerEventPayload{
			TransactionID: res.Reward.ID,
			UserID:        res.Reward.UserID,
			Type:          string(res.Reward.Type),
			Amount:        res.Reward.Amount,
			ActorID:       m.ModeratorID,
		})
	}

	s.enqueueSync(ctx, report)
	return res, nil
}

func (s *ReportService) notifySubmitter(report *models.Report, reward *models.FlarikiTransaction) {
	if report.User == nil || report.Task == nil {
		return
	}

	var text string
	switch report.Status {
	case models.ReportApproved:
		var amount int64
		if reward != nil {
			amount = reward.Amount
		}
		text = reportApprovedText(report.Task.Title, amount)
	case models.ReportRejected:
		text = reportRejectedText(report.Task.Title, models.Deref(report.RejectionReason))
	default:
		return
	}
	single(s.dispatcher, "report_moderated", domain.Notification{TelegramID: report.User.TelegramID, Text: text})
}

func (s *ReportService) enqueueSync(ctx context.Context, report *models.Report) {
	if s.sync == nil {
		return
	}
	if err := s.sync.EnqueueReport(ctx, report); err != nil {
		s.logger.Error().Err(err).Str("report_id", report.ID).Msg("sheets enqueue error")
	}
}
