package service

import (
	"context"
	"testing"

	"flariki/internal/domain"
	"flariki/internal/events"
	"flariki/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReportService(env *testEnv) *ReportService {
	return NewReportService(env.db, env.gates, env.dispatcher, env.sync, env.audit, env.bus, env.logger)
}

func videoReport(taskID string) models.NewReport {
	return models.NewReport{
		TaskID: taskID,
		Type:   models.ReportVideoLink,
		VideoLinks: []models.VideoLink{
			{URL: "https://youtube.com/watch?v=1", Views: int64Ptr(1000), Likes: int64Ptr(50)},
		},
	}
}

func TestValidateReport(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, ValidateReport(videoReport("t1")))
		assert.NoError(t, ValidateReport(models.NewReport{
			TaskID:  "t1",
			Type:    models.ReportStoryScreenshot,
			Stories: []models.Story{{StoryURL: "https://instagram.com/s/1", Reach: 300}},
		}))
	})

	t.Run("FieldErrors", func(t *testing.T) {
		err := ValidateReport(models.NewReport{
			Type: models.ReportVideoLink,
			VideoLinks: []models.VideoLink{
				{URL: "https://ok.example/v"},
				{URL: "not a url", Views: int64Ptr(-1)},
			},
		})
		de := assertKind(t, err, domain.KindValidation)

		var fields []string
		for _, f := range de.Fields {
			fields = append(fields, f.Field)
		}
		assert.ElementsMatch(t, []string{"taskId", "videoLinks[1].url", "videoLinks[1].views"}, fields)
	})

	t.Run("EmptyStories", func(t *testing.T) {
		de := assertKind(t, ValidateReport(models.NewReport{TaskID: "t", Type: models.ReportStoryScreenshot}), domain.KindValidation)
		require.Len(t, de.Fields, 1)
		assert.Equal(t, "stories", de.Fields[0].Field)
	})

	t.Run("ZeroReach", func(t *testing.T) {
		de := assertKind(t, ValidateReport(models.NewReport{
			TaskID:  "t",
			Type:    models.ReportStoryScreenshot,
			Stories: []models.Story{{StoryURL: "ftp://x/y", Reach: 0}},
		}), domain.KindValidation)
		assert.Len(t, de.Fields, 2)
	})

	t.Run("UnknownType", func(t *testing.T) {
		de := assertKind(t, ValidateReport(models.NewReport{TaskID: "t", Type: "PHOTO"}), domain.KindValidation)
		assert.Equal(t, "type", de.Fields[0].Field)
	})
}

func TestReportService_Submit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := newReportService(env)
	manager := env.staff(t, models.RoleManager, "secret1")

	t.Run("Success", func(t *testing.T) {
		user := env.ambassador(t)
		task := env.activeTask(t, manager, models.TaskGeneral, 100)

		in := videoReport(task.ID)
		in.Stories = []models.Story{{StoryURL: "https://instagram.com/s/1", Reach: 10}}

		report, err := svc.Submit(ctx, user.ID, in)
		require.NoError(t, err)
		assert.Equal(t, models.ReportPending, report.Status)
		assert.Equal(t, user.ID, report.UserID)
		require.Len(t, report.VideoLinks, 1)
		assert.Empty(t, report.Stories)

		assert.Contains(t, env.sync.reports, report.ID)
		assert.Contains(t, env.published(), events.EventReportSubmitted)
	})

	t.Run("ProfileIncomplete", func(t *testing.T) {
		user := env.newUser(t, models.UserActive, false)
		task := env.activeTask(t, manager, models.TaskGeneral, 0)

		_, err := svc.Submit(ctx, user.ID, videoReport(task.ID))
		de := assertKind(t, err, domain.KindForbidden)
		assert.Equal(t, domain.ReasonProfileIncomplete, de.Code)
	})

	t.Run("InvisiblePersonalTask", func(t *testing.T) {
		owner := env.ambassador(t)
		other := env.ambassador(t)
		task := env.activeTask(t, manager, models.TaskPersonal, 50, owner.ID)

		_, err := svc.Submit(ctx, other.ID, videoReport(task.ID))
		assertKind(t, err, domain.KindNotFound)

		_, err = svc.Submit(ctx, owner.ID, videoReport(task.ID))
		assert.NoError(t, err)
	})

	t.Run("InactiveProduct", func(t *testing.T) {
		user := env.ambassador(t)
		task := env.activeTask(t, manager, models.TaskGeneral, 0)
		product := &models.Product{Name: "Крем", IsActive: false}
		require.NoError(t, env.db.CreateProduct(ctx, product))

		in := videoReport(task.ID)
		in.ProductIDs = []string{product.ID}
		_, err := svc.Submit(ctx, user.ID, in)
		de := assertKind(t, err, domain.KindValidation)
		assert.Equal(t, "productIds", de.Fields[0].Field)
	})
}

func TestReportService_Moderate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := newReportService(env)
	manager := env.staff(t, models.RoleManager, "secret1")

	submit := func(t *testing.T, reward int64) (*models.User, *models.Report) {
		user := env.ambassador(t)
		task := env.activeTask(t, manager, models.TaskGeneral, reward)
		report, err := svc.Submit(ctx, user.ID, videoReport(task.ID))
		require.NoError(t, err)
		return user, report
	}

	t.Run("ApproveCreditsReward", func(t *testing.T) {
		user, report := submit(t, 100)

		res, err := svc.Moderate(ctx, models.Moderation{ReportID: report.ID, ModeratorID: manager.ID, Status: models.ReportApproved})
		require.NoError(t, err)
		assert.True(t, res.StatusChanged)
		assert.Equal(t, models.ReportPending, res.PreviousStatus)
		require.NotNil(t, res.Reward)
		assert.Equal(t, int64(100), res.Reward.Amount)
		assert.Equal(t, models.TxEarned, res.Reward.Type)

		balance, err := env.db.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), balance)

		sent := env.dispatcher.notifications("report_moderated")
		require.NotEmpty(t, sent)
		last := sent[len(sent)-1]
		assert.Equal(t, user.TelegramID, last.TelegramID)
		assert.Contains(t, last.Text, "Начислено 100 флариков")
		assert.Contains(t, last.Text, "Сторис с продуктом")

		assert.Contains(t, env.auditActions(t), AuditReportApproved)
		assert.Contains(t, env.published(), events.EventFlarikiAwarded)
		env.requireLedgerInvariant(t)

		// повторное одобрение не начисляет второй раз
		before := len(env.dispatcher.notifications("report_moderated"))
		res, err = svc.Moderate(ctx, models.Moderation{ReportID: report.ID, ModeratorID: manager.ID, Status: models.ReportApproved, Notes: strPtr("ok")})
		require.NoError(t, err)
		assert.False(t, res.StatusChanged)
		assert.Nil(t, res.Reward)
		assert.Equal(t, "ok", models.Deref(res.Report.Notes))
		assert.Len(t, env.dispatcher.notifications("report_moderated"), before)
		assert.Contains(t, env.auditActions(t), AuditReportModerated)

		balance, err = env.db.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), balance)
	})

	t.Run("ApproveWithoutReward", func(t *testing.T) {
		user, report := submit(t, 0)

		res, err := svc.Moderate(ctx, models.Moderation{ReportID: report.ID, ModeratorID: manager.ID, Status: models.ReportApproved})
		require.NoError(t, err)
		assert.Nil(t, res.Reward)

		balance, err := env.db.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Zero(t, balance)
	})

	t.Run("RejectRequiresReason", func(t *testing.T) {
		_, report := submit(t, 10)

		_, err := svc.Moderate(ctx, models.Moderation{ReportID: report.ID, ModeratorID: manager.ID, Status: models.ReportRejected})
		de := assertKind(t, err, domain.KindValidation)
		assert.Equal(t, "rejectionReason", de.Fields[0].Field)

		_, err = svc.Moderate(ctx, models.Moderation{ReportID: report.ID, ModeratorID: manager.ID, Status: models.ReportRejected, RejectionReason: strPtr("  ")})
		assertKind(t, err, domain.KindValidation)
	})

	t.Run("Reject", func(t *testing.T) {
		user, report := submit(t, 10)

		res, err := svc.Moderate(ctx, models.Moderation{
			ReportID:        report.ID,
			ModeratorID:     manager.ID,
			Status:          models.ReportRejected,
			RejectionReason: strPtr("Нет ссылки на продукт"),
		})
		require.NoError(t, err)
		assert.Equal(t, models.ReportRejected, res.Report.Status)
		assert.Nil(t, res.Reward)

		sent := env.dispatcher.notifications("report_moderated")
		last := sent[len(sent)-1]
		assert.Equal(t, user.TelegramID, last.TelegramID)
		assert.Contains(t, last.Text, "Причина: Нет ссылки на продукт")
		assert.Contains(t, env.auditActions(t), AuditReportRejected)

		// заметки к отклоненному отчету без повторной причины
		res, err = svc.Moderate(ctx, models.Moderation{ReportID: report.ID, ModeratorID: manager.ID, Status: models.ReportRejected, Notes: strPtr("связались")})
		require.NoError(t, err)
		assert.False(t, res.StatusChanged)
		assert.Equal(t, "связались", models.Deref(res.Report.Notes))
		assert.Equal(t, "Нет ссылки на продукт", models.Deref(res.Report.RejectionReason))

		res, err = svc.Moderate(ctx, models.Moderation{ReportID: report.ID, ModeratorID: manager.ID, Notes: strPtr("повторно")})
		require.NoError(t, err)
		assert.Equal(t, models.ReportRejected, res.Report.Status)
		assert.Equal(t, "повторно", models.Deref(res.Report.Notes))

		// из терминального статуса переходов нет
		_, err = svc.Moderate(ctx, models.Moderation{ReportID: report.ID, ModeratorID: manager.ID, Status: models.ReportApproved})
		de := assertKind(t, err, domain.KindConflict)
		assert.Equal(t, domain.CodeInvalidTransition, de.Code)
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		_, report := submit(t, 10)
		_, err := svc.Moderate(ctx, models.Moderation{ReportID: report.ID, ModeratorID: manager.ID, Status: "DONE"})
		assertKind(t, err, domain.KindValidation)
	})

	t.Run("UnknownReport", func(t *testing.T) {
		_, err := svc.Moderate(ctx, models.Moderation{ReportID: "missing", ModeratorID: manager.ID, Status: models.ReportApproved})
		assertKind(t, err, domain.KindNotFound)
	})
}

func TestReportService_Get(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := newReportService(env)
	manager := env.staff(t, models.RoleManager, "secret1")
	owner := env.ambassador(t)
	other := env.ambassador(t)
	task := env.activeTask(t, manager, models.TaskGeneral, 0)

	report, err := svc.Submit(ctx, owner.ID, videoReport(task.ID))
	require.NoError(t, err)

	got, err := svc.Get(ctx, &Identity{UserID: owner.ID, Role: models.RoleAmbassador}, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, got.ID)

	_, err = svc.Get(ctx, &Identity{UserID: manager.ID, Role: models.RoleManager}, report.ID)
	assert.NoError(t, err)

	_, err = svc.Get(ctx, &Identity{UserID: other.ID, Role: models.RoleAmbassador}, report.ID)
	de := assertKind(t, err, domain.KindForbidden)
	assert.Equal(t, domain.ReasonInsufficientRole, de.Code)

	mine, page, err := svc.ListMine(ctx, owner.ID, models.ReportFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Equal(t, 1, page.Total)
}
