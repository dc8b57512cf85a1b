package service

import (
	"fmt"
	"strings"

	"flariki/internal/domain"
	"flariki/internal/models"
)

// Links into the Mini App.
type Links struct {
	FrontendURL string
}

func (l Links) url(path string) string {
	return strings.TrimRight(l.FrontendURL, "/") + path
}

func (l Links) Task(taskID string) string {
	return l.url("/tasks/" + taskID)
}

func (l Links) TaskReport(taskID string) string {
	return l.url("/tasks/" + taskID + "/report")
}

func (l Links) Home() string {
	return l.url("/")
}

func taskPublishedNotification(l Links, task *models.Task, telegramID int64) domain.Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 Новое задание: %s\n\n%s", task.Title, task.Description)
	if task.Deadline != nil {
		fmt.Fprintf(&b, "\n\n⏰ Дедлайн: %s", task.Deadline.Format("02.01.2006"))
	}
	return domain.Notification{
		TelegramID: telegramID,
		Text:       b.String(),
		Button:     &domain.WebAppButton{Text: "Открыть задание", URL: l.Task(task.ID)},
	}
}

func reportApprovedText(taskTitle string, reward int64) string {
	text := fmt.Sprintf("✅ Ваш отчет по заданию \"%s\" одобрен!", taskTitle)
	if reward > 0 {
		text += fmt.Sprintf("\n💰 Начислено %d флариков", reward)
	}
	return text
}

func reportRejectedText(taskTitle, reason string) string {
	return fmt.Sprintf("❌ Ваш отчет по заданию \"%s\" отклонен.\n\nПричина: %s", taskTitle, reason)
}

func reminderNotification(l Links, task *models.Task, telegramID int64) domain.Notification {
	return domain.Notification{
		TelegramID: telegramID,
		Text: fmt.Sprintf("📋 Напоминание: необходимо предоставить отчет по заданию \"%s\"\n\n"+
			"Пожалуйста, отправьте ссылку на ролик или скриншот охвата сторис.", task.Title),
		Button: &domain.WebAppButton{Text: "Отправить отчет", URL: l.TaskReport(task.ID)},
	}
}

func broadcastText(title, message string) string {
	return fmt.Sprintf("📢 %s\n\n%s", title, message)
}

func awardText(amount int64, reason string, balance int64) string {
	return fmt.Sprintf("🎁 Вам начислено %d флариков\nПричина: %s\n\n💰 Баланс: %d", amount, reason, balance)
}

func accountActivatedNotification(l Links, telegramID int64) domain.Notification {
	return domain.Notification{
		TelegramID: telegramID,
		Text:       "🎉 Ваш аккаунт амбассадора активирован! Теперь вам доступны задания и магазин.",
		Button:     &domain.WebAppButton{Text: "Открыть приложение", URL: l.Home()},
	}
}

var purchaseStatusTitles = map[models.PurchaseStatus]string{
	models.PurchasePending:    "ожидает обработки",
	models.PurchaseProcessing: "в обработке",
	models.PurchaseShipped:    "отправлен",
	models.PurchaseDelivered:  "доставлен",
	models.PurchaseCancelled:  "отменен",
}

func purchaseStatusText(itemName string, status models.PurchaseStatus) string {
	return fmt.Sprintf("🛍 Статус заказа \"%s\": %s", itemName, purchaseStatusTitles[status])
}
