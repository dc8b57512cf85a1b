package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"flariki/internal/domain"
	"flariki/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *mockTelegramSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *mockTelegramSender) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	args := m.Called(config)
	return args.Get(0).(tgbotapi.UpdatesChannel)
}

func (m *mockTelegramSender) GetSelf() tgbotapi.User {
	args := m.Called()
	return args.Get(0).(tgbotapi.User)
}

func (m *mockTelegramSender) StopReceivingUpdates() {
	m.Called()
}

func TestTelegramService(t *testing.T) {
	mockSender := new(mockTelegramSender)
	svc := NewTelegramService(mockSender)

	t.Run("SendMessage", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.Text == "hello" && msg.ChatID == 123
		})).Return(tgbotapi.Message{}, nil).Once()

		_, err := svc.SendMessage(123, "hello")
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})

	t.Run("SendHTML", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ParseMode == models.ParseModeHTML
		})).Return(tgbotapi.Message{}, nil).Once()

		_, err := svc.SendHTML(123, "<b>bold</b>")
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})

	t.Run("SendWithWebApp", func(t *testing.T) {
		var sent tgbotapi.MessageConfig
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			sent = msg
			return ok
		})).Return(tgbotapi.Message{}, nil).Once()

		_, err := svc.SendWithWebApp(5, "go", domain.WebAppButton{Text: "Открыть", URL: "https://app.example/tasks/1"})
		require.NoError(t, err)

		raw, err := json.Marshal(sent.ReplyMarkup)
		require.NoError(t, err)
		assert.JSONEq(t, `{"inline_keyboard":[[{"text":"Открыть","web_app":{"url":"https://app.example/tasks/1"}}]]}`, string(raw))
	})

	t.Run("SendError", func(t *testing.T) {
		mockSender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("blocked")).Once()

		_, err := svc.SendMessage(1, "x")
		assert.Error(t, err)
	})
}

func TestTelegramNotifier(t *testing.T) {
	sender := new(mockTelegramSender)
	n := NewTelegramNotifier(NewTelegramService(sender))
	ctx := context.Background()

	t.Run("PlainText", func(t *testing.T) {
		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ChatID == 10 && msg.ReplyMarkup == nil && msg.Text == broadcastText("Акция", "Скидки")
		})).Return(tgbotapi.Message{}, nil).Once()

		require.NoError(t, n.Notify(ctx, domain.Notification{TelegramID: 10, Text: broadcastText("Акция", "Скидки")}))
	})

	t.Run("WithButton", func(t *testing.T) {
		links := Links{FrontendURL: "https://app.example/"}
		task := &models.Task{ID: "t1", Title: "Сторис"}
		note := reminderNotification(links, task, 11)

		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ChatID == 11 && msg.ReplyMarkup != nil
		})).Return(tgbotapi.Message{}, nil).Once()

		require.NoError(t, n.Notify(ctx, note))
		assert.Equal(t, "https://app.example/tasks/t1/report", note.Button.URL)
	})

	t.Run("MissingRecipient", func(t *testing.T) {
		assert.Error(t, n.Notify(ctx, domain.Notification{Text: "x"}))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, n.Notify(cctx, domain.Notification{TelegramID: 1, Text: "x"}), context.Canceled)
	})

	t.Run("SendFailureWrapped", func(t *testing.T) {
		blocked := errors.New("Forbidden: bot was blocked by the user")
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, blocked).Once()
		assert.ErrorIs(t, n.Notify(ctx, domain.Notification{TelegramID: 12, Text: "x"}), blocked)
	})

	sender.AssertExpectations(t)
}
