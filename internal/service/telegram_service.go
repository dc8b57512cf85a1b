package service

import (
	"flariki/internal/domain"
	"flariki/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// webAppInfo и кнопки web_app отсутствуют в tgbotapi v5.5.1, отправляем разметку как есть
type webAppInfo struct {
	URL string `json:"url"`
}

type webAppInlineButton struct {
	Text   string     `json:"text"`
	WebApp webAppInfo `json:"web_app"`
}

type webAppKeyboard struct {
	InlineKeyboard [][]webAppInlineButton `json:"inline_keyboard"`
}

// WebAppKeyboard builds a single-button inline keyboard that opens the Mini App.
func WebAppKeyboard(b domain.WebAppButton) interface{} {
	return webAppKeyboard{
		InlineKeyboard: [][]webAppInlineButton{{{Text: b.Text, WebApp: webAppInfo{URL: b.URL}}}},
	}
}

type TelegramService struct {
	bot domain.TelegramSender
}

func NewTelegramService(bot domain.TelegramSender) *TelegramService {
	return &TelegramService{
		bot: bot,
	}
}

func (s *TelegramService) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return s.bot.Send(c)
}

func (s *TelegramService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	return s.bot.Send(msg)
}

func (s *TelegramService) SendHTML(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = models.ParseModeHTML
	return s.bot.Send(msg)
}

func (s *TelegramService) SendWithKeyboard(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	return s.bot.Send(msg)
}

func (s *TelegramService) SendWithWebApp(chatID int64, text string, button domain.WebAppButton) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = WebAppKeyboard(button)
	return s.bot.Send(msg)
}

func (s *TelegramService) RemoveKeyboard(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	return s.bot.Send(msg)
}

func (s *TelegramService) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return s.bot.GetUpdatesChan(config)
}

func (s *TelegramService) StopReceivingUpdates() {
	s.bot.StopReceivingUpdates()
}

func (s *TelegramService) GetSelf() tgbotapi.User {
	return s.bot.GetSelf()
}
