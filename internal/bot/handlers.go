package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"flariki/internal/database"
	"flariki/internal/domain"
	"flariki/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	btnBalance = "💰 Баланс"
	btnAddress = "📍 Адрес доставки"
	btnContact = "📱 Отправить контакт"
	btnOpenApp = "Открыть приложение"

	skipValue = "-"
)

const (
	msgTooFast        = "⏳ Слишком много сообщений. Попробуйте через минуту."
	msgInternal       = "Произошла ошибка. Попробуйте позже."
	msgNeedStart      = "Вы еще не зарегистрированы. Отправьте /start."
	msgWelcomeNew     = "👋 Добро пожаловать, %s!\n\nВаша заявка на участие в программе амбассадоров отправлена. Мы сообщим, когда ее одобрят."
	msgWelcomePending = "⏳ %s, ваша заявка еще на рассмотрении. Мы сообщим о решении."
	msgWelcomeActive  = "👋 С возвращением, %s!\n\nОткройте приложение, чтобы посмотреть задания."
	msgWelcomeBlocked = "🚫 Доступ к программе приостановлен. Свяжитесь с менеджером."
	msgMenu           = "Также можно пользоваться кнопками меню ниже."
	msgBalance        = "💰 Ваш баланс: %d флариков"
	msgContactForeign = "Пожалуйста, отправьте свой собственный контакт."
	msgContactBad     = "Не удалось распознать номер телефона. Нужен российский номер."
	msgContactSaved   = "✅ Телефон %s сохранен."
	msgAskCdek        = "Введите пункт выдачи СДЭК (код или адрес) или «-», чтобы пропустить:"
	msgAskAddress     = "Введите адрес доставки или «-», чтобы пропустить:"
	msgAddressEmpty   = "Нужно указать хотя бы пункт СДЭК или адрес. Попробуем еще раз."
	msgAddressSaved   = "✅ Данные доставки сохранены."
	msgCancelled      = "Действие отменено."
	msgHelp           = "Команды:\n/start открыть приложение\n/balance баланс флариков\n/address указать адрес доставки\n/cancel отменить ввод"
)

// handleMessage routes a message and returns its kind for metrics.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) string {
	if msg.Contact != nil {
		b.handleContact(ctx, msg)
		return "contact"
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.handleStart(ctx, msg)
		case "balance":
			b.handleBalance(ctx, msg)
		case "address":
			b.startAddress(ctx, msg)
		case "cancel":
			b.handleCancel(ctx, msg)
		default:
			b.reply(msg.Chat.ID, msgHelp)
		}
		return "command"
	}

	text := strings.TrimSpace(msg.Text)
	switch text {
	case btnBalance:
		b.handleBalance(ctx, msg)
		return "menu"
	case btnAddress:
		b.startAddress(ctx, msg)
		return "menu"
	}

	switch b.state.Step(ctx, msg.From.ID) {
	case models.StateEnterCdek:
		b.handleCdekInput(ctx, msg, text)
		return "state"
	case models.StateEnterAddress:
		b.handleAddressInput(ctx, msg, text)
		return "state"
	}

	b.reply(msg.Chat.ID, msgHelp)
	return "text"
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	user, created, err := b.users.UpsertTelegramUser(ctx, models.TelegramProfile{
		TelegramID: msg.From.ID,
		Username:   msg.From.UserName,
		FirstName:  msg.From.FirstName,
		LastName:   msg.From.LastName,
	})
	if err != nil {
		b.log(ctx).Error().Err(err).Msg("failed to register user")
		b.reply(msg.Chat.ID, msgInternal)
		return
	}
	_ = b.state.ClearUserState(ctx, msg.From.ID)

	name := displayName(msg.From)
	var text string
	switch {
	case created:
		b.log(ctx).Info().Str("user_id", user.ID).Msg("New ambassador registered")
		text = fmt.Sprintf(msgWelcomeNew, name)
	case user.Status == models.UserActive:
		text = fmt.Sprintf(msgWelcomeActive, name)
	case user.Status == models.UserPending:
		text = fmt.Sprintf(msgWelcomePending, name)
	default:
		if _, err := b.tg.RemoveKeyboard(msg.Chat.ID, msgWelcomeBlocked); err != nil {
			b.log(ctx).Error().Err(err).Msg("Failed to send message")
		}
		return
	}

	if _, err := b.tg.SendWithWebApp(msg.Chat.ID, text, domain.WebAppButton{Text: btnOpenApp, URL: b.links.Home()}); err != nil {
		b.log(ctx).Error().Err(err).Msg("Failed to send welcome")
	}
	if _, err := b.tg.SendWithKeyboard(msg.Chat.ID, msgMenu, mainMenu()); err != nil {
		b.log(ctx).Error().Err(err).Msg("Failed to send menu")
	}
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.currentUser(ctx, msg)
	if !ok {
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf(msgBalance, user.FlarikiBalance))
}

func (b *Bot) handleContact(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Contact.UserID != 0 && msg.Contact.UserID != msg.From.ID {
		b.reply(msg.Chat.ID, msgContactForeign)
		return
	}
	if _, ok := b.currentUser(ctx, msg); !ok {
		return
	}

	digits := normalizePhone(msg.Contact.PhoneNumber)
	if digits == "" {
		b.reply(msg.Chat.ID, msgContactBad)
		return
	}
	if err := b.users.UpdateUserPhone(ctx, msg.From.ID, "+"+digits); err != nil {
		b.log(ctx).Error().Err(err).Msg("failed to save phone")
		b.reply(msg.Chat.ID, msgInternal)
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf(msgContactSaved, formatPhoneForDisplay(digits)))
}

func (b *Bot) startAddress(ctx context.Context, msg *tgbotapi.Message) {
	if _, ok := b.currentUser(ctx, msg); !ok {
		return
	}
	if err := b.state.SetUserState(ctx, msg.From.ID, models.StateEnterCdek, nil); err != nil {
		b.log(ctx).Error().Err(err).Msg("failed to set state")
		b.reply(msg.Chat.ID, msgInternal)
		return
	}
	b.reply(msg.Chat.ID, msgAskCdek)
}

func (b *Bot) handleCdekInput(ctx context.Context, msg *tgbotapi.Message, text string) {
	cdek := text
	if cdek == skipValue {
		cdek = ""
	}
	if err := b.state.SetUserState(ctx, msg.From.ID, models.StateEnterAddress, map[string]interface{}{"cdek": cdek}); err != nil {
		b.log(ctx).Error().Err(err).Msg("failed to set state")
		b.reply(msg.Chat.ID, msgInternal)
		return
	}
	b.reply(msg.Chat.ID, msgAskAddress)
}

func (b *Bot) handleAddressInput(ctx context.Context, msg *tgbotapi.Message, text string) {
	state, err := b.state.GetUserState(ctx, msg.From.ID)
	if err != nil || state == nil {
		b.reply(msg.Chat.ID, msgInternal)
		return
	}
	cdek := state.GetString("cdek")
	address := text
	if address == skipValue {
		address = ""
	}

	if cdek == "" && address == "" {
		b.reply(msg.Chat.ID, msgAddressEmpty)
		b.startAddress(ctx, msg)
		return
	}

	user, ok := b.currentUser(ctx, msg)
	if !ok {
		return
	}
	var upd models.ProfileUpdate
	if cdek != "" {
		upd.CdekPvz = &cdek
	}
	if address != "" {
		upd.Address = &address
	}
	if _, err := b.users.UpdateUserProfile(ctx, user.ID, upd); err != nil {
		b.log(ctx).Error().Err(err).Msg("failed to save address")
		b.reply(msg.Chat.ID, msgInternal)
		return
	}
	_ = b.state.ClearUserState(ctx, msg.From.ID)
	b.reply(msg.Chat.ID, msgAddressSaved)
}

func (b *Bot) handleCancel(ctx context.Context, msg *tgbotapi.Message) {
	_ = b.state.ClearUserState(ctx, msg.From.ID)
	b.reply(msg.Chat.ID, msgCancelled)
}

// currentUser отвечает пользователю сам, если вернул false.
func (b *Bot) currentUser(ctx context.Context, msg *tgbotapi.Message) (*models.User, bool) {
	user, err := b.users.GetUserByTelegramID(ctx, msg.From.ID)
	if errors.Is(err, database.ErrNotFound) {
		b.reply(msg.Chat.ID, msgNeedStart)
		return nil, false
	}
	if err != nil {
		b.log(ctx).Error().Err(err).Msg("failed to load user")
		b.reply(msg.Chat.ID, msgInternal)
		return nil, false
	}
	return user, true
}

func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact(btnContact)),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnBalance),
			tgbotapi.NewKeyboardButton(btnAddress),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func displayName(u *tgbotapi.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return "амбассадор"
}
