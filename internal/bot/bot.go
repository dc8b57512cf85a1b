package bot

import (
	"context"
	"fmt"
	"time"

	"flariki/internal/config"
	"flariki/internal/domain"
	"flariki/internal/logging"
	"flariki/internal/metrics"
	"flariki/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const updateTimeout = 30 * time.Second

// Bot обслуживает личные сообщения амбассадоров: регистрация, баланс, контакты.
type Bot struct {
	tg     *service.TelegramService
	users  domain.UserStore
	state  *service.StateService
	cfg    config.BotConfig
	links  service.Links
	logger *zerolog.Logger
}

func NewBot(
	tg *service.TelegramService,
	users domain.UserStore,
	state *service.StateService,
	cfg config.BotConfig,
	links service.Links,
	logger *zerolog.Logger,
) *Bot {
	l := logger.With().Str("component", "bot").Logger()
	return &Bot{
		tg:     tg,
		users:  users,
		state:  state,
		cfg:    cfg,
		links:  links,
		logger: &l,
	}
}

// Start reads updates until ctx is cancelled or the channel closes.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, &update)
		}
	}
}

// Stop stops receiving Telegram updates.
func (b *Bot) Stop() {
	b.tg.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update *tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	start := time.Now()
	kind := "text"
	defer func() {
		metrics.ObserveBotUpdate(kind, time.Since(start))
	}()

	updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	l := b.logger.With().
		Str("request_id", uuid.NewString()).
		Int64("telegram_id", update.Message.From.ID).
		Logger()
	updateCtx = l.WithContext(updateCtx)

	if !b.allow(updateCtx, update.Message.From.ID) {
		kind = "limited"
		l.Warn().Msg("Rate limit exceeded")
		b.reply(update.Message.Chat.ID, msgTooFast)
		return
	}

	if panicked := b.withRecovery(updateCtx, func() {
		kind = b.handleMessage(updateCtx, update.Message)
	}); panicked {
		kind = "panic"
	}
}

// allow применяет лимит сообщений на пользователя; отрицательное значение в конфиге отключает проверку.
func (b *Bot) allow(ctx context.Context, telegramID int64) bool {
	if b.cfg.RateLimitMessages <= 0 || b.cfg.RateLimitWindow <= 0 {
		return true
	}
	window := time.Duration(b.cfg.RateLimitWindow) * time.Second
	return b.state.Allow(ctx, fmt.Sprintf("bot:%d", telegramID), b.cfg.RateLimitMessages, window)
}

func (b *Bot) withRecovery(ctx context.Context, handler func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			b.log(ctx).Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
	return false
}

func (b *Bot) log(ctx context.Context) *zerolog.Logger {
	return logging.FromContext(ctx, b.logger)
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.tg.SendMessage(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}
