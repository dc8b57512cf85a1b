package service

import (
	"context"
	"fmt"

	"flariki/internal/domain"

	"github.com/rs/zerolog"
)

// TelegramNotifier delivers notifications as bot messages.
type TelegramNotifier struct {
	tg *TelegramService
}

func NewTelegramNotifier(tg *TelegramService) *TelegramNotifier {
	return &TelegramNotifier{tg: tg}
}

func (n *TelegramNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.TelegramID == 0 {
		return fmt.Errorf("notification without telegram id")
	}

	var err error
	if msg.Button != nil {
		_, err = n.tg.SendWithWebApp(msg.TelegramID, msg.Text, *msg.Button)
	} else {
		_, err = n.tg.SendMessage(msg.TelegramID, msg.Text)
	}
	if err != nil {
		return fmt.Errorf("failed to send telegram message to %d: %w", msg.TelegramID, err)
	}
	return nil
}

// single queues one notification on the dispatcher.
func single(d domain.Dispatcher, name string, n domain.Notification) {
	if d == nil || n.TelegramID == 0 {
		return
	}
	d.Dispatch(domain.Batch{Name: name, Notifications: []domain.Notification{n}})
}

func publishEvent(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, payload interface{}) {
	if bus == nil {
		return
	}
	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
