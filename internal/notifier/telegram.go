// Package notifier provides the operator side-channel for critical alerts.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"camera-alert-service/internal/logging"
	"camera-alert-service/internal/models"
	"camera-alert-service/internal/utils"
)

// Telegram sends critical alerts to a configured chat. Sends are rate
// limited to stay under the Telegram API quota.
type Telegram struct {
	bot     *bot.Bot
	chatID  int64
	limiter *rate.Limiter
	logger  *logging.Logger
}

func NewTelegram(token string, chatID int64, logger *logging.Logger) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("missing telegram bot token")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("missing telegram chat id")
	}

	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}

	return &Telegram{
		bot:     b,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		logger:  logger,
	}, nil
}

// Notify sends one alert message, retrying transient API failures.
func (t *Telegram) Notify(ctx context.Context, alert models.Alert) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait failed: %w", err)
	}

	text := fmt.Sprintf(
		"*Critical alert*\n%s\n\n*Alert ID:* %d\n*Event ID:* %d\n*Created:* %s",
		alert.Description,
		alert.ID,
		alert.EventID,
		alert.CreatedAt.Format(time.RFC3339),
	)

	return utils.Retry(ctx, t.logger, 3, time.Second, func() error {
		params := &bot.SendMessageParams{
			ChatID:    t.chatID,
			Text:      text,
			ParseMode: "Markdown",
		}
		if _, err := t.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send telegram message to chat %d: %w", t.chatID, err)
		}
		return nil
	})
}
