package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"spookmail-bot/internal/metrics"
	"spookmail-bot/internal/user"
	"spookmail-bot/pkg/models"
)

// Sender отправляет сообщения рассылок через Telegram Bot API.
// Реализует интерфейс broadcast.MessageSender.
type Sender struct {
	bot         *tgbotapi.BotAPI
	userService *user.Service
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewSender создает новый отправитель рассылок
func NewSender(bot *tgbotapi.BotAPI, userService *user.Service, m *metrics.Metrics, logger *zap.Logger) *Sender {
	return &Sender{
		bot:         bot,
		userService: userService,
		metrics:     m,
		logger:      logger,
	}
}

// SendBroadcastMessage отправляет одно сообщение рассылки получателю.
// Пользователь, заблокировавший бота, помечается неактивным.
func (s *Sender) SendBroadcastMessage(ctx context.Context, chatID int64, broadcast *models.Broadcast) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var chattable tgbotapi.Chattable

	switch broadcast.MessageType {
	case models.MessageTypePhoto:
		if broadcast.MediaURL == nil || *broadcast.MediaURL == "" {
			return fmt.Errorf("рассылка %d типа photo без media_url", broadcast.ID)
		}
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(*broadcast.MediaURL))
		photo.Caption = broadcast.Message
		photo.ParseMode = "HTML"
		chattable = photo
	default:
		msg := tgbotapi.NewMessage(chatID, broadcast.Message)
		msg.ParseMode = "HTML"
		msg.DisableWebPagePreview = broadcast.MessageType != models.MessageTypeLink
		chattable = msg
	}

	if _, err := s.bot.Send(chattable); err != nil {
		s.metrics.RecordBroadcastMessage(false)

		if isBlockedError(err) {
			if markErr := s.userService.MarkBlocked(ctx, chatID); markErr != nil {
				s.logger.Error("не удалось пометить пользователя заблокированным",
					zap.Int64("user_id", chatID),
					zap.Error(markErr))
			}
		}

		return fmt.Errorf("ошибка отправки сообщения рассылки: %w", err)
	}

	s.metrics.RecordBroadcastMessage(true)
	return nil
}

// isBlockedError определяет, что Telegram отклонил отправку, потому что
// пользователь заблокировал бота или удалил аккаунт
func isBlockedError(err error) bool {
	text := err.Error()
	return strings.Contains(text, "bot was blocked by the user") ||
		strings.Contains(text, "user is deactivated") ||
		strings.Contains(text, "chat not found")
}
