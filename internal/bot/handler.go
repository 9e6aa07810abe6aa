package bot

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"spookmail-bot/internal/metrics"
	"spookmail-bot/internal/quota"
	"spookmail-bot/internal/referral"
	"spookmail-bot/internal/store"
	"spookmail-bot/internal/user"
	"spookmail-bot/internal/verifier"
	"spookmail-bot/pkg/models"
)

const (
	// Лимиты безопасности
	MaxTextLength     = 4000 // Максимальная длина текста сообщения
	MaxUsernameLength = 32   // Максимальная длина username

	// Rate limiting
	MaxRequestsPerMinute = 30 // Максимум запросов в минуту на пользователя
	RateLimitWindow      = time.Minute

	// Количество последних проверок в истории /stats
	RecentChecksLimit = 5
)

// RateLimiter простой rate limiter для пользователей
type RateLimiter struct {
	requests map[int64][]time.Time
	mutex    sync.RWMutex
}

// NewRateLimiter создает новый rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		requests: make(map[int64][]time.Time),
	}
}

// IsAllowed проверяет, разрешен ли запрос для пользователя
func (rl *RateLimiter) IsAllowed(userID int64) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	userRequests := rl.requests[userID]

	// Удаляем старые запросы
	var validRequests []time.Time
	for _, reqTime := range userRequests {
		if now.Sub(reqTime) < RateLimitWindow {
			validRequests = append(validRequests, reqTime)
		}
	}

	// Проверяем лимит
	if len(validRequests) >= MaxRequestsPerMinute {
		rl.requests[userID] = validRequests
		return false
	}

	// Добавляем текущий запрос
	validRequests = append(validRequests, now)
	rl.requests[userID] = validRequests
	return true
}

// Handler представляет обработчик сообщений Telegram
type Handler struct {
	bot             *tgbotapi.BotAPI
	userService     *user.Service
	quotaService    *quota.Service
	referralService *referral.Service
	verifierClient  *verifier.Client
	store           store.Store
	messages        *Messages
	metrics         *metrics.Metrics
	rateLimiter     *RateLimiter
	logger          *zap.Logger
}

// NewHandler создает новый обработчик
func NewHandler(
	bot *tgbotapi.BotAPI,
	userService *user.Service,
	quotaService *quota.Service,
	referralService *referral.Service,
	verifierClient *verifier.Client,
	st store.Store,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		bot:             bot,
		userService:     userService,
		quotaService:    quotaService,
		referralService: referralService,
		verifierClient:  verifierClient,
		store:           st,
		messages:        NewMessages(),
		metrics:         m,
		rateLimiter:     NewRateLimiter(),
		logger:          logger,
	}
}

// HandleUpdate обрабатывает входящее обновление
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	// Получаем ID пользователя для rate limiting
	var userID int64
	if update.Message != nil {
		userID = update.Message.From.ID
	} else if update.CallbackQuery != nil {
		userID = update.CallbackQuery.From.ID
	}

	// Проверяем rate limit
	if userID != 0 && !h.rateLimiter.IsAllowed(userID) {
		h.logger.Warn("rate limit exceeded", zap.Int64("user_id", userID))
		if update.Message != nil {
			return h.sendErrorMessage(update.Message.Chat.ID, "⚠️ Слишком много запросов. Подождите минуту.")
		}
		return nil
	}

	// Обрабатываем inline кнопки
	if update.CallbackQuery != nil {
		return h.handleCallbackQuery(ctx, update.CallbackQuery)
	}

	if update.Message == nil {
		return nil
	}

	h.logger.Debug("получено обновление",
		zap.Int64("chat_id", update.Message.Chat.ID),
		zap.String("text", update.Message.Text),
		zap.String("username", update.Message.From.UserName))

	// Получаем или создаем пользователя с валидацией
	user, err := h.userService.GetOrCreateUser(
		ctx,
		update.Message.From.ID,
		h.sanitizeUsername(update.Message.From.UserName),
		h.sanitizeText(update.Message.From.FirstName),
		h.sanitizeText(update.Message.From.LastName),
		update.Message.From.LanguageCode,
	)
	if err != nil {
		h.logger.Error("ошибка получения пользователя", zap.Error(err))
		return h.sendErrorMessage(update.Message.Chat.ID, "Ошибка обработки запроса")
	}

	// Пользователь написал боту, значит он активен
	if !user.IsActive {
		if err := h.userService.MarkActive(ctx, user.ID); err != nil {
			h.logger.Warn("не удалось пометить пользователя активным",
				zap.Int64("user_id", user.ID),
				zap.Error(err))
		}
	}

	// Обрабатываем команды
	if update.Message.IsCommand() {
		return h.handleCommand(ctx, update.Message, user)
	}

	// Обрабатываем кнопки и обычные сообщения
	return h.handleTextMessage(ctx, update.Message, user)
}

// handleCommand обрабатывает команды
func (h *Handler) handleCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	switch message.Command() {
	case "start":
		return h.handleStartCommand(ctx, message, user)
	case "check":
		return h.sendMessage(message.Chat.ID, h.messages.CheckPrompt())
	case "stats":
		return h.handleStatsCommand(ctx, message, user)
	case "invite":
		return h.handleInviteCommand(ctx, message, user)
	case "help":
		return h.sendMessage(message.Chat.ID, h.messages.Help())
	default:
		return h.sendMessage(message.Chat.ID, h.messages.UnknownCommand())
	}
}

// handleStartCommand обрабатывает команду /start, включая переход по
// реферальной ссылке вида /start ref_<код>
func (h *Handler) handleStartCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	if args := message.CommandArguments(); strings.HasPrefix(args, "ref_") {
		code := strings.TrimPrefix(args, "ref_")

		applied, err := h.referralService.Apply(ctx, user.ID, code)
		if err != nil {
			h.logger.Error("ошибка применения реферального кода",
				zap.Int64("user_id", user.ID),
				zap.String("code", code),
				zap.Error(err))
			// Не показываем ошибку пользователю, просто продолжаем
		}
		if applied {
			h.metrics.RecordReferralLinked()
			if err := h.sendMessage(message.Chat.ID, h.messages.ReferralWelcome()); err != nil {
				h.logger.Warn("не удалось отправить реферальное приветствие", zap.Error(err))
			}
		}
	}

	remaining, _, err := h.quotaService.Snapshot(ctx, user.ID)
	if err != nil {
		h.logger.Error("ошибка получения лимита", zap.Error(err))
		remaining = user.AvailableChecks()
	}

	welcomeText := h.messages.Welcome(user.FirstName, remaining)
	return h.sendMessageWithKeyboard(message.Chat.ID, welcomeText, h.messages.GetMainKeyboard())
}

// handleStatsCommand обрабатывает команду /stats
func (h *Handler) handleStatsCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	remaining, nextReset, err := h.quotaService.Snapshot(ctx, user.ID)
	if err != nil {
		h.logger.Error("ошибка получения лимита", zap.Error(err))
		return h.sendErrorMessage(message.Chat.ID, "Ошибка получения статистики")
	}

	totalChecks, err := h.store.Check().CountSince(ctx, user.ID, time.Time{})
	if err != nil {
		h.logger.Error("ошибка подсчета проверок", zap.Error(err))
		totalChecks = 0
	}

	statsText := h.messages.Stats(
		user.FirstName,
		remaining,
		nextReset,
		user.TotalReferrals,
		user.BonusChecks,
		totalChecks,
	)

	recent, err := h.userService.RecentChecks(ctx, user.ID, RecentChecksLimit)
	if err != nil {
		h.logger.Error("ошибка получения истории проверок", zap.Error(err))
	} else if len(recent) > 0 {
		statsText += h.messages.RecentChecks(recent)
	}

	return h.sendMessage(message.Chat.ID, statsText)
}

// handleInviteCommand обрабатывает команду /invite
func (h *Handler) handleInviteCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	code, err := h.referralService.EnsureCode(ctx, user.ID)
	if err != nil {
		h.logger.Error("ошибка получения реферального кода",
			zap.Int64("user_id", user.ID),
			zap.Error(err))
		return h.sendErrorMessage(message.Chat.ID, "Не удалось создать приглашение. Попробуйте позже.")
	}

	inviteText := h.messages.Invite(
		referral.Link(h.bot.Self.UserName, code),
		h.referralService.BonusChecks(),
		user.TotalReferrals,
	)

	return h.sendMessage(message.Chat.ID, inviteText)
}

// handleTextMessage обрабатывает кнопки меню и произвольный текст.
// Текст, похожий на email, отправляется на проверку.
func (h *Handler) handleTextMessage(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	text := strings.TrimSpace(message.Text)

	switch text {
	case ButtonCheck:
		return h.sendMessage(message.Chat.ID, h.messages.CheckPrompt())
	case ButtonStats:
		return h.handleStatsCommand(ctx, message, user)
	case ButtonInvite:
		return h.handleInviteCommand(ctx, message, user)
	case ButtonHelp:
		return h.sendMessage(message.Chat.ID, h.messages.Help())
	}

	if strings.Contains(text, "@") {
		return h.handleEmailCheck(ctx, message, user)
	}

	return h.sendMessage(message.Chat.ID, h.messages.CheckPrompt())
}

// handleEmailCheck выполняет проверку email-адреса.
// Синтаксически некорректный адрес отклоняется до списания проверки,
// лимит расходуется только на реальное обращение к сервису проверки.
func (h *Handler) handleEmailCheck(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	email := strings.ToLower(strings.TrimSpace(message.Text))

	if !verifier.IsValidEmailFormat(email) {
		return h.sendMessage(message.Chat.ID, h.messages.InvalidEmailFormat())
	}

	allowed, err := h.quotaService.TryConsume(ctx, user.ID)
	if err != nil {
		h.logger.Error("ошибка списания проверки",
			zap.Int64("user_id", user.ID),
			zap.Error(err))
		return h.sendErrorMessage(message.Chat.ID, "Ошибка обработки запроса. Попробуйте позже.")
	}

	if !allowed {
		h.metrics.RecordQuotaDenial()

		_, nextReset, err := h.quotaService.Snapshot(ctx, user.ID)
		if err != nil {
			h.logger.Error("ошибка получения лимита", zap.Error(err))
			nextReset = time.Now().Add(h.quotaService.CycleDuration())
		}

		return h.sendMessage(message.Chat.ID, h.messages.QuotaExceeded(nextReset))
	}

	if err := h.sendMessage(message.Chat.ID, h.messages.CheckInProgress(email)); err != nil {
		h.logger.Warn("не удалось отправить промежуточное сообщение", zap.Error(err))
	}

	start := time.Now()
	result, raw, err := h.verifierClient.Verify(ctx, email)
	if err != nil {
		h.metrics.RecordEmailCheck("error", time.Since(start).Seconds())
		h.logger.Error("ошибка проверки email",
			zap.Int64("user_id", user.ID),
			zap.String("email", email),
			zap.Error(err))
		return h.sendErrorMessage(message.Chat.ID, "Сервис проверки временно недоступен. Попробуйте позже.")
	}

	check := &models.EmailCheck{
		UserID:       user.ID,
		Email:        result.Email,
		IsValid:      result.IsValid,
		IsDisposable: result.IsDisposable,
		IsCatchall:   result.IsCatchall,
		QualityScore: result.QualityScore,
		RawResponse:  raw,
	}
	if err := h.store.Check().Create(ctx, check); err != nil {
		h.logger.Error("ошибка сохранения проверки",
			zap.Int64("user_id", user.ID),
			zap.Error(err))
	}

	h.recordCheckStats(ctx, result)
	h.metrics.RecordEmailCheck(checkMetricResult(result), time.Since(start).Seconds())

	remaining, _, err := h.quotaService.Snapshot(ctx, user.ID)
	if err != nil {
		h.logger.Error("ошибка получения лимита", zap.Error(err))
		remaining = 0
	}

	return h.sendMessage(message.Chat.ID, h.messages.CheckResult(result, remaining))
}

// recordCheckStats обновляет дневную статистику по итогам проверки
func (h *Handler) recordCheckStats(ctx context.Context, result *models.VerificationResult) {
	if err := h.store.Stats().IncrementToday(ctx, models.StatTotalChecks, 1); err != nil {
		h.logger.Error("ошибка обновления статистики проверок", zap.Error(err))
	}

	field := models.StatInvalidEmails
	if result.IsValid {
		field = models.StatValidEmails
	}
	if err := h.store.Stats().IncrementToday(ctx, field, 1); err != nil {
		h.logger.Error("ошибка обновления статистики проверок", zap.Error(err))
	}
}

// checkMetricResult возвращает метку результата для метрик
func checkMetricResult(result *models.VerificationResult) string {
	switch {
	case result.IsDisposable:
		return "disposable"
	case result.IsValid:
		return "valid"
	default:
		return "invalid"
	}
}

// handleCallbackQuery обрабатывает inline кнопки
func (h *Handler) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	user, err := h.userService.GetOrCreateUser(
		ctx,
		callback.From.ID,
		h.sanitizeUsername(callback.From.UserName),
		h.sanitizeText(callback.From.FirstName),
		h.sanitizeText(callback.From.LastName),
		callback.From.LanguageCode,
	)
	if err != nil {
		h.logger.Error("ошибка получения пользователя для callback", zap.Error(err))
		return err
	}

	// Отвечаем на callback (убираем "загрузку" кнопки)
	callbackConfig := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.bot.Request(callbackConfig); err != nil {
		h.logger.Error("ошибка ответа на callback", zap.Error(err))
	}

	if callback.Message == nil {
		return nil
	}
	chatID := callback.Message.Chat.ID

	switch callback.Data {
	case "check_email":
		return h.sendMessage(chatID, h.messages.CheckPrompt())
	case "show_invite":
		return h.handleInviteCommand(ctx, &tgbotapi.Message{Chat: callback.Message.Chat}, user)
	default:
		h.logger.Warn("неизвестный callback", zap.String("data", callback.Data))
		return nil
	}
}

// sanitizeText очищает текст от потенциально опасного содержимого
func (h *Handler) sanitizeText(text string) string {
	if len(text) > MaxTextLength {
		text = text[:MaxTextLength]
	}

	if !utf8.ValidString(text) {
		text = string([]rune(text))
	}

	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r", "")

	return strings.TrimSpace(text)
}

// sanitizeUsername очищает username от опасных символов
func (h *Handler) sanitizeUsername(username string) string {
	if len(username) > MaxUsernameLength {
		username = username[:MaxUsernameLength]
	}

	reg := regexp.MustCompile(`[^a-zA-Z0-9_]`)
	return reg.ReplaceAllString(username, "")
}

// sendMessage отправляет HTML сообщение
func (h *Handler) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"

	_, err := h.bot.Send(msg)
	if err != nil {
		h.logger.Error("ошибка отправки сообщения",
			zap.Int64("chat_id", chatID),
			zap.Error(err))

		// Если HTML парсинг не удался, пробуем отправить как обычный текст
		fallbackMsg := tgbotapi.NewMessage(chatID, stripHTMLTags(text))
		_, fallbackErr := h.bot.Send(fallbackMsg)
		return fallbackErr
	}

	return nil
}

// sendMessageWithKeyboard отправляет сообщение с reply-клавиатурой
func (h *Handler) sendMessageWithKeyboard(chatID int64, text string, keyboard [][]string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"

	var buttons [][]tgbotapi.KeyboardButton
	for _, row := range keyboard {
		var buttonRow []tgbotapi.KeyboardButton
		for _, buttonText := range row {
			buttonRow = append(buttonRow, tgbotapi.NewKeyboardButton(buttonText))
		}
		buttons = append(buttons, buttonRow)
	}

	msg.ReplyMarkup = tgbotapi.ReplyKeyboardMarkup{
		Keyboard:        buttons,
		ResizeKeyboard:  true,
		OneTimeKeyboard: false,
	}

	_, err := h.bot.Send(msg)
	if err != nil {
		h.logger.Error("ошибка отправки сообщения с клавиатурой",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		return err
	}

	return nil
}

// sendErrorMessage отправляет сообщение об ошибке
func (h *Handler) sendErrorMessage(chatID int64, text string) error {
	return h.sendMessage(chatID, h.messages.Error(text))
}

var htmlTagRegexp = regexp.MustCompile(`<[^>]*>`)

// stripHTMLTags удаляет HTML теги для fallback отправки обычным текстом
func stripHTMLTags(text string) string {
	return htmlTagRegexp.ReplaceAllString(text, "")
}
