package models

import (
	"time"
)

// User представляет пользователя Telegram-бота
type User struct {
	ID           int64  `json:"id" db:"id"` // Telegram ID пользователя
	Username     string `json:"username" db:"username"`
	FirstName    string `json:"first_name" db:"first_name"`
	LastName     string `json:"last_name" db:"last_name"`
	LanguageCode string `json:"language_code" db:"language_code"`

	ChecksUsed     int       `json:"checks_used" db:"checks_used"`           // Количество использованных проверок в текущем окне
	ChecksLimit    int       `json:"checks_limit" db:"checks_limit"`         // Базовый лимит проверок
	BonusChecks    int       `json:"bonus_checks" db:"bonus_checks"`         // Бонусные проверки за рефералов
	LastCheckReset time.Time `json:"last_check_reset" db:"last_check_reset"` // Начало текущего окна лимита

	ReferralCode   *string `json:"referral_code" db:"referral_code"`     // Уникальный реферальный код
	ReferredBy     *int64  `json:"referred_by" db:"referred_by"`         // ID пользователя, который пригласил
	TotalReferrals int     `json:"total_referrals" db:"total_referrals"` // Количество приглашенных пользователей

	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AvailableChecks возвращает количество оставшихся проверок в текущем окне
func (u *User) AvailableChecks() int {
	available := u.ChecksLimit + u.BonusChecks - u.ChecksUsed
	if available < 0 {
		return 0
	}
	return available
}

// EmailCheck представляет одну выполненную проверку email
type EmailCheck struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	Email        string    `json:"email" db:"email"`
	IsValid      bool      `json:"is_valid" db:"is_valid"`
	IsDisposable bool      `json:"is_disposable" db:"is_disposable"`
	IsCatchall   bool      `json:"is_catchall" db:"is_catchall"`
	QualityScore int       `json:"quality_score" db:"quality_score"`
	RawResponse  []byte    `json:"raw_response" db:"raw_response"` // Полный ответ внешнего API (jsonb)
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// VerificationResult представляет результат проверки email внешним сервисом
type VerificationResult struct {
	Email        string `json:"email"`
	IsValid      bool   `json:"is_valid"`
	IsDisposable bool   `json:"is_disposable"`
	IsCatchall   bool   `json:"is_catchall"`
	QualityScore int    `json:"quality_score"`
	Format       bool   `json:"format"`
	MX           bool   `json:"mx"`
	SMTP         bool   `json:"smtp"`
	Reason       string `json:"reason,omitempty"`
	DidYouMean   string `json:"did_you_mean,omitempty"`
}

// Broadcast представляет задачу массовой рассылки
type Broadcast struct {
	ID             int64      `json:"id" db:"id"`
	Title          string     `json:"title" db:"title"`
	Message        string     `json:"message" db:"message"`
	MessageType    string     `json:"message_type" db:"message_type"`       // text, photo, link
	MediaURL       *string    `json:"media_url" db:"media_url"`             // Для рассылок с фото
	TargetAudience string     `json:"target_audience" db:"target_audience"` // all, active, referrers
	Status         string     `json:"status" db:"status"`                   // draft, sending, completed, cancelled
	SentCount      int        `json:"sent_count" db:"sent_count"`
	TotalTargets   int        `json:"total_targets" db:"total_targets"`
	ScheduledAt    *time.Time `json:"scheduled_at" db:"scheduled_at"`
	SentAt         *time.Time `json:"sent_at" db:"sent_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// BroadcastResult представляет итог выполнения рассылки
type BroadcastResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// DailyStats представляет агрегированную статистику за один день
type DailyStats struct {
	ID            int64     `json:"id" db:"id"`
	Date          time.Time `json:"date" db:"date"`
	NewUsers      int       `json:"new_users" db:"new_users"`
	TotalChecks   int       `json:"total_checks" db:"total_checks"`
	ValidEmails   int       `json:"valid_emails" db:"valid_emails"`
	InvalidEmails int       `json:"invalid_emails" db:"invalid_emails"`
	NewReferrals  int       `json:"new_referrals" db:"new_referrals"`
}

// Constants для статусов рассылки
const (
	BroadcastStatusDraft     = "draft"
	BroadcastStatusSending   = "sending"
	BroadcastStatusCompleted = "completed"
	BroadcastStatusCancelled = "cancelled"
)

// Constants для типов сообщения рассылки
const (
	MessageTypeText  = "text"
	MessageTypePhoto = "photo"
	MessageTypeLink  = "link"
)

// Constants для целевой аудитории рассылки
const (
	AudienceAll       = "all"
	AudienceActive    = "active"
	AudienceReferrers = "referrers"
)

// Constants для полей дневной статистики
const (
	StatNewUsers      = "new_users"
	StatTotalChecks   = "total_checks"
	StatValidEmails   = "valid_emails"
	StatInvalidEmails = "invalid_emails"
	StatNewReferrals  = "new_referrals"
)

// IsValidAudience проверяет корректность селектора аудитории
func IsValidAudience(audience string) bool {
	switch audience {
	case AudienceAll, AudienceActive, AudienceReferrers:
		return true
	default:
		return false
	}
}

// IsValidMessageType проверяет корректность типа сообщения рассылки
func IsValidMessageType(messageType string) bool {
	switch messageType {
	case MessageTypeText, MessageTypePhoto, MessageTypeLink:
		return true
	default:
		return false
	}
}
