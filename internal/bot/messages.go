package bot

import (
	"fmt"
	"strings"
	"time"

	"spookmail-bot/pkg/models"
)

// Кнопки главного меню
const (
	ButtonCheck  = "📧 Проверить email"
	ButtonStats  = "📊 Статистика"
	ButtonInvite = "🎁 Пригласить друга"
	ButtonHelp   = "ℹ️ Помощь"
)

// Messages содержит все тексты сообщений бота
type Messages struct{}

// NewMessages создает новый набор сообщений
func NewMessages() *Messages {
	return &Messages{}
}

// GetMainKeyboard возвращает главную клавиатуру
func (m *Messages) GetMainKeyboard() [][]string {
	return [][]string{
		{ButtonCheck, ButtonStats},
		{ButtonInvite, ButtonHelp},
	}
}

// Welcome возвращает приветственное сообщение
func (m *Messages) Welcome(firstName string, availableChecks int) string {
	name := firstName
	if name == "" {
		name = "друг"
	}

	return fmt.Sprintf(`👋 <b>Привет, %s!</b>

Я помогу проверить email-адреса: существует ли ящик, не одноразовый ли домен и какое у адреса качество.

📧 Просто отправь мне email — и я его проверю.

У тебя <b>%d</b> доступных проверок.
🎁 Приглашай друзей и получай дополнительные проверки!`, name, availableChecks)
}

// Help возвращает справку по командам
func (m *Messages) Help() string {
	return `ℹ️ <b>Как пользоваться ботом</b>

📧 Отправь любой email-адрес — я проверю его и пришлю отчет.

<b>Команды:</b>
/check — проверить email
/stats — твоя статистика и лимиты
/invite — пригласить друга и получить бонусные проверки
/help — эта справка

<b>Что я проверяю:</b>
• корректность формата адреса
• существование почтового ящика
• одноразовые домены
• catch-all домены
• общую оценку качества`
}

// CheckPrompt просит прислать email для проверки
func (m *Messages) CheckPrompt() string {
	return `📧 Отправь email-адрес, который нужно проверить.

Например: <code>user@example.com</code>`
}

// InvalidEmailFormat возвращается на сообщение, не похожее на email
func (m *Messages) InvalidEmailFormat() string {
	return `❌ Это не похоже на email-адрес.

Отправь адрес в формате <code>user@example.com</code>.`
}

// QuotaExceeded сообщает об исчерпанном лимите
func (m *Messages) QuotaExceeded(nextReset time.Time) string {
	return fmt.Sprintf(`🚫 <b>Лимит проверок исчерпан</b>

Новые проверки будут доступны: <b>%s</b>

🎁 Не хочешь ждать? Пригласи друга командой /invite — за каждого приглашенного ты получишь бонусные проверки!`,
		nextReset.Format("02.01.2006 15:04"))
}

// CheckInProgress сообщает о начале проверки
func (m *Messages) CheckInProgress(email string) string {
	return fmt.Sprintf("🔍 Проверяю <code>%s</code>...", email)
}

// CheckResult форматирует отчет о проверке email
func (m *Messages) CheckResult(result *models.VerificationResult, remaining int) string {
	var b strings.Builder

	if result.IsValid {
		b.WriteString(fmt.Sprintf("✅ <b>%s</b> — адрес рабочий\n\n", result.Email))
	} else {
		b.WriteString(fmt.Sprintf("❌ <b>%s</b> — адрес не прошел проверку\n\n", result.Email))
	}

	b.WriteString(fmt.Sprintf("📈 Оценка качества: <b>%d/100</b>\n", result.QualityScore))
	b.WriteString(fmt.Sprintf("• Формат: %s\n", yesNo(result.Format)))

	if result.IsDisposable {
		b.WriteString("• ⚠️ Одноразовый домен\n")
	}
	if result.IsCatchall {
		b.WriteString("• ⚠️ Catch-all домен: принимает любые адреса\n")
	}
	if result.Reason != "" {
		b.WriteString(fmt.Sprintf("• Причина: <code>%s</code>\n", result.Reason))
	}
	if result.DidYouMean != "" {
		b.WriteString(fmt.Sprintf("\n💡 Возможно, имелось в виду: <code>%s</code>\n", result.DidYouMean))
	}

	b.WriteString(fmt.Sprintf("\nОсталось проверок: <b>%d</b>", remaining))

	return b.String()
}

// Stats форматирует статистику пользователя
func (m *Messages) Stats(firstName string, remaining int, nextReset time.Time, totalReferrals, bonusChecks, totalChecks int) string {
	name := firstName
	if name == "" {
		name = "друг"
	}

	return fmt.Sprintf(`📊 <b>Статистика — %s</b>

📧 Доступно проверок: <b>%d</b>
🔄 Обновление лимита: %s

🎁 Приглашено друзей: <b>%d</b>
➕ Бонусных проверок получено: <b>%d</b>

📜 Всего проверок выполнено: <b>%d</b>`,
		name, remaining, nextReset.Format("02.01.2006 15:04"),
		totalReferrals, bonusChecks, totalChecks)
}

// RecentChecks форматирует блок последних проверок для /stats
func (m *Messages) RecentChecks(checks []*models.EmailCheck) string {
	var b strings.Builder
	b.WriteString("\n\n🕓 <b>Последние проверки:</b>\n")

	for _, check := range checks {
		b.WriteString(fmt.Sprintf("%s <code>%s</code> (%d/100)\n",
			yesNo(check.IsValid), check.Email, check.QualityScore))
	}

	return strings.TrimRight(b.String(), "\n")
}

// Invite форматирует приглашение с реферальной ссылкой
func (m *Messages) Invite(link string, bonusChecks, totalReferrals int) string {
	return fmt.Sprintf(`🎁 <b>Приглашай друзей и получай бонусы!</b>

За каждого друга, который запустит бота по твоей ссылке, ты получишь <b>%d</b> дополнительных проверок.

🔗 Твоя ссылка:
%s

Уже приглашено: <b>%d</b>`, bonusChecks, link, totalReferrals)
}

// ReferralWelcome благодарит за переход по реферальной ссылке
func (m *Messages) ReferralWelcome() string {
	return "🎉 Ты пришел по приглашению друга — он получил бонусные проверки!"
}

// UnknownCommand возвращается на неизвестную команду
func (m *Messages) UnknownCommand() string {
	return "🤔 Не знаю такой команды. Отправь /help, чтобы посмотреть, что я умею."
}

// Error форматирует сообщение об ошибке
func (m *Messages) Error(text string) string {
	return "😔 " + text
}

func yesNo(v bool) string {
	if v {
		return "✅"
	}
	return "❌"
}
