package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"spookmail-bot/pkg/models"
)

// emailFormatRegexp проверяет базовый формат адреса перед обращением к API
var emailFormatRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// disposableDomains содержит известные домены одноразовых почтовых ящиков.
// Используется локальной эвристикой, когда внешний API не настроен.
var disposableDomains = map[string]bool{
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"tempmail.com":      true,
	"temp-mail.org":     true,
	"throwaway.email":   true,
	"yopmail.com":       true,
	"trashmail.com":     true,
	"getnada.com":       true,
	"sharklasers.com":   true,
}

// Оценки качества локальной эвристики
const (
	scoreValid      = 85
	scoreDisposable = 30
	scoreInvalid    = 10
)

// Client представляет клиент сервиса проверки email.
// Если внешний API не настроен, проверка выполняется локальной эвристикой:
// формат адреса и список одноразовых доменов.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient создает новый клиент проверки email
func NewClient(apiURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// apiResponse представляет ответ внешнего API проверки email
type apiResponse struct {
	Email      string `json:"email"`
	Result     string `json:"result"` // deliverable, undeliverable, risky, unknown
	Score      int    `json:"score"`
	Disposable bool   `json:"disposable"`
	Catchall   bool   `json:"catchall"`
	Format     bool   `json:"format"`
	MX         bool   `json:"mx"`
	SMTP       bool   `json:"smtp"`
	Reason     string `json:"reason"`
	DidYouMean string `json:"did_you_mean"`
}

// Verify проверяет email адрес. Адрес нормализуется: пробелы обрезаются,
// регистр приводится к нижнему.
func (c *Client) Verify(ctx context.Context, email string) (*models.VerificationResult, []byte, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if !c.Configured() {
		result := c.verifyLocal(email)
		raw, _ := json.Marshal(result)
		return result, raw, nil
	}

	return c.verifyRemote(ctx, email)
}

// Configured сообщает, настроен ли внешний API
func (c *Client) Configured() bool {
	return c.apiURL != "" && c.apiKey != ""
}

// verifyLocal выполняет локальную эвристическую проверку
func (c *Client) verifyLocal(email string) *models.VerificationResult {
	result := &models.VerificationResult{Email: email}

	if !emailFormatRegexp.MatchString(email) {
		result.QualityScore = scoreInvalid
		result.Reason = "invalid_format"

		c.logger.Debug("локальная проверка: неверный формат", zap.String("email", email))
		return result
	}
	result.Format = true

	domain := email[strings.LastIndex(email, "@")+1:]
	if disposableDomains[domain] {
		result.IsDisposable = true
		result.QualityScore = scoreDisposable
		result.Reason = "disposable_domain"

		c.logger.Debug("локальная проверка: одноразовый домен",
			zap.String("email", email),
			zap.String("domain", domain))
		return result
	}

	result.IsValid = true
	result.QualityScore = scoreValid
	return result
}

// verifyRemote обращается к внешнему API проверки email
func (c *Client) verifyRemote(ctx context.Context, email string) (*models.VerificationResult, []byte, error) {
	endpoint := c.apiURL + "/v1/verify?" + url.Values{"email": {email}}.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка отправки запроса: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("ошибка API (статус %d): %s", resp.StatusCode, string(body))
	}

	var response apiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, nil, fmt.Errorf("ошибка парсинга ответа: %w, тело: %s", err, string(body))
	}

	result := &models.VerificationResult{
		Email:        email,
		IsValid:      response.Result == "deliverable",
		IsDisposable: response.Disposable,
		IsCatchall:   response.Catchall,
		QualityScore: response.Score,
		Format:       response.Format,
		MX:           response.MX,
		SMTP:         response.SMTP,
		Reason:       response.Reason,
		DidYouMean:   response.DidYouMean,
	}

	c.logger.Info("проверка email завершена",
		zap.String("email", email),
		zap.Bool("is_valid", result.IsValid),
		zap.Int("quality_score", result.QualityScore),
		zap.Duration("duration", time.Since(start)))

	return result, body, nil
}

// HealthCheck проверяет доступность API проверки email
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Configured() {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.apiURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка отправки запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("нездоровый статус API: %d", resp.StatusCode)
	}

	return nil
}

// IsValidEmailFormat проверяет синтаксическую корректность адреса
func IsValidEmailFormat(email string) bool {
	return emailFormatRegexp.MatchString(strings.TrimSpace(email))
}
