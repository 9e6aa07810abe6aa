package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics содержит все метрики приложения
type Metrics struct {
	logger *zap.Logger

	// Счетчики
	emailChecks       *prometheus.CounterVec
	quotaDenials      prometheus.Counter
	referralsLinked   prometheus.Counter
	broadcastMessages *prometheus.CounterVec
	broadcastRuns     *prometheus.CounterVec

	// Гистограммы
	verifierResponseTime prometheus.Histogram

	// Gauge метрики
	activeUsers       prometheus.Gauge
	broadcastProgress prometheus.Gauge

	// Мьютекс для thread-safety
	mu sync.RWMutex
}

// New создает новый экземпляр метрик
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger: logger,

		// Счетчики проверок email
		emailChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "email_checks_total",
				Help: "Общее количество проверок email",
			},
			[]string{"result"}, // valid, invalid, disposable, error
		),

		// Счетчик отказов по лимиту
		quotaDenials: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quota_denials_total",
				Help: "Общее количество отказов из-за исчерпанного лимита",
			},
		),

		// Счетчик привязанных рефералов
		referralsLinked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "referrals_linked_total",
				Help: "Общее количество привязанных рефералов",
			},
		),

		// Счетчики сообщений рассылок
		broadcastMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_messages_total",
				Help: "Общее количество сообщений рассылок",
			},
			[]string{"status"}, // sent, failed
		),

		// Счетчики выполненных рассылок
		broadcastRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_runs_total",
				Help: "Общее количество выполненных рассылок",
			},
			[]string{"status"}, // completed, cancelled
		),

		// Гистограмма времени ответа сервиса проверки
		verifierResponseTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "verifier_response_time_seconds",
				Help:    "Время ответа сервиса проверки email в секундах",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Gauge активных пользователей
		activeUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_users",
				Help: "Количество активных пользователей",
			},
		),

		// Gauge прогресса текущей рассылки
		broadcastProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcast_progress",
				Help: "Количество отправленных сообщений текущей рассылки",
			},
		),
	}

	// Регистрируем все метрики
	prometheus.MustRegister(
		m.emailChecks,
		m.quotaDenials,
		m.referralsLinked,
		m.broadcastMessages,
		m.broadcastRuns,
		m.verifierResponseTime,
		m.activeUsers,
		m.broadcastProgress,
	)

	return m
}

// IncrementCounter увеличивает счетчик
func (m *Metrics) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case "email_checks_total":
		m.emailChecks.WithLabelValues(labels...).Inc()
	case "quota_denials_total":
		m.quotaDenials.Inc()
	case "referrals_linked_total":
		m.referralsLinked.Inc()
	case "broadcast_messages_total":
		m.broadcastMessages.WithLabelValues(labels...).Inc()
	case "broadcast_runs_total":
		m.broadcastRuns.WithLabelValues(labels...).Inc()
	default:
		m.logger.Error("неизвестная метрика", zap.String("name", name))
		return
	}

	m.logger.Debug("метрика увеличена", zap.String("metric", name))
}

// SetGauge устанавливает значение gauge метрики
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case "active_users":
		m.activeUsers.Set(value)
	case "broadcast_progress":
		m.broadcastProgress.Set(value)
	default:
		m.logger.Error("неизвестная gauge метрика", zap.String("name", name))
		return
	}

	m.logger.Debug("метрика установлена", zap.String("metric", name), zap.Float64("value", value))
}

// ObserveHistogram добавляет наблюдение в гистограмму
func (m *Metrics) ObserveHistogram(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case "verifier_response_time":
		m.verifierResponseTime.Observe(value)
	default:
		m.logger.Error("неизвестная гистограмма", zap.String("name", name))
		return
	}
}

// RecordEmailCheck записывает выполненную проверку email
func (m *Metrics) RecordEmailCheck(result string, responseTime float64) {
	m.IncrementCounter("email_checks_total", result)
	m.ObserveHistogram("verifier_response_time", responseTime)
}

// RecordQuotaDenial записывает отказ из-за исчерпанного лимита
func (m *Metrics) RecordQuotaDenial() {
	m.IncrementCounter("quota_denials_total")
}

// RecordReferralLinked записывает привязку реферала
func (m *Metrics) RecordReferralLinked() {
	m.IncrementCounter("referrals_linked_total")
}

// RecordBroadcastMessage записывает отправку одного сообщения рассылки
func (m *Metrics) RecordBroadcastMessage(success bool) {
	status := "sent"
	if !success {
		status = "failed"
	}
	m.IncrementCounter("broadcast_messages_total", status)
}

// RecordBroadcastRun записывает завершение рассылки
func (m *Metrics) RecordBroadcastRun(status string) {
	m.IncrementCounter("broadcast_runs_total", status)
	m.SetGauge("broadcast_progress", 0)
}

// Handler возвращает HTTP handler для метрик
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
