package metrics

import (
	"testing"

	"go.uber.org/zap"
)

func TestMetrics(t *testing.T) {
	logger := zap.NewNop()
	m := New(logger)

	// Test counter increment
	m.IncrementCounter("email_checks_total", "valid")

	// Test gauge set
	m.SetGauge("active_users", 100.0)

	// Test histogram observe
	m.ObserveHistogram("verifier_response_time", 1.5)

	// Test high-level methods
	m.RecordEmailCheck("valid", 0.4)
	m.RecordQuotaDenial()
	m.RecordReferralLinked()
	m.RecordBroadcastMessage(true)
	m.RecordBroadcastMessage(false)
	m.RecordBroadcastRun("completed")
}
