package alerting

import (
	"context"
	"strings"
	"sync"
)

// MockAlert is one captured alert.
type MockAlert struct {
	Severity Severity
	Message  string
	Fields   []any
}

// MockAlerter records alerts for test assertions.
type MockAlerter struct {
	mu     sync.Mutex
	alerts []MockAlert
}

// NewMockAlerter creates a new mock alerter.
func NewMockAlerter() *MockAlerter {
	return &MockAlerter{}
}

// Name returns the name of the alerter.
func (m *MockAlerter) Name() string {
	return "mock"
}

// Alert captures the alert.
func (m *MockAlerter) Alert(_ context.Context, severity Severity, message string, fields ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, MockAlert{Severity: severity, Message: message, Fields: fields})
	return nil
}

// Alerts returns a copy of everything captured so far.
func (m *MockAlerter) Alerts() []MockAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockAlert(nil), m.alerts...)
}

// Count returns the number of captured alerts.
func (m *MockAlerter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func (m *MockAlerter) any(match func(MockAlert) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if match(a) {
			return true
		}
	}
	return false
}

// HasAlertWithSeverity reports whether an alert of the given severity
// was sent.
func (m *MockAlerter) HasAlertWithSeverity(severity Severity) bool {
	return m.any(func(a MockAlert) bool { return a.Severity == severity })
}

// HasAlertContaining reports whether an alert message contains substr.
func (m *MockAlerter) HasAlertContaining(substr string) bool {
	return m.any(func(a MockAlert) bool { return strings.Contains(a.Message, substr) })
}
