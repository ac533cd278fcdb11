package alerting

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// MultiAlerter fans an alert out to every configured channel. Channels
// run concurrently; one slow or broken channel never blocks the rest.
type MultiAlerter struct {
	mu       sync.RWMutex
	alerters []Alerter
	logger   *slog.Logger
}

// NewMultiAlerter creates a new multi-channel alerter.
func NewMultiAlerter(logger *slog.Logger, alerters ...Alerter) *MultiAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiAlerter{alerters: alerters, logger: logger}
}

// Name returns the name of the alerter.
func (m *MultiAlerter) Name() string {
	return "multi"
}

// AddAlerter adds a channel.
func (m *MultiAlerter) AddAlerter(alerter Alerter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerters = append(m.alerters, alerter)
}

// Alert delivers to all channels and joins any failures.
func (m *MultiAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	m.mu.RLock()
	targets := append([]Alerter(nil), m.alerters...)
	m.mu.RUnlock()

	results := make([]error, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, a Alerter) {
			defer wg.Done()
			results[i] = a.Alert(ctx, severity, message, fields...)
		}(i, target)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			m.logger.Error("alerter failed",
				"alerter", targets[i].Name(),
				"severity", severity.String(),
				"error", err,
			)
		}
	}
	return errors.Join(results...)
}
