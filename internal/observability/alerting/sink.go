package alerting

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/pkg/models"
)

// Sink receives alerts emitted by the drift monitor. Delivery mechanics
// (email, pager, webhook) live behind this boundary; the core only hands
// records over and never retries.
type Sink interface {
	Deliver(ctx context.Context, alert *models.Alert) error
}

// LogSink writes alerts to the structured log. It is the default sink when
// no external delivery is configured.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogSink{logger: logger}
}

// Deliver logs the alert at a level matching its severity.
func (s *LogSink) Deliver(ctx context.Context, alert *models.Alert) error {
	entry := s.logger.WithFields(logrus.Fields{
		"alert_id":   alert.ID,
		"monitor_id": alert.MonitorID,
		"model_id":   alert.ModelID,
		"metric":     alert.Metric,
		"severity":   alert.Severity,
	})
	switch alert.Severity {
	case models.SeverityCritical:
		entry.Error(alert.Message)
	case models.SeverityWarning:
		entry.Warn(alert.Message)
	default:
		entry.Info(alert.Message)
	}
	return nil
}

// ChanSink buffers alerts on a channel. Tests use it to assert delivery.
type ChanSink struct {
	C chan *models.Alert
}

// NewChanSink creates a channel sink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{C: make(chan *models.Alert, buffer)}
}

// Deliver enqueues the alert, dropping it if the buffer is full.
func (s *ChanSink) Deliver(ctx context.Context, alert *models.Alert) error {
	select {
	case s.C <- alert:
	default:
	}
	return nil
}
