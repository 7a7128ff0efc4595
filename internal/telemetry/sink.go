package telemetry

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"
)

// Sink receives traffic samples and metric snapshots for long-term
// storage. Writes are best-effort: the lifecycle core never fails an
// operation because a sink write failed.
type Sink interface {
	RecordTrafficSample(ctx context.Context, endpointID string, requests, errors int64, latencyMS float64)
	RecordMetricSnapshot(ctx context.Context, monitorID string, metricVals map[string]float64)
	Close()
}

// NopSink discards everything. It is the default when no telemetry store
// is configured and the sink tests use.
type NopSink struct{}

func (NopSink) RecordTrafficSample(context.Context, string, int64, int64, float64) {}
func (NopSink) RecordMetricSnapshot(context.Context, string, map[string]float64)   {}
func (NopSink) Close()                                                             {}

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	URL    string `json:"url" yaml:"url"`
	Token  string `json:"token" yaml:"token"`
	Org    string `json:"org" yaml:"org"`
	Bucket string `json:"bucket" yaml:"bucket"`
}

// InfluxSink writes traffic and snapshot points to InfluxDB using the
// non-blocking write API; failed writes surface only in the log.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *logrus.Logger
}

// NewInfluxSink connects the sink to an InfluxDB v2 instance.
func NewInfluxSink(config *InfluxConfig, logger *logrus.Logger) *InfluxSink {
	if logger == nil {
		logger = logrus.New()
	}
	client := influxdb2.NewClient(config.URL, config.Token)
	writeAPI := client.WriteAPI(config.Org, config.Bucket)

	sink := &InfluxSink{
		client:   client,
		writeAPI: writeAPI,
		logger:   logger,
	}

	go func() {
		for err := range writeAPI.Errors() {
			logger.WithError(err).Warn("Telemetry write failed")
		}
	}()

	return sink
}

// RecordTrafficSample writes one endpoint traffic observation.
func (s *InfluxSink) RecordTrafficSample(ctx context.Context, endpointID string, requests, errors int64, latencyMS float64) {
	p := influxdb2.NewPoint("endpoint_traffic",
		map[string]string{"endpoint_id": endpointID},
		map[string]interface{}{
			"requests":   requests,
			"errors":     errors,
			"latency_ms": latencyMS,
		},
		time.Now().UTC(),
	)
	s.writeAPI.WritePoint(p)
}

// RecordMetricSnapshot writes one drift-monitor snapshot, one field per
// metric.
func (s *InfluxSink) RecordMetricSnapshot(ctx context.Context, monitorID string, metricVals map[string]float64) {
	if len(metricVals) == 0 {
		return
	}
	fields := make(map[string]interface{}, len(metricVals))
	for k, v := range metricVals {
		fields[k] = v
	}
	p := influxdb2.NewPoint("drift_snapshot",
		map[string]string{"monitor_id": monitorID},
		fields,
		time.Now().UTC(),
	)
	s.writeAPI.WritePoint(p)
}

// Close flushes pending points and shuts the client down.
func (s *InfluxSink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}
