package audit

import (
	"context"
	"encoding/json"
)

// Sink receives entries after they are committed. Publishing is best
// effort: the audit row is the record, a sink is a notification.
type Sink interface {
	Publish(ctx context.Context, e Entry)
}

// Logger is the subset of logging.Logger the sinks use.
type Logger interface {
	Warn(msg string, args ...any)
}

// EventPublisher is satisfied by *mqtt.Client.
type EventPublisher interface {
	PublishEvent(topic string, payload []byte) error
}

// TopicFunc maps an action to its event topic.
type TopicFunc func(action string) string

// MQTTSink publishes each entry as JSON on a per-action topic.
type MQTTSink struct {
	pub    EventPublisher
	topic  TopicFunc
	logger Logger
}

// NewMQTTSink creates a sink. logger may be nil.
func NewMQTTSink(pub EventPublisher, topic TopicFunc, logger Logger) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic, logger: logger}
}

// Publish implements Sink.
func (s *MQTTSink) Publish(_ context.Context, e Entry) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.warn("marshalling audit event", err, e)
		return
	}
	if err := s.pub.PublishEvent(s.topic(string(e.Action)), payload); err != nil {
		s.warn("publishing audit event", err, e)
	}
}

func (s *MQTTSink) warn(msg string, err error, e Entry) {
	if s.logger != nil {
		s.logger.Warn(msg, "error", err, "action", e.Action, "audit_id", e.ID)
	}
}

// Recorder is satisfied by *influxdb.Client.
type Recorder interface {
	RecordAuditEvent(action string)
}

// TelemetrySink counts committed actions.
type TelemetrySink struct {
	rec Recorder
}

// NewTelemetrySink creates a sink writing to rec.
func NewTelemetrySink(rec Recorder) *TelemetrySink {
	return &TelemetrySink{rec: rec}
}

// Publish implements Sink.
func (s *TelemetrySink) Publish(_ context.Context, e Entry) {
	s.rec.RecordAuditEvent(string(e.Action))
}

// MultiSink fans an entry out to every non-nil sink in order.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(ctx context.Context, e Entry) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, e)
		}
	}
}
