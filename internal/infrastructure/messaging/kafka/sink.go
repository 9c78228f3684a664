package kafka

import (
	"context"
	"time"

	"github.com/turtacn/hmd/internal/domain/generation"
)

// publisher is the part of Producer the sink needs.
type publisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// StructureSink publishes every accepted structure to a topic.  Records are
// keyed by the structure key so duplicates across runs land on the same
// partition.
type StructureSink struct {
	producer publisher
	topic    string
	now      func() time.Time
}

var _ generation.Sink = (*StructureSink)(nil)

// NewStructureSink returns a sink publishing to topic; an empty topic selects
// TopicStructures.
func NewStructureSink(p publisher, topic string) *StructureSink {
	if topic == "" {
		topic = TopicStructures
	}
	return &StructureSink{producer: p, topic: topic, now: time.Now}
}

// Write implements generation.Sink.
func (s *StructureSink) Write(ctx context.Context, st generation.Structure) error {
	now := s.now()
	payload, err := NewStructurePayload(st, now)
	if err != nil {
		return err
	}
	env, err := NewEventEnvelope(EventStructureAccepted, payload, now)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(s.topic, []byte(payload.Key))
	if err != nil {
		return err
	}
	msg.Headers["run_id"] = st.RunID
	return s.producer.Publish(ctx, msg)
}
