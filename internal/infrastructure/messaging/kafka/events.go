package kafka

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/hmd/internal/domain/generation"
	"github.com/turtacn/hmd/internal/infrastructure/storage/sdf"
	"github.com/turtacn/hmd/internal/intelligence/canon"
	"github.com/turtacn/hmd/pkg/errors"
)

// Topic and event constants.
const (
	TopicStructures        = "hmd.structures"
	EventStructureAccepted = "structure.accepted"
	EventSource            = "hmd"
	SchemaVersion          = "v1"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// StructurePayload describes one accepted structure.
type StructurePayload struct {
	RunID    string `json:"run_id"`
	Seq      int64  `json:"seq"`
	Key      string `json:"key"`
	Identity string `json:"identity"`
	Formula  string `json:"formula"`
	Atoms    int    `json:"atoms"`
	Bonds    int    `json:"bonds"`
	MolBlock string `json:"molblock"`
}

// NewStructurePayload renders s, including its V2000 connection table.
func NewStructurePayload(s generation.Structure, stamp time.Time) (*StructurePayload, error) {
	var buf bytes.Buffer
	if err := sdf.EncodeMolBlock(&buf, s.Molecule, s.Molecule.Formula(), stamp); err != nil {
		return nil, err
	}
	return &StructurePayload{
		RunID:    s.RunID,
		Seq:      s.Seq,
		Key:      canon.Key(s.Identity),
		Identity: s.Identity,
		Formula:  s.Molecule.Formula(),
		Atoms:    s.Molecule.AtomCount(),
		Bonds:    s.Molecule.BondCount(),
		MolBlock: buf.String(),
	}, nil
}

// NewEventEnvelope wraps payload in a fresh envelope.
func NewEventEnvelope(eventType string, payload interface{}, now time.Time) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        EventSource,
		Timestamp:     now.UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeSerialization, "empty payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// ToMessage encodes the envelope as a record for topic keyed by key.
func (e *EventEnvelope) ToMessage(topic string, key []byte) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &ProducerMessage{
		Topic: topic,
		Key:   key,
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

// DecodeEnvelope parses a record value produced by ToMessage.
func DecodeEnvelope(value []byte) (*EventEnvelope, error) {
	if len(value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}
