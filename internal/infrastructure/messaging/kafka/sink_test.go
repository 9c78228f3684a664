package kafka

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/hmd/internal/domain/generation"
	"github.com/turtacn/hmd/internal/domain/molecule"
	"github.com/turtacn/hmd/internal/intelligence/canon"
)

func ethene(t *testing.T) *molecule.Molecule {
	t.Helper()
	m, err := molecule.Build("C2C2")
	require.NoError(t, err)
	require.NoError(t, m.AddBond(0, 1, 2))
	return m
}

func TestStructureSink_Write(t *testing.T) {
	mock := &mockKafkaWriter{}
	sink := NewStructureSink(newProducerWithWriter(mock, ProducerConfig{Brokers: []string{"b"}}, nil), "")
	sink.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	st := generation.Structure{Seq: 1, RunID: "run-1", Identity: "C2.C2|0-1:2", Molecule: ethene(t)}
	require.NoError(t, sink.Write(context.Background(), st))

	require.Len(t, mock.written, 1)
	msg := mock.written[0]
	assert.Equal(t, TopicStructures, msg.Topic)
	assert.Equal(t, canon.Key(st.Identity), string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, EventStructureAccepted, headers["event_type"])
	assert.Equal(t, "run-1", headers["run_id"])

	env, err := DecodeEnvelope(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, EventStructureAccepted, env.EventType)
	assert.Equal(t, EventSource, env.Source)
	assert.NotEmpty(t, env.EventID)

	var payload StructurePayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, "run-1", payload.RunID)
	assert.Equal(t, int64(1), payload.Seq)
	assert.Equal(t, "C2C2", payload.Formula)
	assert.Equal(t, 2, payload.Atoms)
	assert.Equal(t, 1, payload.Bonds)
	assert.True(t, strings.HasPrefix(payload.MolBlock, "C2C2\n  hmd     03012412002D\n"))
	assert.Contains(t, payload.MolBlock, "  1  2  2  0  0  0  0\n")
	assert.True(t, strings.HasSuffix(payload.MolBlock, "M  END\n"))
}

func TestStructureSink_CustomTopic(t *testing.T) {
	mock := &mockKafkaWriter{}
	sink := NewStructureSink(newProducerWithWriter(mock, ProducerConfig{Brokers: []string{"b"}}, nil), "custom")
	st := generation.Structure{Seq: 2, Identity: "x", Molecule: ethene(t)}
	require.NoError(t, sink.Write(context.Background(), st))
	require.Len(t, mock.written, 1)
	assert.Equal(t, "custom", mock.written[0].Topic)
}

func TestStructureSink_PublishError(t *testing.T) {
	mock := &mockKafkaWriter{
		writeFunc: func(context.Context, ...kafka.Message) error { return errors.New("broker down") },
	}
	sink := NewStructureSink(newProducerWithWriter(mock, ProducerConfig{Brokers: []string{"b"}}, nil), "")
	err := sink.Write(context.Background(), generation.Structure{Identity: "x", Molecule: ethene(t)})
	assert.Error(t, err)
}

func TestDecodeEnvelope_Errors(t *testing.T) {
	_, err := DecodeEnvelope(nil)
	assert.Error(t, err)
	_, err = DecodeEnvelope([]byte("{"))
	assert.Error(t, err)

	env := &EventEnvelope{}
	assert.Error(t, env.DecodePayload(&StructurePayload{}))
}
