package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/turtacn/hmd/pkg/errors"
)

// mockKafkaWriter
type mockKafkaWriter struct {
	mu        sync.Mutex
	written   []kafka.Message
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closeFunc func() error
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	m.mu.Lock()
	m.written = append(m.written, msgs...)
	m.mu.Unlock()
	return nil
}

func (m *mockKafkaWriter) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func (m *mockKafkaWriter) Stats() kafka.WriterStats {
	return kafka.WriterStats{}
}

func newTestProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:         []string{"localhost:9092"},
		MaxMessageBytes: 1024,
	}
}

func newTestProducer(w WriterInterface) *Producer {
	return newProducerWithWriter(w, newTestProducerConfig(), nil)
}

func TestValidateProducerConfig(t *testing.T) {
	cfg := newTestProducerConfig()
	assert.NoError(t, ValidateProducerConfig(cfg))

	cfg.Brokers = nil
	assert.Error(t, ValidateProducerConfig(cfg))

	cfg = newTestProducerConfig()
	cfg.MaxRetries = -1
	assert.Error(t, ValidateProducerConfig(cfg))

	cfg = newTestProducerConfig()
	cfg.RequiredAcks = 2
	assert.Error(t, ValidateProducerConfig(cfg))
}

func TestNewProducer_AppliesDefaults(t *testing.T) {
	p, err := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}, CompressionCodec: "zstd"}, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 3, p.config.MaxRetries)
	assert.Equal(t, 100, p.config.BatchSize)
	assert.Equal(t, 1024*1024, p.config.MaxMessageBytes)

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, kafka.Zstd, w.Compression)
	assert.Equal(t, 4, w.MaxAttempts)
}

func TestCompressionCodec(t *testing.T) {
	assert.Equal(t, kafka.Gzip, compressionCodec("gzip"))
	assert.Equal(t, kafka.Snappy, compressionCodec("snappy"))
	assert.Equal(t, kafka.Lz4, compressionCodec("lz4"))
	assert.Equal(t, kafka.Compression(0), compressionCodec("none"))
}

func TestPublish_Success(t *testing.T) {
	mock := &mockKafkaWriter{}
	p := newTestProducer(mock)

	msg := &ProducerMessage{Topic: "t", Key: []byte("k"), Value: []byte("v"), Headers: map[string]string{"h": "1"}}
	require.NoError(t, p.Publish(context.Background(), msg))

	require.Len(t, mock.written, 1)
	got := mock.written[0]
	assert.Equal(t, "t", got.Topic)
	assert.Equal(t, "k", string(got.Key))
	assert.Equal(t, "v", string(got.Value))
	assert.Equal(t, []kafka.Header{{Key: "h", Value: []byte("1")}}, got.Headers)
	assert.False(t, got.Time.IsZero())

	sent, failed, bytes := p.GetMetrics()
	assert.Equal(t, int64(1), sent)
	assert.Zero(t, failed)
	assert.Equal(t, int64(1), bytes)
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	ctx := context.Background()

	err := p.Publish(ctx, &ProducerMessage{Value: []byte("v")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	err = p.Publish(ctx, &ProducerMessage{Topic: "t"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	err = p.Publish(ctx, &ProducerMessage{Topic: "t", Value: make([]byte, 2048)})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestPublish_Failure(t *testing.T) {
	mock := &mockKafkaWriter{
		writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
			return errors.New("write failed")
		},
	}
	p := newTestProducer(mock)
	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMessagingError))

	_, failed, _ := p.GetMetrics()
	assert.Equal(t, int64(1), failed)
}

func TestClose_Idempotent(t *testing.T) {
	calls := 0
	mock := &mockKafkaWriter{
		closeFunc: func() error {
			calls++
			return nil
		},
	}
	p := newTestProducer(mock)
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
	assert.Equal(t, 1, calls)

	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.Equal(t, ErrProducerClosed, err)
}
