package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/breathe-tracking/internal/domain/reading"
	"github.com/oshokin/breathe-tracking/internal/observability/metrics"
)

// fakeReader serves messages pushed on a channel and records commits.
type fakeReader struct {
	messages chan kafkago.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{messages: make(chan kafkago.Message, 16)}
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	case msg, ok := <-f.messages:
		if !ok {
			return kafkago.Message{}, io.EOF
		}

		return msg, nil
	}
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}

	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.messages)
	}

	return nil
}

func (f *fakeReader) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]int64(nil), f.committed...)
}

type connectionEvent struct {
	connected bool
	lastSeen  time.Time
}

// recordingSink keeps every batch and connection change.
type recordingSink struct {
	mu          sync.Mutex
	batches     [][]reading.Reading
	connections []connectionEvent
	reject      error
}

func (s *recordingSink) HandleReadings(_ context.Context, batch []reading.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reject != nil {
		return s.reject
	}

	s.batches = append(s.batches, batch)

	return nil
}

func (s *recordingSink) SetConnection(_ context.Context, connected bool, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections = append(s.connections, connectionEvent{connected: connected, lastSeen: lastSeen})

	return nil
}

func (s *recordingSink) snapshot() ([][]reading.Reading, []connectionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([][]reading.Reading(nil), s.batches...), append([]connectionEvent(nil), s.connections...)
}

func message(offset int64, value string) kafkago.Message {
	return kafkago.Message{Offset: offset, Value: []byte(value)}
}

// TestSampleReadings maps present metrics only and falls back to the given time.
func TestSampleReadings(t *testing.T) {
	t.Parallel()

	co2, rssi := 640.0, -72.0
	fallback := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	readings := Sample{SensorID: "SN-01", CO2: &co2, RSSI: &rssi}.Readings(fallback)

	require.Equal(t, []reading.Reading{
		{Kind: reading.CarbonDioxide, Value: 640, ObservedAt: fallback},
		{Kind: reading.Signal, Value: -72, ObservedAt: fallback},
	}, readings)
}

// TestDecodeMessage covers key fallback, timestamps and malformed payloads.
func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	s, err := decodeMessage(kafkago.Message{Key: []byte("SN-02"), Value: []byte(`{"ozone":0.4}`), Time: at})
	require.NoError(t, err)
	require.Equal(t, "SN-02", s.SensorID)
	require.Equal(t, at, s.ObservedAt)
	require.InDelta(t, 0.4, *s.Ozone, 1e-9)

	_, err = decodeMessage(message(7, `{"ozone":0.4}`))
	require.ErrorIs(t, err, ErrMissingSensorID)

	_, err = decodeMessage(message(8, `not json`))
	require.Error(t, err)
}

// TestSerializeToMessage keys samples by sensor and stamps the header.
func TestSerializeToMessage(t *testing.T) {
	t.Parallel()

	temp := 21.5
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	msg, err := serializeToMessage(Sample{SensorID: "SN-01", Temperature: &temp, ObservedAt: at})
	require.NoError(t, err)
	require.Equal(t, []byte("SN-01"), msg.Key)
	require.JSONEq(t, `{"sensor_id":"SN-01","temperature":21.5,"observed_at":"2025-03-14T09:00:00Z"}`, string(msg.Value))
	require.Equal(t, "observed_at", msg.Headers[0].Key)

	decoded, err := decodeMessage(msg)
	require.NoError(t, err)
	require.Equal(t, at, decoded.ObservedAt)
}

// TestNewReader_Validation rejects missing brokers and sensor ids.
func TestNewReader_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewReader(Config{SensorID: "SN-01"}, new(recordingSink))
	require.ErrorIs(t, err, errNoBrokers)

	_, err = newReader(newFakeReader(), Config{}, new(recordingSink))
	require.ErrorIs(t, err, errNoSensor)
}

// TestReader_Run feeds matching samples, skips others and commits everything.
func TestReader_Run(t *testing.T) {
	t.Parallel()

	fake := newFakeReader()
	sink := new(recordingSink)
	m := metrics.NewMetricsForTesting()

	r, err := newReader(fake, Config{SensorID: "SN-01"}, sink, WithMetrics(m))
	require.NoError(t, err)

	fake.messages <- message(1, `{"sensor_id":"SN-01","co2":900,"observed_at":"2025-03-14T09:00:00Z"}`)
	fake.messages <- message(2, `{"sensor_id":"SN-99","co2":900}`)
	fake.messages <- message(3, `garbage`)
	fake.messages <- message(4, `{"sensor_id":"SN-01","battery":55}`)
	require.NoError(t, r.Close())

	require.NoError(t, r.Run(context.Background()))

	batches, connections := sink.snapshot()
	require.Len(t, batches, 2)
	require.Equal(t, reading.CarbonDioxide, batches[0][0].Kind)
	require.Equal(t, reading.Battery, batches[1][0].Kind)
	require.Empty(t, connections)
	require.Equal(t, []int64{1, 2, 3, 4}, fake.commits())
	require.InDelta(t, 1, testutil.ToFloat64(m.FeedErrors), 0)
}

// TestReader_RejectedReadingsCounted counts batches the sink refuses.
func TestReader_RejectedReadingsCounted(t *testing.T) {
	t.Parallel()

	fake := newFakeReader()
	sink := &recordingSink{reject: errors.New("engine stopped")}
	m := metrics.NewMetricsForTesting()

	r, err := newReader(fake, Config{SensorID: "SN-01"}, sink, WithMetrics(m))
	require.NoError(t, err)

	fake.messages <- message(1, `{"sensor_id":"SN-01","co2":900}`)
	require.NoError(t, r.Close())

	require.NoError(t, r.Run(context.Background()))
	require.InDelta(t, 1, testutil.ToFloat64(m.FeedErrors), 0)
}

// TestReader_Watchdog reports a disconnect after silence and a reconnect on the next sample.
func TestReader_Watchdog(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	fake := newFakeReader()
	sink := new(recordingSink)

	r, err := newReader(fake, Config{SensorID: "SN-01", DisconnectAfter: 30 * time.Second}, sink, WithClock(clock))
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() { done <- r.Run(ctx) }()

	first := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	fake.messages <- message(1, `{"sensor_id":"SN-01","co2":500,"observed_at":"2025-03-14T09:00:00Z"}`)

	require.Eventually(t, func() bool {
		_, connections := sink.snapshot()

		return len(connections) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(30 * time.Second)

	require.Eventually(t, func() bool {
		_, connections := sink.snapshot()

		return len(connections) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// A second expiry without samples reports nothing new.
	clock.Advance(30 * time.Second)

	fake.messages <- message(2, `{"sensor_id":"SN-01","co2":510,"observed_at":"2025-03-14T09:01:00Z"}`)

	require.Eventually(t, func() bool {
		_, connections := sink.snapshot()

		return len(connections) == 3
	}, 2*time.Second, 5*time.Millisecond)

	_, connections := sink.snapshot()
	assert.Equal(t, []connectionEvent{
		{connected: true, lastSeen: first},
		{connected: false, lastSeen: first},
		{connected: true, lastSeen: first.Add(time.Minute)},
	}, connections)

	cancel()
	require.NoError(t, <-done)
}
