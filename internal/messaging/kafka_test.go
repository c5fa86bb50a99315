package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsense/recengine/internal/validation"
	"github.com/streamsense/recengine/pkg/models"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	for i := range msgs {
		msgs[i].Offset = int64(i)
	}
	return &fakeReader{messages: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.messages) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
	}
	return nil
}

func (r *fakeReader) Stats() kafka.ReaderStats { return kafka.ReaderStats{Messages: 2} }
func (r *fakeReader) Close() error             { return nil }

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

func newTestBus(t *testing.T, reader *fakeReader) (*EventBus, *fakeWriter, *fakeWriter) {
	t.Helper()
	validator, err := validation.NewEventValidator()
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	dna, dlq := &fakeWriter{}, &fakeWriter{}
	bus := newEventBus(reader, dna, dlq, validator, topics{watchlist: "watchlist-events", dna: "content-dna-computed", dlq: "watchlist-events-dlq"}, logger)
	bus.baseDelay = time.Millisecond
	return bus, dna, dlq
}

func watchlistMessage(t *testing.T, event models.WatchlistEvent) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: payload}
}

func validEvent() models.WatchlistEvent {
	return models.WatchlistEvent{
		EventID:   uuid.New(),
		UserID:    uuid.New(),
		TMDbID:    550,
		MediaType: models.MediaTypeMovie,
		Action:    models.WatchlistActionAdded,
		Status:    models.WatchStatusWantToWatch,
		Timestamp: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func consumeUntilDrained(t *testing.T, bus *EventBus, reader *fakeReader, handler WatchlistHandler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bus.ConsumeWatchlistEvents(ctx, handler) }()

	select {
	case <-reader.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestConsumeWatchlistEvents_HandlesAndCommits(t *testing.T) {
	event := validEvent()
	reader := newFakeReader(watchlistMessage(t, event))
	bus, _, dlq := newTestBus(t, reader)

	var got []models.WatchlistEvent
	consumeUntilDrained(t, bus, reader, func(_ context.Context, e models.WatchlistEvent) error {
		got = append(got, e)
		return nil
	})

	require.Len(t, got, 1)
	assert.Equal(t, event.EventID, got[0].EventID)
	assert.Equal(t, []int64{0}, reader.committed)
	assert.Empty(t, dlq.written())
}

func TestConsumeWatchlistEvents_InvalidPayloadDeadLettered(t *testing.T) {
	bad := validEvent()
	bad.MediaType = "book"
	reader := newFakeReader(watchlistMessage(t, bad), kafka.Message{Value: []byte(`not json`)})
	bus, _, dlq := newTestBus(t, reader)

	calls := 0
	consumeUntilDrained(t, bus, reader, func(context.Context, models.WatchlistEvent) error {
		calls++
		return nil
	})

	assert.Zero(t, calls)
	assert.Len(t, dlq.written(), 2)
	assert.Equal(t, []int64{0, 1}, reader.committed)
}

func TestConsumeWatchlistEvents_RetriesThenDeadLetters(t *testing.T) {
	reader := newFakeReader(watchlistMessage(t, validEvent()))
	bus, _, dlq := newTestBus(t, reader)

	attempts := 0
	consumeUntilDrained(t, bus, reader, func(context.Context, models.WatchlistEvent) error {
		attempts++
		return errors.New("store down")
	})

	assert.Equal(t, maxHandlerRetries+1, attempts)
	written := dlq.written()
	require.Len(t, written, 1)
	assert.Equal(t, "original_topic", written[0].Headers[0].Key)
	assert.Equal(t, "watchlist-events", string(written[0].Headers[0].Value))
}

func TestConsumeWatchlistEvents_RecoversOnRetry(t *testing.T) {
	reader := newFakeReader(watchlistMessage(t, validEvent()))
	bus, _, dlq := newTestBus(t, reader)

	attempts := 0
	consumeUntilDrained(t, bus, reader, func(context.Context, models.WatchlistEvent) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})

	assert.Equal(t, 2, attempts)
	assert.Empty(t, dlq.written())
}

func testDNA() *models.ContentDNA {
	dna := &models.ContentDNA{
		TMDbID:       550,
		MediaType:    models.MediaTypeMovie,
		TasteVectors: models.NewTasteVectors(),
	}
	dna.Tone["dark"] = 1
	return dna
}

func TestOnComplete_PublishesSuccessOnly(t *testing.T) {
	bus, dnaWriter, _ := newTestBus(t, newFakeReader())

	item := models.QueueItem{TMDbID: 550, MediaType: models.MediaTypeMovie, RetryCount: 1}
	bus.OnComplete(item, nil, errors.New("abandoned"))
	assert.Empty(t, dnaWriter.written())

	bus.OnComplete(item, testDNA(), nil)
	written := dnaWriter.written()
	require.Len(t, written, 1)
	assert.Equal(t, "movie-550", string(written[0].Key))

	var event models.DNAComputedEvent
	require.NoError(t, json.Unmarshal(written[0].Value, &event))
	assert.Equal(t, 2, event.Attempts)
	assert.Equal(t, 1.0, event.DNA.Tone["dark"])
}

func TestPublishDNAComputed_WriterError(t *testing.T) {
	bus, dnaWriter, _ := newTestBus(t, newFakeReader())
	dnaWriter.err = errors.New("broker unavailable")

	err := bus.PublishDNAComputed(context.Background(), models.DNAComputedEvent{DNA: *testDNA(), Attempts: 1, Timestamp: time.Now()})
	assert.ErrorContains(t, err, "broker unavailable")
}

func TestGetMetrics(t *testing.T) {
	bus, _, _ := newTestBus(t, newFakeReader())
	assert.Equal(t, int64(2), bus.GetMetrics()["messages_read"])
}
