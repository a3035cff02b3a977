package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conference-site/schedule-api/internal/ports/out/events"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisher_WritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w)

	ev := events.Event{
		Type:       events.TypeRSVPPromoted,
		SessionID:  "sess-1",
		UserID:     "user-1",
		OnWaitlist: false,
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "sess-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "rsvp.promoted", string(msg.Headers[0].Value))

	var got events.Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, ev.Type, got.Type)
	assert.Equal(t, ev.UserID, got.UserID)
	assert.True(t, ev.OccurredAt.Equal(got.OccurredAt))
}

func TestPublisher_WrapsWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisherWithWriter(w)

	err := p.Publish(context.Background(), events.Event{Type: events.TypeRSVPCreated, SessionID: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, w.err)
	assert.Contains(t, err.Error(), "kafka.Publisher.Publish")
}

func TestPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewPublisherWithWriter(w).Close())
	assert.True(t, w.closed)
}
