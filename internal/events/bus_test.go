package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/piragazh/feasto/internal/events"
)

type recordingNotifier struct {
	events []events.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event events.Event) error {
	n.events = append(n.events, event)
	return n.err
}

func TestEmitDispatchesToAllNotifiers(t *testing.T) {
	first := &recordingNotifier{}
	second := &recordingNotifier{}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	bus := &events.Bus{
		Now:       func() time.Time { return now },
		Notifiers: []events.Notifier{first, second},
	}

	sessionID := uuid.New()
	ev, err := bus.Emit(context.Background(), events.TopicDiscountApplied, sessionID, map[string]any{"amount": 300})
	require.NoError(t, err)
	require.Equal(t, events.TopicDiscountApplied, ev.Topic)
	require.Equal(t, sessionID, ev.SessionID)
	require.Equal(t, now, ev.OccurredAt)
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)

	var payload map[string]int64
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	require.Equal(t, int64(300), payload["amount"])
}

func TestEmitJoinsNotifierFailures(t *testing.T) {
	boom := errors.New("sink down")
	failing := &recordingNotifier{err: boom}
	healthy := &recordingNotifier{}
	bus := &events.Bus{Notifiers: []events.Notifier{failing, healthy}}

	_, err := bus.Emit(context.Background(), events.TopicDiscountEvicted, uuid.New(), nil)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.Len(t, healthy.events, 1, "failure must not stop the fan-out")
}

func TestEmitValidatesInput(t *testing.T) {
	bus := &events.Bus{}

	_, err := bus.Emit(context.Background(), "", uuid.New(), nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicDiscountApplied, uuid.Nil, nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicDiscountApplied, uuid.New(), "{not json")
	require.Error(t, err)
}

func TestEmitAcceptsRawPayloads(t *testing.T) {
	bus := &events.Bus{}

	ev, err := bus.Emit(context.Background(), events.TopicDiscountRemoved, uuid.New(), json.RawMessage(`{"kind":"coupon"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"coupon"}`, string(ev.Payload))

	ev, err = bus.Emit(context.Background(), events.TopicSessionClosed, uuid.New(), nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(ev.Payload))
}
