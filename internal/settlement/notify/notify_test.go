package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/stock-bet-settlement/pkg/contracts/events"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

type failingPublisher struct{ err error }

func (f failingPublisher) WagerSettled(context.Context, events.WagerSettled) error { return f.err }

func sampleEvent() events.WagerSettled {
	ra, rb := 0.2, 0.1
	return events.WagerSettled{
		BetID:          "8b7c2a8e-0f5c-4b8e-9a51-0d7f0a3c1e22",
		Status:         "SETTLED",
		TickerA:        "AAPL",
		TickerB:        "MSFT",
		Winner:         "A",
		ReturnA:        &ra,
		ReturnB:        &rb,
		SettlementTxID: "tx-1",
		Ts:             time.Date(2024, 1, 11, 15, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_KeysByBetID(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)

	require.NoError(t, p.WagerSettled(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "8b7c2a8e-0f5c-4b8e-9a51-0d7f0a3c1e22", string(w.msgs[0].Key))

	var got events.WagerSettled
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "A", got.Winner)
	assert.Equal(t, 0.2, *got.ReturnA)
	assert.Contains(t, string(w.msgs[0].Value), `"settlementTxId":"tx-1"`)
}

func TestKafkaPublisher_PropagatesError(t *testing.T) {
	boom := errors.New("leader not available")
	p := NewKafkaPublisher(&fakeWriter{err: boom})
	assert.ErrorIs(t, p.WagerSettled(context.Background(), sampleEvent()), boom)
}

func TestRedisBroadcaster_SetsAndPublishes(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ev := sampleEvent()
	payload, _ := json.Marshal(ev)

	mock.ExpectSet("wager:settled:"+ev.BetID, payload, time.Hour).SetVal("OK")
	mock.ExpectPublish("wager_settlements_broadcast", payload).SetVal(1)

	b := NewRedisBroadcaster(db, "wager_settlements_broadcast", time.Hour)
	require.NoError(t, b.WagerSettled(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBroadcaster_PublishOnlyWithoutTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ev := sampleEvent()
	payload, _ := json.Marshal(ev)

	mock.ExpectPublish("ch", payload).SetErr(errors.New("connection refused"))

	b := NewRedisBroadcaster(db, "ch", 0)
	err := b.WagerSettled(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBroadcaster_Last(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ev := sampleEvent()
	payload, _ := json.Marshal(ev)

	mock.ExpectGet("wager:settled:" + ev.BetID).SetVal(string(payload))
	mock.ExpectGet("wager:settled:missing").RedisNil()

	b := NewRedisBroadcaster(db, "ch", time.Hour)
	got, ok, err := b.Last(context.Background(), ev.BetID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tx-1", got.SettlementTxID)

	_, ok, err = b.Last(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	w := &fakeWriter{}
	boom := errors.New("redis down")
	f := Fanout{failingPublisher{err: boom}, nil, NewKafkaPublisher(w)}

	err := f.WagerSettled(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, w.msgs, 1)
}
