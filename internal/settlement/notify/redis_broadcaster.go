package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/stock-bet-settlement/pkg/contracts/events"
)

// RedisBroadcaster publica o desfecho no canal de pub/sub e guarda o último
// evento de cada aposta com TTL, para consumidores que chegam depois.
type RedisBroadcaster struct {
	r       redis.Cmdable
	Channel string
	TTL     time.Duration
}

func NewRedisBroadcaster(r redis.Cmdable, channel string, ttl time.Duration) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, Channel: channel, TTL: ttl}
}

// key gera a chave Redis do último desfecho de uma aposta
func key(betID string) string { return "wager:settled:" + betID }

func (b *RedisBroadcaster) WagerSettled(ctx context.Context, e events.WagerSettled) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal wager settled: %w", err)
	}
	if b.TTL > 0 {
		if err := b.r.Set(ctx, key(e.BetID), payload, b.TTL).Err(); err != nil {
			return fmt.Errorf("redis set: %w", err)
		}
	}
	if err := b.r.Publish(ctx, b.Channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Last devolve o último desfecho publicado para a aposta; ok=false se expirou ou nunca existiu
func (b *RedisBroadcaster) Last(ctx context.Context, betID string) (events.WagerSettled, bool, error) {
	raw, err := b.r.Get(ctx, key(betID)).Bytes()
	if err == redis.Nil {
		return events.WagerSettled{}, false, nil
	}
	if err != nil {
		return events.WagerSettled{}, false, err
	}
	var e events.WagerSettled
	if err := json.Unmarshal(raw, &e); err != nil {
		return events.WagerSettled{}, false, err
	}
	return e, true, nil
}
