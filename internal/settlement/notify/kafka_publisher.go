package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	sharedkafka "github.com/radieske/stock-bet-settlement/internal/shared/kafka"
	"github.com/radieske/stock-bet-settlement/pkg/contracts/events"
)

// MessageWriter é o subconjunto do *kafka.Writer usado aqui
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publica WagerSettled no tópico configurado no writer.
// A chave é o id da aposta: eventos da mesma aposta caem na mesma partição.
type KafkaPublisher struct {
	Writer MessageWriter
}

func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

func (p *KafkaPublisher) WagerSettled(ctx context.Context, e events.WagerSettled) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal wager settled: %w", err)
	}
	return sharedkafka.WriteJSON(ctx, p.Writer, e.BetID, b)
}
