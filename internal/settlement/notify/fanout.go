// Package notify entrega apostas terminais para Kafka e Redis depois do commit.
package notify

import (
	"context"
	"errors"

	"github.com/radieske/stock-bet-settlement/pkg/contracts/events"
)

type Publisher interface {
	WagerSettled(ctx context.Context, e events.WagerSettled) error
}

// Fanout entrega para todos os destinos; falha de um não impede os demais
type Fanout []Publisher

func (f Fanout) WagerSettled(ctx context.Context, e events.WagerSettled) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.WagerSettled(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
