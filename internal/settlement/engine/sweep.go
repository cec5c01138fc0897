package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/stock-bet-settlement/internal/settlement/repo"
)

const (
	DefaultSweepLimit = 100
	MaxSweepLimit     = 500
)

var ErrInvalidCursor = errors.New("invalid cursor")

// ProcessedItem é o desfecho de uma aposta dentro da página
type ProcessedItem struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Reason *string `json:"reason"`
}

type SweepResult struct {
	Scanned    int             `json:"scanned"`
	Settled    int             `json:"settled"`
	Pending    int             `json:"pending"`
	Errors     int             `json:"errors"`
	NextCursor string          `json:"cursor,omitempty"`
	Processed  []ProcessedItem `json:"processed"`
}

// ParseCursor lê "<YYYY-MM-DD>|<uuid>"; string vazia significa primeira página
func ParseCursor(raw string) (*repo.Cursor, error) {
	if raw == "" {
		return nil, nil
	}
	datePart, idPart, ok := strings.Cut(raw, "|")
	if !ok || datePart == "" || idPart == "" {
		return nil, fmt.Errorf("%w: must be in the format <endDate>|<id>", ErrInvalidCursor)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return nil, fmt.Errorf("%w: id must be a valid UUID", ErrInvalidCursor)
	}
	d, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be a valid ISO date (YYYY-MM-DD)", ErrInvalidCursor)
	}
	return &repo.Cursor{EndDate: d.Format("2006-01-02"), ID: id.String()}, nil
}

// FormatCursor gera o cursor que continua depois da aposta w
func FormatCursor(w repo.Wager) string {
	return w.EndDate.Format("2006-01-02") + "|" + w.ID
}

// SweepDue liquida uma página de apostas vencidas numa única transação.
// As linhas são travadas com SKIP LOCKED, então sweeps concorrentes nunca pegam a mesma aposta.
// Erro não classificado aborta a página inteira (rollback).
func (e *Engine) SweepDue(ctx context.Context, limit int, cursor string) (SweepResult, error) {
	after, err := ParseCursor(cursor)
	if err != nil {
		return SweepResult{}, err
	}
	if limit <= 0 {
		limit = DefaultSweepLimit
	}
	if limit > MaxSweepLimit {
		limit = MaxSweepLimit
	}

	started := e.Now()
	today := e.Calendar.DayKey(e.Calendar.Today(started))
	res := SweepResult{Processed: []ProcessedItem{}}
	var terminal []Outcome

	err = e.Store.InTx(ctx, func(q repo.Querier) error {
		due, err := e.Store.ListDue(ctx, q, today, limit, after)
		if err != nil {
			return err
		}
		res.Scanned = len(due)

		for _, w := range due {
			out, err := e.SettleBet(ctx, q, w)
			if errors.Is(err, ErrNotMatured) {
				// não deveria ocorrer com o filtro de end_date, conta como pendente
				reason := err.Error()
				res.Pending++
				res.Processed = append(res.Processed, ProcessedItem{ID: w.ID, Status: string(OutcomePending), Reason: &reason})
				continue
			}
			if err != nil {
				return err
			}

			switch out.Status {
			case OutcomeSettled:
				res.Settled++
			case OutcomePending:
				res.Pending++
			default:
				res.Errors++
			}
			res.Processed = append(res.Processed, ProcessedItem{
				ID:     out.Wager.ID,
				Status: string(out.Status),
				Reason: out.Wager.SettlementError,
			})
			if out.Terminal() && !out.AlreadySettled {
				terminal = append(terminal, out)
			}
		}

		if len(due) > 0 {
			res.NextCursor = FormatCursor(due[len(due)-1])
		}
		return nil
	})

	elapsed := e.Now().Sub(started)
	if e.OnSweep != nil {
		e.OnSweep(elapsed, err)
	}
	if err != nil {
		e.Log.Error("sweep page aborted", zap.String("cursor", cursor), zap.Int("limit", limit), zap.Error(err))
		return SweepResult{}, err
	}

	// só publica o que foi efetivamente commitado
	for _, out := range terminal {
		e.notify(ctx, out)
	}

	e.Log.Info("sweep page done",
		zap.Int("scanned", res.Scanned),
		zap.Int("settled", res.Settled),
		zap.Int("pending", res.Pending),
		zap.Int("errors", res.Errors),
		zap.String("nextCursor", res.NextCursor),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

// SweepAll drena as páginas seguindo o cursor até uma página incompleta.
// Cancelar ctx não interrompe a página em andamento (ela termina e faz commit);
// o cancelamento é verificado entre páginas. Usado pelo worker e pelo settlectl --all.
func (e *Engine) SweepAll(ctx context.Context, limit int) (SweepResult, error) {
	if limit <= 0 {
		limit = DefaultSweepLimit
	}
	if limit > MaxSweepLimit {
		limit = MaxSweepLimit
	}

	total := SweepResult{Processed: []ProcessedItem{}}
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		page, err := e.SweepDue(context.WithoutCancel(ctx), limit, cursor)
		if err != nil {
			return total, err
		}
		total.Scanned += page.Scanned
		total.Settled += page.Settled
		total.Pending += page.Pending
		total.Errors += page.Errors
		total.Processed = append(total.Processed, page.Processed...)
		if page.NextCursor != "" {
			total.NextCursor = page.NextCursor
		}

		if page.Scanned < limit || page.NextCursor == "" {
			return total, nil
		}
		cursor = page.NextCursor
	}
}
