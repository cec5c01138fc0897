// Package engine liquida apostas: resolve pregões, busca as quatro cotações,
// calcula os retornos e grava o desfecho com escrita idempotente.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/stock-bet-settlement/internal/settlement/calendar"
	"github.com/radieske/stock-bet-settlement/internal/settlement/failure"
	"github.com/radieske/stock-bet-settlement/internal/settlement/marketdata"
	"github.com/radieske/stock-bet-settlement/internal/settlement/repo"
	"github.com/radieske/stock-bet-settlement/internal/settlement/returns"
	"github.com/radieske/stock-bet-settlement/pkg/contracts/events"
)

// diferença mínima entre retornos para haver vencedor
const winnerEpsilon = 1e-6

// ErrNotMatured: o último pregão da aposta ainda não aconteceu. Nada é gravado.
var ErrNotMatured error = failure.New(failure.KindNotMatured, "bet end date is in the future")

type OutcomeStatus string

const (
	OutcomeSettled OutcomeStatus = "SETTLED"
	OutcomeInvalid OutcomeStatus = "INVALID"
	OutcomePending OutcomeStatus = "PENDING"
)

// Outcome é o resultado de uma tentativa de liquidação.
// AlreadySettled indica que a aposta já estava terminal (nenhuma escrita desta execução).
type Outcome struct {
	Status         OutcomeStatus
	Wager          repo.Wager
	AlreadySettled bool
}

func (o Outcome) Terminal() bool {
	return o.Status == OutcomeSettled || o.Status == OutcomeInvalid
}

// Store é a persistência usada pelo motor (implementada por *repo.Postgres)
type Store interface {
	Conn() repo.Querier
	InTx(ctx context.Context, fn func(q repo.Querier) error) error
	Get(ctx context.Context, q repo.Querier, id string) (repo.Wager, error)
	ListDue(ctx context.Context, q repo.Querier, today string, limit int, after *repo.Cursor) ([]repo.Wager, error)
	MarkSettled(ctx context.Context, q repo.Querier, id string, res repo.Result, settledAt time.Time, txID string) (repo.Wager, bool, error)
	MarkInvalid(ctx context.Context, q repo.Querier, id string, reason string) (repo.Wager, bool, error)
	MarkPending(ctx context.Context, q repo.Querier, id string, reason string) (repo.Wager, bool, error)
}

// QuoteSource é o provedor de cotações (implementado por *marketdata.Client)
type QuoteSource interface {
	GetQuoteOnOrBefore(ctx context.Context, symbol string, day time.Time) (marketdata.Quote, error)
}

// Notifier recebe apostas que chegaram a estado terminal, depois do commit
type Notifier interface {
	WagerSettled(ctx context.Context, e events.WagerSettled) error
}

// Engine orquestra a liquidação.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Engine struct {
	Store    Store
	Quotes   QuoteSource
	Calendar *calendar.Calendar
	Log      *zap.Logger
	Notifier Notifier // opcional

	Now     func() time.Time
	NewTxID func() string

	OnOutcome func(status string)                     // métricas
	OnSweep   func(elapsed time.Duration, err error) // métricas
}

func New(store Store, quotes QuoteSource, cal *calendar.Calendar, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Store:    store,
		Quotes:   quotes,
		Calendar: cal,
		Log:      log,
		Now:      time.Now,
		NewTxID:  uuid.NewString,
	}
}

// CheckOne liquida uma aposta sob demanda, fora de transação.
// Aposta já terminal volta como está; repo.ErrNotFound se não existir.
func (e *Engine) CheckOne(ctx context.Context, id string) (Outcome, error) {
	conn := e.Store.Conn()
	w, err := e.Store.Get(ctx, conn, id)
	if err != nil {
		return Outcome{}, err
	}

	out, err := e.SettleBet(ctx, conn, w)
	if err != nil {
		return Outcome{}, err
	}
	if out.Terminal() && !out.AlreadySettled {
		e.notify(ctx, out)
	}
	return out, nil
}

// SettleBet leva uma aposta OPEN para SETTLED, INVALID ou PENDING (continua OPEN com diagnóstico).
// Erros retornados não alteram a aposta: ErrNotMatured ou falhas não classificadas.
func (e *Engine) SettleBet(ctx context.Context, q repo.Querier, w repo.Wager) (Outcome, error) {
	if w.Status != repo.StatusOpen {
		return Outcome{Status: OutcomeStatus(w.Status), Wager: w, AlreadySettled: true}, nil
	}

	log := e.Log.With(zap.String("betId", w.ID))

	startDay, err := e.Calendar.ResolveToTradingDay(w.StartDate, calendar.Next)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve start day: %w", err)
	}
	endDay, err := e.Calendar.ResolveToTradingDay(w.EndDate, calendar.Prev)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve end day: %w", err)
	}
	now := e.Now()
	latest, err := e.Calendar.LatestTradingDay(now)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve latest trading day: %w", err)
	}
	if endDay.After(latest) {
		return Outcome{}, ErrNotMatured
	}
	// pregão final ainda aberto: a barra do dia no provedor é intraday, não o fechamento
	if !e.Calendar.SessionClosed(endDay, now) {
		reason := fmt.Sprintf("closing price for %s not yet published (session closes at %s)",
			e.Calendar.DayKey(endDay), e.Calendar.SessionClose(endDay).Format("15:04 MST"))
		return e.pending(ctx, q, w, reason)
	}

	legs, err := e.fetchQuotes(ctx, w, startDay, endDay)
	if err != nil {
		return e.classify(ctx, q, w, err)
	}

	startKey, endKey := e.Calendar.DayKey(startDay), e.Calendar.DayKey(endDay)
	for _, l := range legs {
		if got := e.Calendar.DayKey(l.start.Date); got != startKey {
			reason := fmt.Sprintf("no price for %s on start trading day %s (latest available %s)", l.ticker, startKey, got)
			return e.invalid(ctx, q, w, reason)
		}
	}
	for _, l := range legs {
		if got := e.Calendar.DayKey(l.end.Date); got != endKey {
			reason := fmt.Sprintf("closing price for %s on %s not yet available (latest %s)", l.ticker, endKey, got)
			return e.pending(ctx, q, w, reason)
		}
	}

	res, err := buildResult(e.Calendar, legs)
	if err != nil {
		return e.classify(ctx, q, w, err)
	}

	txID := e.NewTxID()
	updated, ok, err := e.Store.MarkSettled(ctx, q, w.ID, res, e.Now().UTC(), txID)
	if err != nil {
		return Outcome{}, fmt.Errorf("mark settled: %w", err)
	}
	if !ok {
		return e.reread(ctx, q, w.ID)
	}

	log.Info("wager settled",
		zap.String("winner", res.Winner),
		zap.Float64("returnA", res.A.Raw),
		zap.Float64("returnB", res.B.Raw),
		zap.String("settlementTxId", txID),
	)
	e.observe(OutcomeSettled)
	return Outcome{Status: OutcomeSettled, Wager: updated}, nil
}

type leg struct {
	label      string // "A" | "B"
	ticker     string
	start, end marketdata.Quote
}

// fetchQuotes busca início/fim das duas pernas em paralelo e espera as quatro.
// Com mais de uma falha, vence a mais grave: não classificada > permanente > transitória.
func (e *Engine) fetchQuotes(ctx context.Context, w repo.Wager, startDay, endDay time.Time) ([2]leg, error) {
	legs := [2]leg{
		{label: "A", ticker: w.TickerA},
		{label: "B", ticker: w.TickerB},
	}
	errs := make([]error, 4)

	var g errgroup.Group
	for i := range legs {
		i := i
		g.Go(func() error {
			q, err := e.Quotes.GetQuoteOnOrBefore(ctx, legs[i].ticker, startDay)
			if err != nil {
				errs[2*i] = fmt.Errorf("ticker %s (%s) start: %w", legs[i].label, legs[i].ticker, err)
				return errs[2*i]
			}
			legs[i].start = q
			return nil
		})
		g.Go(func() error {
			q, err := e.Quotes.GetQuoteOnOrBefore(ctx, legs[i].ticker, endDay)
			if err != nil {
				errs[2*i+1] = fmt.Errorf("ticker %s (%s) end: %w", legs[i].label, legs[i].ticker, err)
				return errs[2*i+1]
			}
			legs[i].end = q
			return nil
		})
	}
	if err := g.Wait(); err == nil {
		return legs, nil
	}

	return legs, worst(errs)
}

func worst(errs []error) error {
	rank := func(err error) int {
		switch k := failure.KindOf(err); {
		case k == failure.KindTransient:
			return 1
		case k.Permanent():
			return 2
		default:
			return 3
		}
	}
	var picked error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if picked == nil || rank(err) > rank(picked) {
			picked = err
		}
	}
	return picked
}

func buildResult(cal *calendar.Calendar, legs [2]leg) (repo.Result, error) {
	var out [2]repo.LegResult
	for i, l := range legs {
		r, err := returns.Calculate(l.start, l.end)
		if err != nil {
			return repo.Result{}, fmt.Errorf("ticker %s (%s): %w", l.label, l.ticker, err)
		}
		out[i] = repo.LegResult{
			Ticker:  l.ticker,
			Start:   snapshot(cal, l.start),
			End:     snapshot(cal, l.end),
			Raw:     r.Raw,
			Rounded: r.Rounded,
		}
	}
	return repo.Result{A: out[0], B: out[1], Winner: Winner(out[0].Raw, out[1].Raw)}, nil
}

// Winner compara os retornos brutos com tolerância winnerEpsilon
func Winner(a, b float64) string {
	diff := a - b
	switch {
	case math.Abs(diff) <= winnerEpsilon:
		return "Tie"
	case diff > 0:
		return "A"
	default:
		return "B"
	}
}

func snapshot(cal *calendar.Calendar, q marketdata.Quote) repo.QuoteSnapshot {
	return repo.QuoteSnapshot{Date: cal.DayKey(q.Date), Close: q.Close, AdjClose: q.AdjClose}
}

// classify mapeia a falha para o próximo estado; não classificadas sobem sem escrita
func (e *Engine) classify(ctx context.Context, q repo.Querier, w repo.Wager, err error) (Outcome, error) {
	switch k := failure.KindOf(err); {
	case k == failure.KindTransient:
		return e.pending(ctx, q, w, err.Error())
	case k.Permanent():
		return e.invalid(ctx, q, w, err.Error())
	default:
		return Outcome{}, fmt.Errorf("settle wager %s: %w", w.ID, err)
	}
}

func (e *Engine) invalid(ctx context.Context, q repo.Querier, w repo.Wager, reason string) (Outcome, error) {
	updated, ok, err := e.Store.MarkInvalid(ctx, q, w.ID, reason)
	if err != nil {
		return Outcome{}, fmt.Errorf("mark invalid: %w", err)
	}
	if !ok {
		return e.reread(ctx, q, w.ID)
	}
	e.Log.Warn("wager invalid", zap.String("betId", w.ID), zap.String("reason", reason))
	e.observe(OutcomeInvalid)
	return Outcome{Status: OutcomeInvalid, Wager: updated}, nil
}

func (e *Engine) pending(ctx context.Context, q repo.Querier, w repo.Wager, reason string) (Outcome, error) {
	updated, ok, err := e.Store.MarkPending(ctx, q, w.ID, reason)
	if err != nil {
		return Outcome{}, fmt.Errorf("mark pending: %w", err)
	}
	if !ok {
		return e.reread(ctx, q, w.ID)
	}
	e.Log.Warn("wager pending", zap.String("betId", w.ID), zap.String("reason", reason))
	e.observe(OutcomePending)
	return Outcome{Status: OutcomePending, Wager: updated}, nil
}

// reread: a escrita condicional não afetou linhas, outra execução chegou antes.
// Devolve a versão gravada em vez de erro.
func (e *Engine) reread(ctx context.Context, q repo.Querier, id string) (Outcome, error) {
	current, err := e.Store.Get(ctx, q, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("reread wager %s: %w", id, err)
	}
	if current.Status == repo.StatusOpen {
		// só acontece se a linha foi alterada por fora das regras do motor
		return Outcome{}, fmt.Errorf("reread wager %s: %w", id, errors.New("conditional write lost but wager still open"))
	}
	e.Log.Info("wager already settled", zap.String("betId", id), zap.String("status", string(current.Status)))
	return Outcome{Status: OutcomeStatus(current.Status), Wager: current, AlreadySettled: true}, nil
}

func (e *Engine) observe(s OutcomeStatus) {
	if e.OnOutcome != nil {
		e.OnOutcome(string(s))
	}
}

func (e *Engine) notify(ctx context.Context, out Outcome) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.WagerSettled(ctx, SettledEvent(out.Wager, e.Now())); err != nil {
		e.Log.Warn("notify wager settled failed", zap.String("betId", out.Wager.ID), zap.Error(err))
	}
}

// SettledEvent monta o evento de contrato a partir da aposta terminal
func SettledEvent(w repo.Wager, ts time.Time) events.WagerSettled {
	ev := events.WagerSettled{
		BetID:   w.ID,
		Status:  string(w.Status),
		TickerA: w.TickerA,
		TickerB: w.TickerB,
		Ts:      ts,
	}
	if w.Result != nil {
		a, b := w.Result.A.Rounded, w.Result.B.Rounded
		ev.Winner = w.Result.Winner
		ev.ReturnA = &a
		ev.ReturnB = &b
	}
	if w.SettlementTxID != nil {
		ev.SettlementTxID = *w.SettlementTxID
	}
	if w.SettlementError != nil {
		ev.Reason = *w.SettlementError
	}
	return ev
}
