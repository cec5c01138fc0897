// Package marketdata busca fechamentos históricos na API de chart do Yahoo Finance.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radieske/stock-bet-settlement/internal/settlement/failure"
)

const (
	chartPath       = "/v8/finance/chart/"
	defaultLookback = 90 // dias de histórico antes do alvo
)

// Quote é o fechamento de um pregão, com o dia já ancorado no fuso do mercado
type Quote struct {
	Date     time.Time
	Close    float64
	AdjClose float64
}

// Client consulta o provedor com retry linear, rate limit e circuit breaker.
// Símbolo inexistente e ausência de dados não são repetidos.
type Client struct {
	baseURL     string
	http        *http.Client
	log         *zap.Logger
	loc         *time.Location
	maxAttempts int
	retryBase   time.Duration
	lookback    int
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker

	// OnRequest recebe o resultado de cada tentativa (ok, transient, symbol_not_found, no_data)
	OnRequest func(outcome string)

	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithRetryBase(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.retryBase = d
		}
	}
}

// WithRateLimit limita requisições por segundo ao provedor (0 desliga)
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func New(baseURL string, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL:     baseURL,
		http:        &http.Client{Timeout: 10 * time.Second},
		log:         log,
		loc:         time.UTC,
		maxAttempts: 3,
		retryBase:   200 * time.Millisecond,
		lookback:    defaultLookback,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}

	st := gobreaker.Settings{
		Name:    "marketdata",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		// falhas permanentes são respostas válidas do provedor, não derrubam o circuito
		IsSuccessful: func(err error) bool {
			return err == nil || failure.IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit state change", zap.String("breaker", name),
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker(st)
	return c
}

// GetQuoteOnOrBefore retorna o último fechamento válido no dia alvo ou antes dele
func (c *Client) GetQuoteOnOrBefore(ctx context.Context, symbol string, day time.Time) (Quote, error) {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return Quote{}, err
	}

	target := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.loc)
	endRange := target.AddDate(0, 0, 1)
	startRange := target.AddDate(0, 0, -c.lookback)
	targetEpoch := endRange.Unix() - 1

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		q, err := c.attempt(ctx, normalized, startRange, endRange, targetEpoch)
		if err == nil {
			c.observe("ok")
			return q, nil
		}

		kind := failure.KindOf(err)
		c.observe(kind.String())
		if kind.Permanent() || kind == failure.KindFatal {
			return Quote{}, err
		}
		if kind != failure.KindTransient {
			err = failure.Wrap(failure.KindTransient, "fetch "+normalized, err)
		}
		lastErr = err

		if attempt < c.maxAttempts-1 {
			wait := c.retryBase * time.Duration(attempt+1)
			c.log.Debug("marketdata retry",
				zap.String("symbol", normalized),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
			if serr := c.sleep(ctx, wait); serr != nil {
				return Quote{}, failure.Wrap(failure.KindTransient, "fetch "+normalized+" interrupted", serr)
			}
		}
	}

	c.log.Warn("marketdata retries exhausted", zap.String("symbol", normalized), zap.Error(lastErr))
	return Quote{}, lastErr
}

func (c *Client) attempt(ctx context.Context, symbol string, start, end time.Time, targetEpoch int64) (Quote, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Quote{}, failure.Wrap(failure.KindTransient, "rate limiter", err)
		}
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, symbol, start, end, targetEpoch)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Quote{}, failure.Wrap(failure.KindTransient, "marketdata circuit open", err)
		}
		return Quote{}, err
	}
	return out.(Quote), nil
}

func (c *Client) fetch(ctx context.Context, symbol string, start, end time.Time, targetEpoch int64) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(symbol, start, end), nil)
	if err != nil {
		return Quote{}, failure.Wrap(failure.KindFatal, "build marketdata request", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return Quote{}, failure.Wrap(failure.KindTransient, "marketdata request "+symbol, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusBadRequest:
		return Quote{}, failure.New(failure.KindSymbolNotFound, "no data found for symbol "+symbol)
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return Quote{}, failure.New(failure.KindTransient, fmt.Sprintf("marketdata responded with status %d", res.StatusCode))
	case res.StatusCode >= 300:
		return Quote{}, failure.New(failure.KindTransient, fmt.Sprintf("unexpected marketdata response: %d", res.StatusCode))
	}

	var body chartResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return Quote{}, failure.Wrap(failure.KindTransient, "decode marketdata response", err)
	}
	return c.parseQuote(symbol, body, targetEpoch)
}

func (c *Client) buildURL(symbol string, start, end time.Time) string {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "div,splits")
	params.Set("includePrePost", "false")
	return c.baseURL + chartPath + url.PathEscape(symbol) + "?" + params.Encode()
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// parseQuote varre os pontos do mais recente para o mais antigo
// e retorna o primeiro com timestamp <= alvo e close válido
func (c *Client) parseQuote(symbol string, body chartResponse, targetEpoch int64) (Quote, error) {
	if e := body.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return Quote{}, failure.New(failure.KindSymbolNotFound, "no data found for symbol "+symbol)
		}
		desc := e.Description
		if desc == "" {
			desc = "marketdata returned an error"
		}
		return Quote{}, failure.New(failure.KindTransient, desc)
	}
	if len(body.Chart.Result) == 0 {
		return Quote{}, noData(symbol)
	}

	r := body.Chart.Result[0]
	var closes, adjCloses []*float64
	if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}
	if len(r.Indicators.AdjClose) > 0 {
		adjCloses = r.Indicators.AdjClose[0].AdjClose
	}

	for i := len(r.Timestamp) - 1; i >= 0; i-- {
		ts := r.Timestamp[i]
		if ts > targetEpoch {
			continue
		}
		// close é obrigatório; adjClose inválido cai para o close
		closePx, ok := price(closes, i)
		if !ok {
			continue
		}
		adjPx, ok := price(adjCloses, i)
		if !ok {
			adjPx = closePx
		}

		t := time.Unix(ts, 0).In(c.loc)
		return Quote{
			Date:     time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc),
			Close:    closePx,
			AdjClose: adjPx,
		}, nil
	}

	return Quote{}, noData(symbol)
}

func price(series []*float64, i int) (float64, bool) {
	if i >= len(series) || series[i] == nil {
		return 0, false
	}
	v := *series[i]
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

func noData(symbol string) error {
	return failure.New(failure.KindNoData,
		"unable to locate a price for "+symbol+" on or before the requested date")
}

func (c *Client) observe(outcome string) {
	if c.OnRequest != nil {
		c.OnRequest(outcome)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
