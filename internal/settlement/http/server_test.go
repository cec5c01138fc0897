package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/stock-bet-settlement/internal/settlement/dto"
	"github.com/radieske/stock-bet-settlement/internal/settlement/engine"
	"github.com/radieske/stock-bet-settlement/internal/settlement/repo"
)

const betID = "3f1b2c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d"

type fakeSettler struct {
	out       engine.Outcome
	err       error
	sweep     engine.SweepResult
	gotLimit  int
	gotCursor string
}

func (f *fakeSettler) CheckOne(context.Context, string) (engine.Outcome, error) {
	return f.out, f.err
}

func (f *fakeSettler) SweepDue(_ context.Context, limit int, cursor string) (engine.SweepResult, error) {
	f.gotLimit, f.gotCursor = limit, cursor
	if cursor == "bad" {
		return engine.SweepResult{}, engine.ErrInvalidCursor
	}
	return f.sweep, f.err
}

type fakeBets struct {
	created []repo.NewWager
	items   []repo.Wager
	total   int
	filter  repo.ListFilter
	getErr  error
}

func (f *fakeBets) Conn() repo.Querier { return nil }

func (f *fakeBets) Create(_ context.Context, nw repo.NewWager) (repo.Wager, error) {
	f.created = append(f.created, nw)
	return repo.Wager{
		ID: betID, BettorA: nw.BettorA, BettorB: nw.BettorB, TickerA: nw.TickerA, TickerB: nw.TickerB,
		StartDate: nw.StartDate, EndDate: nw.EndDate, Status: repo.StatusOpen,
	}, nil
}

func (f *fakeBets) Get(_ context.Context, _ repo.Querier, id string) (repo.Wager, error) {
	if f.getErr != nil {
		return repo.Wager{}, f.getErr
	}
	return wager(id, repo.StatusOpen), nil
}

func (f *fakeBets) List(_ context.Context, filter repo.ListFilter) ([]repo.Wager, int, error) {
	f.filter = filter
	return f.items, f.total, nil
}

func wager(id string, st repo.Status) repo.Wager {
	return repo.Wager{
		ID: id, BettorA: "Alice", BettorB: "Bob", TickerA: "AAPL", TickerB: "MSFT",
		StartDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Status:    st,
	}
}

func newAPI(s *fakeSettler, b *fakeBets) http.Handler {
	return (&API{Log: zap.NewNop(), Settler: s, Bets: b}).Router()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCheck_StatusCodes(t *testing.T) {
	settled := wager(betID, repo.StatusSettled)
	settled.Result = &repo.Result{Winner: "A"}

	cases := []struct {
		name   string
		body   string
		out    engine.Outcome
		err    error
		status int
	}{
		{"bad json", `{`, engine.Outcome{}, nil, http.StatusBadRequest},
		{"bad uuid", `{"id":"nope"}`, engine.Outcome{}, nil, http.StatusBadRequest},
		{"not found", `{"id":"` + betID + `"}`, engine.Outcome{}, repo.ErrNotFound, http.StatusNotFound},
		{"not matured", `{"id":"` + betID + `"}`, engine.Outcome{}, engine.ErrNotMatured, http.StatusBadRequest},
		{"unexpected", `{"id":"` + betID + `"}`, engine.Outcome{}, errors.New("db down"), http.StatusInternalServerError},
		{"settled", `{"id":"` + betID + `"}`, engine.Outcome{Status: engine.OutcomeSettled, Wager: settled}, nil, http.StatusOK},
		{"already invalid", `{"id":"` + betID + `"}`, engine.Outcome{Status: engine.OutcomeInvalid, Wager: wager(betID, repo.StatusInvalid), AlreadySettled: true}, nil, http.StatusOK},
		{"pending", `{"id":"` + betID + `"}`, engine.Outcome{Status: engine.OutcomePending, Wager: wager(betID, repo.StatusOpen)}, nil, http.StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, newAPI(&fakeSettler{out: tc.out, err: tc.err}, &fakeBets{}), http.MethodPost, "/check", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestCheck_Bodies(t *testing.T) {
	settled := wager(betID, repo.StatusSettled)
	settled.Result = &repo.Result{Winner: "Tie"}
	rec := do(t, newAPI(&fakeSettler{out: engine.Outcome{Status: engine.OutcomeSettled, Wager: settled}}, &fakeBets{}),
		http.MethodPost, "/check", `{"id":"`+betID+`"}`)

	var bet dto.BetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bet))
	assert.Equal(t, "SETTLED", bet.Status)
	assert.Equal(t, "2024-01-10", bet.EndDate)
	assert.Equal(t, "Tie", bet.Result.Winner)

	rec = do(t, newAPI(&fakeSettler{out: engine.Outcome{Status: engine.OutcomePending, Wager: wager(betID, repo.StatusOpen)}}, &fakeBets{}),
		http.MethodPost, "/check", `{"id":"`+betID+`"}`)
	var pending dto.PendingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Equal(t, "PENDING", pending.Status)
	assert.Equal(t, betID, pending.Bet.ID)

	rec = do(t, newAPI(&fakeSettler{err: engine.ErrNotMatured}, &fakeBets{}), http.MethodPost, "/check", `{"id":"`+betID+`"}`)
	assert.Contains(t, rec.Body.String(), "bet end date is in the future")
}

func TestCheckDue(t *testing.T) {
	s := &fakeSettler{sweep: engine.SweepResult{Scanned: 1, Settled: 1, NextCursor: "2024-01-10|" + betID,
		Processed: []engine.ProcessedItem{{ID: betID, Status: "SETTLED"}}}}
	h := newAPI(s, &fakeBets{})

	rec := do(t, h, http.MethodPost, "/check-due", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, s.gotLimit)
	assert.Equal(t, "", s.gotCursor)

	var res engine.SweepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Settled)
	assert.Equal(t, "2024-01-10|"+betID, res.NextCursor)

	rec = do(t, h, http.MethodPost, "/check-due?limit=5&cursor=2024-01-10%7C"+betID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, s.gotLimit)
	assert.Equal(t, "2024-01-10|"+betID, s.gotCursor)

	for _, target := range []string{"/check-due?limit=0", "/check-due?limit=501", "/check-due?limit=x", "/check-due?cursor=bad"} {
		rec = do(t, h, http.MethodPost, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	s.err = errors.New("tx aborted")
	rec = do(t, h, http.MethodPost, "/check-due", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCreateBet(t *testing.T) {
	b := &fakeBets{}
	h := newAPI(&fakeSettler{}, b)

	rec := do(t, h, http.MethodPost, "/bets",
		`{"bettorA":"Alice","bettorB":"Bob","tickerA":"brk.b","tickerB":"msft","startDate":"2024-01-02","endDate":"2024-01-10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, b.created, 1)
	assert.Equal(t, "BRK-B", b.created[0].TickerA)

	var bet dto.BetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bet))
	assert.Equal(t, "OPEN", bet.Status)
	assert.Equal(t, "2024-01-02", bet.StartDate)

	rec = do(t, h, http.MethodPost, "/bets",
		`{"bettorA":"Alice","bettorB":"Bob","tickerA":"AAPL","tickerB":"aapl","startDate":"2024-01-02","endDate":"2024-01-10"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var er dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, "Tickers must be different", er.Fields["tickerB"])
	assert.Len(t, b.created, 1)
}

func TestListBets(t *testing.T) {
	b := &fakeBets{items: []repo.Wager{wager(betID, repo.StatusOpen)}, total: 21}
	h := newAPI(&fakeSettler{}, b)

	rec := do(t, h, http.MethodGet, "/bets?status=OPEN&limit=10&page=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repo.ListFilter{Status: repo.StatusOpen, Limit: 10, Offset: 20}, b.filter)

	var out dto.ListBetsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 21, out.Total)
	assert.Equal(t, 3, out.Page)
	require.Len(t, out.Items, 1)

	rec = do(t, h, http.MethodGet, "/bets?limit=100", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBet(t *testing.T) {
	h := newAPI(&fakeSettler{}, &fakeBets{})
	rec := do(t, h, http.MethodGet, "/bets/"+betID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/bets/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, newAPI(&fakeSettler{}, &fakeBets{getErr: repo.ErrNotFound}), http.MethodGet, "/bets/"+betID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, newAPI(&fakeSettler{}, &fakeBets{}), http.MethodGet, "/check", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
