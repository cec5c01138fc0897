package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/stock-bet-settlement/internal/settlement/dto"
	"github.com/radieske/stock-bet-settlement/internal/settlement/engine"
	"github.com/radieske/stock-bet-settlement/internal/settlement/repo"
)

// Settler é o motor de liquidação (implementado por *engine.Engine)
type Settler interface {
	CheckOne(ctx context.Context, id string) (engine.Outcome, error)
	SweepDue(ctx context.Context, limit int, cursor string) (engine.SweepResult, error)
}

// Bets é o acesso de leitura/criação de apostas (implementado por *repo.Postgres)
type Bets interface {
	Conn() repo.Querier
	Create(ctx context.Context, nw repo.NewWager) (repo.Wager, error)
	Get(ctx context.Context, q repo.Querier, id string) (repo.Wager, error)
	List(ctx context.Context, f repo.ListFilter) ([]repo.Wager, int, error)
}

// API expõe os endpoints REST de apostas e liquidação
type API struct {
	Log     *zap.Logger
	Settler Settler
	Bets    Bets
	Stream  http.Handler // opcional: WebSocket de desfechos
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/bets", a.createBet)     // Cria aposta OPEN
	r.Get("/bets", a.listBets)       // Lista paginada
	r.Get("/bets/{id}", a.getBet)    // Consulta uma aposta
	r.Post("/check", a.check)        // Liquida uma aposta sob demanda
	r.Post("/check-due", a.checkDue) // Sweep de uma página de apostas vencidas
	if a.Stream != nil {
		r.Get("/ws", a.Stream.ServeHTTP)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

func writeValidation(w http.ResponseWriter, err error) bool {
	var ve *dto.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid payload", Fields: ve.Fields})
	return true
}

func (a *API) createBet(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	nw, err := req.Validate()
	if err != nil {
		writeValidation(w, err)
		return
	}

	bet, err := a.Bets.Create(r.Context(), nw)
	if err != nil {
		a.Log.Error("create bet failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Unable to create bet")
		return
	}
	a.Log.Info("bet created", zap.String("betId", bet.ID), zap.String("tickerA", bet.TickerA), zap.String("tickerB", bet.TickerB))
	writeJSON(w, http.StatusCreated, dto.FromWager(bet))
}

func (a *API) listBets(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q, err := dto.ParseListQuery(qs.Get("status"), qs.Get("limit"), qs.Get("page"))
	if err != nil {
		writeValidation(w, err)
		return
	}

	items, total, err := a.Bets.List(r.Context(), repo.ListFilter{Status: q.Status, Limit: q.Limit, Offset: q.Offset()})
	if err != nil {
		a.Log.Error("list bets failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Unable to fetch bets")
		return
	}

	out := dto.ListBetsResponse{Items: make([]dto.BetResponse, 0, len(items)), Page: q.Page, Limit: q.Limit, Total: total}
	for _, it := range items {
		out.Items = append(out.Items, dto.FromWager(it))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getBet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "id must be a valid UUID")
		return
	}

	bet, err := a.Bets.Get(r.Context(), a.Bets.Conn(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Bet not found")
			return
		}
		a.Log.Error("get bet failed", zap.String("betId", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.FromWager(bet))
}

// check: 200 terminal, 202 pendente, 400 ainda não venceu, 404 inexistente
func (a *API) check(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if _, err := uuid.Parse(req.ID); err != nil {
		writeError(w, http.StatusBadRequest, "id must be a valid UUID")
		return
	}

	out, err := a.Settler.CheckOne(r.Context(), req.ID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "Bet not found")
		return
	case errors.Is(err, engine.ErrNotMatured):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		a.Log.Error("check bet failed", zap.String("betId", req.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Unable to check bet")
		return
	}

	if out.Status == engine.OutcomePending {
		writeJSON(w, http.StatusAccepted, dto.PendingResponse{Status: string(engine.OutcomePending), Bet: dto.FromWager(out.Wager)})
		return
	}
	writeJSON(w, http.StatusOK, dto.FromWager(out.Wager))
}

func (a *API) checkDue(w http.ResponseWriter, r *http.Request) {
	limit := engine.DefaultSweepLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > engine.MaxSweepLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}
	cursor := r.URL.Query().Get("cursor")

	res, err := a.Settler.SweepDue(r.Context(), limit, cursor)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.Log.Error("check due failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Unable to process due bets")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
