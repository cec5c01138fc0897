package dto

import (
	"time"

	"github.com/radieske/stock-bet-settlement/internal/settlement/repo"
)

// BetResponse é a representação pública de uma aposta
type BetResponse struct {
	ID              string       `json:"id"`
	BettorA         string       `json:"bettorA"`
	BettorB         string       `json:"bettorB"`
	TickerA         string       `json:"tickerA"`
	TickerB         string       `json:"tickerB"`
	StartDate       string       `json:"startDate"`
	EndDate         string       `json:"endDate"`
	Status          string       `json:"status"` // OPEN | SETTLED | INVALID
	SettledAt       *time.Time   `json:"settledAt"`
	SettlementTxID  *string      `json:"settlementTxId"`
	SettlementError *string      `json:"settlementError"`
	Result          *repo.Result `json:"result"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

func FromWager(w repo.Wager) BetResponse {
	return BetResponse{
		ID:              w.ID,
		BettorA:         w.BettorA,
		BettorB:         w.BettorB,
		TickerA:         w.TickerA,
		TickerB:         w.TickerB,
		StartDate:       w.StartDate.Format(dateLayout),
		EndDate:         w.EndDate.Format(dateLayout),
		Status:          string(w.Status),
		SettledAt:       w.SettledAt,
		SettlementTxID:  w.SettlementTxID,
		SettlementError: w.SettlementError,
		Result:          w.Result,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

// PendingResponse é devolvido com 202 quando a aposta continua aberta
type PendingResponse struct {
	Status string      `json:"status"` // PENDING
	Bet    BetResponse `json:"bet"`
}

type ListBetsResponse struct {
	Items []BetResponse `json:"items"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int           `json:"total"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
