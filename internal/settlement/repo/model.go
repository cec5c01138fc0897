package repo

import (
	"time"
)

type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusSettled Status = "SETTLED"
	StatusInvalid Status = "INVALID"
)

func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusSettled || s == StatusInvalid
}

// Wager é o modelo persistido no Postgres (tabela bets).
// StartDate/EndDate são datas sem hora; vale o ano/mês/dia.
type Wager struct {
	ID              string
	BettorA         string
	BettorB         string
	TickerA         string
	TickerB         string
	StartDate       time.Time
	EndDate         time.Time
	Status          Status
	SettledAt       *time.Time
	SettlementTxID  *string
	SettlementError *string
	Result          *Result
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewWager são os campos aceitos na criação; o restante tem default no banco
type NewWager struct {
	BettorA   string
	BettorB   string
	TickerA   string
	TickerB   string
	StartDate time.Time
	EndDate   time.Time
}

type QuoteSnapshot struct {
	Date     string  `json:"date"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjClose"`
}

type LegResult struct {
	Ticker  string        `json:"ticker"`
	Start   QuoteSnapshot `json:"start"`
	End     QuoteSnapshot `json:"end"`
	Raw     float64       `json:"raw"`
	Rounded float64       `json:"rounded"`
}

// Result é gravado em jsonb na coluna result
type Result struct {
	A      LegResult `json:"a"`
	B      LegResult `json:"b"`
	Winner string    `json:"winner"` // "A" | "B" | "Tie"
}

// Cursor é a posição do keyset (end_date, id) do sweep
type Cursor struct {
	EndDate string // YYYY-MM-DD
	ID      string
}

type ListFilter struct {
	Status Status // vazio = todos
	Limit  int
	Offset int
}
