package events

import "time"

// Evento emitido pelo motor de liquidação quando uma aposta chega a um estado terminal.
type WagerSettled struct {
	BetID          string    `json:"betId"`
	Status         string    `json:"status"` // "SETTLED" | "INVALID"
	TickerA        string    `json:"tickerA"`
	TickerB        string    `json:"tickerB"`
	Winner         string    `json:"winner,omitempty"` // "A" | "B" | "Tie"
	ReturnA        *float64  `json:"returnA,omitempty"`
	ReturnB        *float64  `json:"returnB,omitempty"`
	SettlementTxID string    `json:"settlementTxId,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Ts             time.Time `json:"ts"`
}
