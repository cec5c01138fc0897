package dto

type CheckRequest struct {
	ID string `json:"id"`
}

type CreateBetRequest struct {
	BettorA   string `json:"bettorA"`
	BettorB   string `json:"bettorB"`
	TickerA   string `json:"tickerA"`
	TickerB   string `json:"tickerB"`
	StartDate string `json:"startDate"` // YYYY-MM-DD
	EndDate   string `json:"endDate"`   // YYYY-MM-DD
}
