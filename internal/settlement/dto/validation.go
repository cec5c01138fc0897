package dto

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/radieske/stock-bet-settlement/internal/settlement/marketdata"
	"github.com/radieske/stock-bet-settlement/internal/settlement/repo"
)

const (
	dateLayout = "2006-01-02"

	MaxNameLength   = 80
	MaxTickerLength = 16
	MaxRangeDays    = 366
)

var fieldOrder = []string{"bettorA", "bettorB", "tickerA", "tickerB", "startDate", "endDate", "status", "limit", "page"}

// ValidationError agrupa as mensagens por campo do payload
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range fieldOrder {
		if msg, ok := e.Fields[f]; ok {
			parts = append(parts, f+": "+msg)
		}
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}

// Validate normaliza e valida o pedido de criação.
// Retorna *ValidationError com todas as violações encontradas.
func (r CreateBetRequest) Validate() (repo.NewWager, error) {
	fields := map[string]string{}
	var out repo.NewWager

	out.BettorA = validName(fields, "bettorA", "Bettor A", r.BettorA)
	out.BettorB = validName(fields, "bettorB", "Bettor B", r.BettorB)
	out.TickerA = validTicker(fields, "tickerA", r.TickerA)
	out.TickerB = validTicker(fields, "tickerB", r.TickerB)
	out.StartDate = validDate(fields, "startDate", "start date", r.StartDate)
	out.EndDate = validDate(fields, "endDate", "end date", r.EndDate)

	if _, bad := fields["tickerB"]; !bad && out.TickerA != "" && out.TickerA == out.TickerB {
		fields["tickerB"] = "Tickers must be different"
	}

	_, badStart := fields["startDate"]
	_, badEnd := fields["endDate"]
	if !badStart && !badEnd {
		diff := int(out.EndDate.Sub(out.StartDate).Hours() / 24)
		switch {
		case diff <= 0:
			fields["endDate"] = "End date must be after start date"
		case diff > MaxRangeDays:
			fields["endDate"] = "Date range cannot exceed 366 days"
		}
	}

	if len(fields) > 0 {
		return repo.NewWager{}, &ValidationError{Fields: fields}
	}
	return out, nil
}

func validName(fields map[string]string, key, label, v string) string {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		fields[key] = label + " is required"
	case utf8.RuneCountInString(v) > MaxNameLength:
		fields[key] = label + " must be 80 characters or fewer"
	}
	return v
}

func validTicker(fields map[string]string, key, v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		fields[key] = "Ticker is required"
		return ""
	}
	if len(v) > MaxTickerLength {
		fields[key] = "Ticker must be 16 characters or fewer"
		return ""
	}
	sym, err := marketdata.NormalizeSymbol(v)
	if err != nil {
		fields[key] = marketdata.ErrInvalidSymbol.Error()
		if errors.Is(err, marketdata.ErrEmptySymbol) {
			fields[key] = "Ticker is required"
		}
		return ""
	}
	return sym
}

// validDate aceita apenas YYYY-MM-DD; o dia vale como data de calendário (UTC)
func validDate(fields map[string]string, key, label, v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		fields[key] = strings.ToUpper(label[:1]) + label[1:] + " is required"
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		fields[key] = "Invalid " + label
		return time.Time{}
	}
	return t
}

const (
	DefaultListLimit = 10
	MaxListLimit     = 50
)

// ListQuery são os parâmetros de GET /bets já validados
type ListQuery struct {
	Status repo.Status // vazio = todos
	Limit  int
	Page   int
}

func (q ListQuery) Offset() int { return (q.Page - 1) * q.Limit }

// ParseListQuery valida status, limit (1..50, default 10) e page (>= 1, default 1)
func ParseListQuery(status, limit, page string) (ListQuery, error) {
	fields := map[string]string{}
	q := ListQuery{Limit: DefaultListLimit, Page: 1}

	if status != "" {
		q.Status = repo.Status(status)
		if !q.Status.Valid() {
			fields["status"] = "status must be one of OPEN, SETTLED, INVALID"
		}
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > MaxListLimit {
			fields["limit"] = "limit must be an integer between 1 and 50"
		}
		q.Limit = n
	}
	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			fields["page"] = "page must be a positive integer"
		}
		q.Page = n
	}

	if len(fields) > 0 {
		return ListQuery{}, &ValidationError{Fields: fields}
	}
	return q, nil
}
