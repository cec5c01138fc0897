// Package calendar resolve datas de calendário para pregões da bolsa americana (NYSE).
package calendar

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // garante America/New_York mesmo em imagens sem zoneinfo

	"github.com/radieske/stock-bet-settlement/internal/settlement/failure"
)

const (
	MarketTimezone = "America/New_York"
	DayLayout      = "2006-01-02"

	// limite de passos na busca por pregão; estourar indica bug de dados/config
	maxSteps = 366

	// fechamento regular às 16:00 ET, mais a tolerância até o provedor publicar o close oficial
	closeHour  = 16
	CloseGrace = 15 * time.Minute
)

type Direction int

const (
	Next Direction = iota
	Prev
)

func (d Direction) String() string {
	if d == Prev {
		return "prev"
	}
	return "next"
}

// Calendar guarda o fuso do mercado e o cache de feriados por ano.
// Seguro para uso concorrente; criar um por processo e compartilhar.
type Calendar struct {
	loc *time.Location

	mu       sync.RWMutex
	holidays map[int]map[string]struct{}
}

func New() (*Calendar, error) {
	loc, err := time.LoadLocation(MarketTimezone)
	if err != nil {
		return nil, fmt.Errorf("load market timezone: %w", err)
	}
	return NewWithLocation(loc), nil
}

func NewWithLocation(loc *time.Location) *Calendar {
	return &Calendar{
		loc:      loc,
		holidays: make(map[int]map[string]struct{}),
	}
}

func (c *Calendar) Location() *time.Location { return c.loc }

// Day ancora a data de calendário carregada por t (ano/mês/dia no próprio fuso de t)
// à meia-noite do fuso do mercado. Usado para datas sem hora (start/end da aposta).
func (c *Calendar) Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// Today converte um instante para o dia corrente no fuso do mercado.
func (c *Calendar) Today(now time.Time) time.Time {
	return c.Day(now.In(c.loc))
}

// DayKey formata a data no padrão YYYY-MM-DD
func (c *Calendar) DayKey(t time.Time) string {
	return c.Day(t).Format(DayLayout)
}

// ParseDay interpreta YYYY-MM-DD como dia no fuso do mercado
func (c *Calendar) ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, c.loc)
}

func (c *Calendar) IsTradingDay(t time.Time) bool {
	day := c.Day(t)
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.Holidays(day.Year())[day.Format(DayLayout)]
	return !holiday
}

// ResolveToTradingDay caminha dia a dia na direção pedida até achar um pregão.
// A própria data conta se já for pregão.
func (c *Calendar) ResolveToTradingDay(t time.Time, dir Direction) (time.Time, error) {
	step := 1
	if dir == Prev {
		step = -1
	}

	day := c.Day(t)
	for i := 0; i <= maxSteps; i++ {
		if c.IsTradingDay(day) {
			return day, nil
		}
		day = day.AddDate(0, 0, step)
	}

	return time.Time{}, failure.New(failure.KindFatal,
		fmt.Sprintf("no trading day within %d days %s of %s", maxSteps, dir, c.DayKey(t)))
}

// LatestTradingDay é o pregão mais recente em relação a now (inclusive o dia de hoje)
func (c *Calendar) LatestTradingDay(now time.Time) (time.Time, error) {
	return c.ResolveToTradingDay(c.Today(now), Prev)
}

// SessionClose é o instante a partir do qual o fechamento de day é considerado publicado
func (c *Calendar) SessionClose(day time.Time) time.Time {
	d := c.Day(day)
	return time.Date(d.Year(), d.Month(), d.Day(), closeHour, 0, 0, 0, c.loc).Add(CloseGrace)
}

// SessionClosed diz se o pregão de day já fechou em now.
// Antes disso a barra do dia no provedor é parcial (preço corrente, não o fechamento).
func (c *Calendar) SessionClosed(day, now time.Time) bool {
	return !now.Before(c.SessionClose(day))
}

// Holidays retorna o conjunto de feriados do ano (chave YYYY-MM-DD), calculado uma única vez.
func (c *Calendar) Holidays(year int) map[string]struct{} {
	c.mu.RLock()
	set, ok := c.holidays[year]
	c.mu.RUnlock()
	if ok {
		return set
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok = c.holidays[year]; ok {
		return set
	}
	set = make(map[string]struct{})
	for _, d := range c.computeHolidays(year) {
		set[d.Format(DayLayout)] = struct{}{}
	}
	c.holidays[year] = set
	return set
}

func (c *Calendar) computeHolidays(year int) []time.Time {
	date := func(m time.Month, d int) time.Time { return time.Date(year, m, d, 0, 0, 0, 0, c.loc) }

	days := []time.Time{
		observed(date(time.January, 1)),
		nthWeekday(year, time.January, time.Monday, 3, c.loc),
		nthWeekday(year, time.February, time.Monday, 3, c.loc),
		easterSunday(year, c.loc).AddDate(0, 0, -2),
		lastWeekday(year, time.May, time.Monday, c.loc),
		observed(date(time.June, 19)),
		observed(date(time.July, 4)),
		nthWeekday(year, time.September, time.Monday, 1, c.loc),
		nthWeekday(year, time.November, time.Thursday, 4, c.loc),
		observed(date(time.December, 25)),
	}

	// 1º de janeiro do ano seguinte num sábado é observado em 31/12 deste ano
	if next := observed(time.Date(year+1, time.January, 1, 0, 0, 0, 0, c.loc)); next.Year() == year {
		days = append(days, next)
	}

	out := days[:0]
	for _, d := range days {
		if d.Year() == year {
			out = append(out, d)
		}
	}
	return out
}

// observed desloca feriado de data fixa: sábado -> sexta, domingo -> segunda
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// easterSunday usa o algoritmo gregoriano anônimo (Meeus/Jones/Butcher)
func easterSunday(year int, loc *time.Location) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}
