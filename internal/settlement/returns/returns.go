// Package returns calcula o retorno percentual de uma perna da aposta.
package returns

import (
	"fmt"
	"math"

	"github.com/radieske/stock-bet-settlement/internal/settlement/failure"
	"github.com/radieske/stock-bet-settlement/internal/settlement/marketdata"
)

// Precision é o número de casas decimais do retorno truncado
const Precision = 4

var factor = math.Pow10(Precision)

type Return struct {
	Raw     float64
	Rounded float64
}

// Calculate usa o fechamento ajustado: (fim - início) / início.
// Preço inicial ausente, zero ou negativo, ou final ausente/não finito, é KindInvalidPrice.
func Calculate(start, end marketdata.Quote) (Return, error) {
	startPx := start.AdjClose
	endPx := end.AdjClose

	if !finite(startPx) || startPx <= 0 {
		return Return{}, failure.New(failure.KindInvalidPrice,
			fmt.Sprintf("start price %v is not positive, cannot compute return", startPx))
	}
	if !finite(endPx) || endPx <= 0 {
		return Return{}, failure.New(failure.KindInvalidPrice,
			fmt.Sprintf("end price %v is missing or invalid, cannot compute return", endPx))
	}

	raw := (endPx - startPx) / startPx
	return Return{Raw: raw, Rounded: Truncate(raw)}, nil
}

// Truncate corta (sem arredondar) em Precision casas.
// O epsilon absorve o erro de representação (0.29*1e4 = 2899.9999...).
func Truncate(v float64) float64 {
	scaled := v * factor
	scaled = math.Trunc(scaled + math.Copysign(1e-9, scaled))
	return scaled / factor
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
