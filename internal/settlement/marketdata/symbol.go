package marketdata

import (
	"errors"
	"regexp"
	"strings"

	"github.com/radieske/stock-bet-settlement/internal/settlement/failure"
)

var (
	ErrEmptySymbol   = errors.New("ticker cannot be empty")
	ErrInvalidSymbol = errors.New("ticker must contain only letters, numbers, dots, or hyphens")
)

var validSymbol = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// aliases mapeia classes de ação e nomes ambíguos para o símbolo do provedor
var aliases = map[string]string{
	"BRK.B":  "BRK-B",
	"BRK-B":  "BRK-B",
	"BRK.A":  "BRK-A",
	"BRK-A":  "BRK-A",
	"BF.B":   "BF-B",
	"BF-B":   "BF-B",
	"GOOG":   "GOOG",
	"GOOGL":  "GOOGL",
	"GOOGLE": "GOOGL",
}

var whitespace = regexp.MustCompile(`\s+`)
var repeatedHyphens = regexp.MustCompile(`-+`)

// NormalizeSymbol converte a entrada do usuário no símbolo aceito pelo provedor.
// Símbolo inválido é falha permanente (KindSymbolNotFound).
func NormalizeSymbol(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", failure.Wrap(failure.KindSymbolNotFound, "normalize symbol", ErrEmptySymbol)
	}

	compact := whitespace.ReplaceAllString(strings.ToUpper(trimmed), "")
	if !validSymbol.MatchString(compact) {
		return "", failure.Wrap(failure.KindSymbolNotFound, "normalize symbol "+compact, ErrInvalidSymbol)
	}

	if alias, ok := aliases[compact]; ok {
		return alias, nil
	}

	dotted := repeatedHyphens.ReplaceAllString(strings.ReplaceAll(compact, ".", "-"), "-")
	if alias, ok := aliases[dotted]; ok {
		return alias, nil
	}
	return dotted, nil
}
