// Package failure define a taxonomia fechada de erros da liquidação.
// O motor decide o próximo estado da aposta pelo Kind, nunca pelo tipo concreto do erro.
package failure

import "errors"

type Kind int

const (
	KindUnknown Kind = iota
	KindNotMatured
	KindTransient
	KindSymbolNotFound
	KindNoData
	KindInvalidPrice
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotMatured:
		return "not_matured"
	case KindTransient:
		return "transient"
	case KindSymbolNotFound:
		return "symbol_not_found"
	case KindNoData:
		return "no_data"
	case KindInvalidPrice:
		return "invalid_price"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Permanent indica falhas que não se resolvem com nova tentativa (aposta vira INVALID)
func (k Kind) Permanent() bool {
	return k == KindSymbolNotFound || k == KindNoData || k == KindInvalidPrice
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf retorna o Kind do primeiro *Error na cadeia, ou KindUnknown
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

func IsPermanent(err error) bool { return KindOf(err).Permanent() }

func IsTransient(err error) bool { return KindOf(err) == KindTransient }
