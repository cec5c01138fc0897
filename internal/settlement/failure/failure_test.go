package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := fmt.Errorf("leg A: %w", Wrap(KindTransient, "fetch AAPL", base))

	assert.Equal(t, KindTransient, KindOf(wrapped))
	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsPermanent(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, "leg A: fetch AAPL: connection reset", wrapped.Error())

	assert.Equal(t, KindUnknown, KindOf(base))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestPermanentKinds(t *testing.T) {
	for _, k := range []Kind{KindSymbolNotFound, KindNoData, KindInvalidPrice} {
		assert.True(t, k.Permanent(), k.String())
	}
	for _, k := range []Kind{KindUnknown, KindNotMatured, KindTransient, KindFatal} {
		assert.False(t, k.Permanent(), k.String())
	}
	assert.Equal(t, "symbol_not_found", KindSymbolNotFound.String())
}
