package trace

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrace(t *testing.T) {
	t.Run("Should round-trip through context", func(t *testing.T) {
		ctx := WithContext(context.Background(), "abc")
		assert.Equal(t, "abc", FromContext(ctx))
		assert.Empty(t, FromContext(context.Background()))
	})

	t.Run("Should ignore an empty id", func(t *testing.T) {
		ctx := context.Background()
		assert.Equal(t, ctx, WithContext(ctx, ""))
	})

	t.Run("Should keep a sane incoming header and replace others", func(t *testing.T) {
		assert.Equal(t, "req-1", FromHeader("req-1"))
		assert.Equal(t, "a.b_c", FromHeader("a.b_c"))
		assert.Len(t, FromHeader(""), 32)
		assert.Len(t, FromHeader(strings.Repeat("x", 65)), 32)
		assert.Len(t, FromHeader("bad id\n"), 32)
	})

	t.Run("Should generate distinct hex ids", func(t *testing.T) {
		a, b := GenerateTraceID(), GenerateTraceID()
		assert.NotEqual(t, a, b)
		assert.NotContains(t, a, "-")
	})
}
