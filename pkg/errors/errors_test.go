package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	err := E(KindMissingPath, "shard %s is absent", "shard_0")
	assert.Equal(t, KindMissingPath, KindOf(err))
	assert.Contains(t, err.Error(), "MissingPath")
	assert.Contains(t, err.Error(), "shard_0")

	t.Run("WrapKeepsCause", func(t *testing.T) {
		cause := fmt.Errorf("disk on fire")
		wrapped := Wrap(KindSchemaMismatch, cause, "reading shard")
		assert.Equal(t, KindSchemaMismatch, KindOf(wrapped))
		assert.ErrorContains(t, wrapped, "disk on fire")
		assert.Equal(t, cause, Unwrap(wrapped))
	})

	t.Run("KindSurvivesFmtWrapping", func(t *testing.T) {
		inner := E(KindConfigDrift, "stored config differs")
		outer := fmt.Errorf("setup: %w", inner)
		assert.Equal(t, KindConfigDrift, KindOf(outer))
		assert.True(t, IsKind(outer, KindConfigDrift))
		assert.False(t, IsKind(outer, KindMissingPath))
	})

	t.Run("IsMatchesByKind", func(t *testing.T) {
		a := E(KindOverwriteRefused, "a")
		b := E(KindOverwriteRefused, "b")
		require.True(t, Is(a, b))
		assert.False(t, Is(a, E(KindMissingPath, "c")))
	})

	t.Run("AsExtractsTypedError", func(t *testing.T) {
		outer := fmt.Errorf("setup: %w", E(KindMissingPath, "columns file gone"))
		var typed *Error
		require.True(t, As(outer, &typed))
		assert.Equal(t, KindMissingPath, typed.Kind)
	})

	t.Run("ForeignErrorsAreUnknown", func(t *testing.T) {
		assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("plain")))
	})
}
