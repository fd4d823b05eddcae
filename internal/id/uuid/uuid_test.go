package uuid

import (
	"sort"
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewIDProducesUniqueUUID7(t *testing.T) {
	t.Parallel()

	gen := New()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := gen.NewID()
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true

		parsed, err := goUUID.Parse(id)
		require.NoError(t, err)
		require.Equal(t, goUUID.Version(7), parsed.Version())
	}
}

// Job listings rely on lexicographically ordered IDs instead of a secondary
// sort column, so generation order must be preserved.
func TestNewIDIsTimeOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	ids := make([]string, 50)
	for i := range ids {
		id, err := gen.NewID()
		require.NoError(t, err)
		ids[i] = id
	}
	require.True(t, sort.StringsAreSorted(ids), "ids not in generation order: %v", ids)
}
