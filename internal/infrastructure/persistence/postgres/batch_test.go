package postgres

import (
	"testing"

	"github.com/runhub/run-community-hub/internal/domain/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateQuery(t *testing.T) {
	t.Run("builds deterministic SET clause", func(t *testing.T) {
		query, args, err := buildUpdateQuery(shared.CollectionRuns, shared.FieldUpdate{
			TargetID: "run-1",
			Fields: map[string]interface{}{
				"points": 110.0,
				"rank":   1,
			},
		})

		require.NoError(t, err)
		assert.Equal(t, "UPDATE runs SET points = $1, rank = $2, updated_at = NOW() WHERE id = $3", query)
		assert.Equal(t, []interface{}{110.0, 1, "run-1"}, args)
	})

	t.Run("nil value clears the field", func(t *testing.T) {
		query, args, err := buildUpdateQuery(shared.CollectionRuns, shared.FieldUpdate{
			TargetID: "run-2",
			Fields: map[string]interface{}{
				"rank": nil,
			},
		})

		require.NoError(t, err)
		assert.Equal(t, "UPDATE runs SET rank = $1, updated_at = NOW() WHERE id = $2", query)
		assert.Nil(t, args[0])
	})

	t.Run("rejects unknown collection", func(t *testing.T) {
		_, _, err := buildUpdateQuery("boards", shared.FieldUpdate{
			TargetID: "x",
			Fields:   map[string]interface{}{"rank": 1},
		})
		assert.Error(t, err)
	})

	t.Run("rejects non-writable field", func(t *testing.T) {
		_, _, err := buildUpdateQuery(shared.CollectionRuns, shared.FieldUpdate{
			TargetID: "run-3",
			Fields:   map[string]interface{}{"verified": true},
		})
		assert.Error(t, err)
	})

	t.Run("rejects empty update", func(t *testing.T) {
		_, _, err := buildUpdateQuery(shared.CollectionRuns, shared.FieldUpdate{TargetID: "run-4"})
		assert.Error(t, err)
	})
}
