package board

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runhub/run-community-hub/internal/domain/run"
)

func TestFallbackNameChain(t *testing.T) {
	assert.Equal(t, "Any%", FallbackName("Any%", "carried"), "registry name wins")
	assert.Equal(t, "carried", FallbackName("", "carried"))
	assert.Equal(t, UnknownName, FallbackName("", ""), "the chain terminates at Unknown, never empty")
}

// A run whose category ref resolves to nothing and which carries no
// fallback name must still hand the formula a usable name.
func TestComputeGroupDerivesWithUnknownNames(t *testing.T) {
	nameless := groupRun("run-1", "00:08:00")
	nameless.CategoryRef = ""
	nameless.CategoryName = ""
	repo := &fakeRunRepo{runs: []*run.Run{nameless}}

	var seen PointsInput
	capture := DeriverFunc(func(_ context.Context, in PointsInput) (float64, error) {
		seen = in
		return 1, nil
	})
	calc := NewCalculator(repo, capture, staticNames{}, 0)

	key := nameless.GroupKey()
	_, err := calc.ComputeGroup(context.Background(), key, nil)

	assert.NoError(t, err)
	assert.Equal(t, UnknownName, seen.CategoryName)
	assert.Equal(t, UnknownName, seen.PlatformName)
}
