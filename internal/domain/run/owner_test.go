package run

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

func TestParseOwnerRef(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		wantKind OwnerKind
	}{
		{"empty ref", "", OwnerNone},
		{"whitespace only", "   ", OwnerNone},
		{"imported sentinel", "imported", OwnerImported},
		{"unlinked sentinel", "unlinked_a1b2c3d4e5f60718", OwnerUnlinked},
		{"unclaimed sentinel", "unclaimed_a1b2c3d4e5f60718", OwnerUnclaimed},
		{"real account id", "550e8400-e29b-41d4-a716-446655440000", OwnerReal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner := ParseOwnerRef(tt.ref)
			assert.Equal(t, tt.wantKind, owner.Kind)
		})
	}
}

func TestOwnerRefRoundTrip(t *testing.T) {
	name, err := shared.NewDisplayName("SpeedyGonzales")
	assert.NoError(t, err)

	owners := []Owner{
		NoOwner(),
		ImportedOwner(),
		UnlinkedOwner(name),
		UnclaimedOwner(name),
		RealOwner("550e8400-e29b-41d4-a716-446655440000"),
	}

	for _, owner := range owners {
		parsed := ParseOwnerRef(owner.Ref())
		assert.True(t, owner.Equals(parsed), "round trip changed owner %s", owner)
	}
}

func TestNameHashCaseInsensitive(t *testing.T) {
	a, _ := shared.NewDisplayName("SpeedyGonzales")
	b, _ := shared.NewDisplayName("  speedygonzales ")
	c, _ := shared.NewDisplayName("someone else")

	assert.Equal(t, NameHash(a), NameHash(b), "same normalized name must hash equal")
	assert.NotEqual(t, NameHash(a), NameHash(c))
	assert.Len(t, NameHash(a), 16)
}

func TestUnlinkedAndUnclaimedHashesDiffer(t *testing.T) {
	name, _ := shared.NewDisplayName("SpeedyGonzales")

	unlinked := UnlinkedOwner(name)
	unclaimed := UnclaimedOwner(name)

	// Same hash but distinct stored forms: the prefix carries the state.
	assert.Equal(t, unlinked.Hash, unclaimed.Hash)
	assert.NotEqual(t, unlinked.Ref(), unclaimed.Ref())
}

func TestOwnerIsClaimable(t *testing.T) {
	name, _ := shared.NewDisplayName("SpeedyGonzales")

	assert.True(t, NoOwner().IsClaimable())
	assert.True(t, ImportedOwner().IsClaimable())
	assert.True(t, UnlinkedOwner(name).IsClaimable())
	assert.True(t, UnclaimedOwner(name).IsClaimable())
	assert.False(t, RealOwner("550e8400-e29b-41d4-a716-446655440000").IsClaimable())
}

func TestOwnerIsSentinel(t *testing.T) {
	name, _ := shared.NewDisplayName("SpeedyGonzales")

	assert.False(t, NoOwner().IsSentinel())
	assert.False(t, RealOwner("550e8400-e29b-41d4-a716-446655440000").IsSentinel())
	assert.True(t, ImportedOwner().IsSentinel())
	assert.True(t, UnlinkedOwner(name).IsSentinel())
	assert.True(t, UnclaimedOwner(name).IsSentinel())
}
