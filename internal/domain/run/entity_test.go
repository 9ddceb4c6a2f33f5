package run

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

func validRun() *Run {
	return &Run{
		ID:               "550e8400-e29b-41d4-a716-446655440000",
		Owner:            ImportedOwner(),
		OwnerDisplayName: "SpeedyGonzales",
		BoardKind:        BoardRegular,
		CategoryRef:      "cat-anypercent",
		PlatformRef:      "plat-pc",
		Mode:             ModeSolo,
		Time:             "01:02:03",
		Verified:         true,
	}
}

func TestRunNormalizeDefaults(t *testing.T) {
	r := validRun()
	r.BoardKind = ""
	r.Mode = ""
	r.Time = "1:02:03"
	r.OwnerDisplayName = "  SpeedyGonzales  "
	r.CoOwnerDisplayName = "ShouldBeCleared"

	err := r.Normalize()

	assert.NoError(t, err)
	assert.Equal(t, BoardRegular, r.BoardKind)
	assert.Equal(t, ModeSolo, r.Mode)
	assert.Equal(t, "01:02:03", r.Time)
	assert.Equal(t, "SpeedyGonzales", r.OwnerDisplayName)
	assert.Empty(t, r.CoOwnerDisplayName, "solo runs must not carry a secondary slot")
}

func TestRunNormalizeCoOpKeepsSecondary(t *testing.T) {
	r := validRun()
	r.Mode = ModeCoOp
	r.CoOwnerDisplayName = "  PartnerName "

	err := r.Normalize()

	assert.NoError(t, err)
	assert.Equal(t, "PartnerName", r.CoOwnerDisplayName)
}

func TestRunNormalizeInvalidTime(t *testing.T) {
	r := validRun()
	r.Time = "not-a-time"

	err := r.Normalize()

	assert.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestRunValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Run)
		wantErr bool
	}{
		{"valid run", func(r *Run) {}, false},
		{"missing id", func(r *Run) { r.ID = "" }, true},
		{"bad board kind", func(r *Run) { r.BoardKind = "arcade" }, true},
		{"bad mode", func(r *Run) { r.Mode = "trio" }, true},
		{"level board without level", func(r *Run) { r.BoardKind = BoardIndividualLevel }, true},
		{"level board with level", func(r *Run) {
			r.BoardKind = BoardIndividualLevel
			r.LevelRef = "lvl-1"
		}, false},
		{"no category at all", func(r *Run) {
			r.CategoryRef = ""
			r.CategoryName = ""
		}, true},
		{"fallback category name only", func(r *Run) {
			r.CategoryRef = ""
			r.CategoryName = "Any%"
		}, false},
		{"bad time", func(r *Run) { r.Time = "99:99" }, true},
		{"rank above ceiling", func(r *Run) { r.Rank = RankCeiling + 1 }, true},
		{"rank at ceiling", func(r *Run) { r.Rank = RankCeiling }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRun()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunRankEligible(t *testing.T) {
	r := validRun()
	assert.True(t, r.RankEligible())

	r.Obsolete = true
	assert.False(t, r.RankEligible(), "obsolete runs drop out of ranking")

	r.Obsolete = false
	r.Verified = false
	assert.False(t, r.RankEligible(), "unverified runs never rank")
}

func TestRunAttributedTo(t *testing.T) {
	const accountID = "550e8400-e29b-41d4-a716-446655440000"
	const otherID = "660e8400-e29b-41d4-a716-446655440000"
	name, _ := shared.NewDisplayName("SpeedyGonzales")

	t.Run("linked primary ownership wins", func(t *testing.T) {
		r := validRun()
		r.Owner = RealOwner(accountID)
		r.OwnerDisplayName = "SomeOldName"
		assert.True(t, r.AttributedTo(accountID, name))
	})

	t.Run("primary name match while unlinked", func(t *testing.T) {
		r := validRun()
		r.Owner = ImportedOwner()
		r.OwnerDisplayName = "speedygonzales"
		assert.True(t, r.AttributedTo(accountID, name))
	})

	t.Run("linked to someone else blocks primary name match", func(t *testing.T) {
		r := validRun()
		r.Owner = RealOwner(otherID)
		r.OwnerDisplayName = "SpeedyGonzales"
		assert.False(t, r.AttributedTo(accountID, name))
	})

	t.Run("co-op secondary slot attributes even when linked elsewhere", func(t *testing.T) {
		r := validRun()
		r.Owner = RealOwner(otherID)
		r.OwnerDisplayName = "PartnerName"
		r.Mode = ModeCoOp
		r.CoOwnerDisplayName = "SpeedyGonzales"
		assert.True(t, r.AttributedTo(accountID, name))
	})

	t.Run("no match at all", func(t *testing.T) {
		r := validRun()
		r.OwnerDisplayName = "SomebodyElse"
		assert.False(t, r.AttributedTo(accountID, name))
	})
}

func TestGroupKeyRoundTrip(t *testing.T) {
	r := validRun()
	r.BoardKind = BoardIndividualLevel
	r.LevelRef = "lvl-3"

	key := r.GroupKey()
	assert.NoError(t, key.Validate())

	parsed, err := ParseGroupKey(key.String())
	assert.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func TestGroupKeyValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     GroupKey
		wantErr bool
	}{
		{"regular solo", GroupKey{BoardKind: BoardRegular, CategoryRef: "c", PlatformRef: "p", Mode: ModeSolo}, false},
		{"level board missing level", GroupKey{BoardKind: BoardCommunityGolds, CategoryRef: "c", Mode: ModeSolo}, true},
		{"empty category ref is its own cohort", GroupKey{BoardKind: BoardRegular, PlatformRef: "p", Mode: ModeSolo}, false},
		{"bad kind", GroupKey{BoardKind: "arcade", CategoryRef: "c", Mode: ModeSolo}, true},
		{"bad mode", GroupKey{BoardKind: BoardRegular, CategoryRef: "c", Mode: "trio"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseGroupKeyMalformed(t *testing.T) {
	_, err := ParseGroupKey("only|three|parts")
	assert.Error(t, err)
}

func TestRunClone(t *testing.T) {
	r := validRun()
	clone := r.Clone()
	clone.Time = "00:10:00"
	clone.Rank = 1

	assert.Equal(t, "01:02:03", r.Time)
	assert.Zero(t, r.Rank)
}
