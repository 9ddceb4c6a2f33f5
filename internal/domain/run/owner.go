// Package run contains the domain model for timed runs: the run entity,
// its ownership states, and its comparison-group identity.
package run

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/runhub/run-community-hub/internal/domain/shared"

	"golang.org/x/crypto/blake2b"
)

// ══════════════════════════════════════════════════════════════════════════════
// OWNERSHIP STATES
// ══════════════════════════════════════════════════════════════════════════════

// OwnerKind enumerates the ownership states a run can be in. Runs arrive from
// the import pipeline without an account; attribution then moves through
// provisional sentinel states until a real account claims the run. This is a
// sum type: every place that inspects ownership switches on Kind instead of
// sniffing string prefixes.
type OwnerKind int

const (
	// OwnerNone means the run has no ownership information at all.
	OwnerNone OwnerKind = iota

	// OwnerReal means the run is linked to a concrete player account.
	OwnerReal

	// OwnerUnlinked is a provisional state: a display name was attributed
	// but no account has claimed it yet.
	OwnerUnlinked

	// OwnerUnclaimed is a provisional state assigned by moderators when a
	// submission's owner is known by name but has no account.
	OwnerUnclaimed

	// OwnerImported marks runs delivered by the external results pipeline
	// with no attribution beyond the display name.
	OwnerImported
)

// String returns the kind name for logging.
func (k OwnerKind) String() string {
	switch k {
	case OwnerReal:
		return "real"
	case OwnerUnlinked:
		return "unlinked"
	case OwnerUnclaimed:
		return "unclaimed"
	case OwnerImported:
		return "imported"
	default:
		return "none"
	}
}

// Sentinel reference constants and prefixes as persisted in the store.
const (
	importedRef     = "imported"
	unlinkedPrefix  = "unlinked_"
	unclaimedPrefix = "unclaimed_"
)

// Owner is the parsed form of a run's ownerRef field.
type Owner struct {
	// Kind is the ownership state.
	Kind OwnerKind

	// ID is the player account id. Set only when Kind == OwnerReal.
	ID string

	// Hash is the name-derived sentinel hash. Set for OwnerUnlinked and
	// OwnerUnclaimed.
	Hash string
}

// NoOwner returns the empty ownership state.
func NoOwner() Owner {
	return Owner{Kind: OwnerNone}
}

// RealOwner returns ownership by a concrete account.
func RealOwner(accountID string) Owner {
	return Owner{Kind: OwnerReal, ID: accountID}
}

// ImportedOwner returns the unattributed import sentinel.
func ImportedOwner() Owner {
	return Owner{Kind: OwnerImported}
}

// UnlinkedOwner returns the provisional unlinked sentinel for a display name.
func UnlinkedOwner(displayName shared.DisplayName) Owner {
	return Owner{Kind: OwnerUnlinked, Hash: NameHash(displayName)}
}

// UnclaimedOwner returns the provisional unclaimed sentinel for a display name.
func UnclaimedOwner(displayName shared.DisplayName) Owner {
	return Owner{Kind: OwnerUnclaimed, Hash: NameHash(displayName)}
}

// NameHash derives the sentinel hash from a normalized display name.
// Two spellings of the same name always produce the same hash.
func NameHash(displayName shared.DisplayName) string {
	sum := blake2b.Sum256([]byte(displayName.Normalized()))
	return hex.EncodeToString(sum[:8])
}

// ParseOwnerRef parses a stored ownerRef value into an Owner.
// Unknown values are treated as real account ids: the store never writes
// sentinel-shaped values for real accounts.
func ParseOwnerRef(ref string) Owner {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return NoOwner()
	case ref == importedRef:
		return ImportedOwner()
	case strings.HasPrefix(ref, unlinkedPrefix):
		return Owner{Kind: OwnerUnlinked, Hash: strings.TrimPrefix(ref, unlinkedPrefix)}
	case strings.HasPrefix(ref, unclaimedPrefix):
		return Owner{Kind: OwnerUnclaimed, Hash: strings.TrimPrefix(ref, unclaimedPrefix)}
	default:
		return RealOwner(ref)
	}
}

// Ref renders the Owner back into its stored ownerRef form.
func (o Owner) Ref() string {
	switch o.Kind {
	case OwnerReal:
		return o.ID
	case OwnerImported:
		return importedRef
	case OwnerUnlinked:
		return unlinkedPrefix + o.Hash
	case OwnerUnclaimed:
		return unclaimedPrefix + o.Hash
	default:
		return ""
	}
}

// IsReal reports whether the run is linked to a concrete account.
func (o Owner) IsReal() bool {
	return o.Kind == OwnerReal
}

// IsClaimable reports whether the run may be (re)attributed to an account.
// A run already linked to a real account is never claimable through this
// path; it requires the name-match rule checked at the claim operation.
func (o Owner) IsClaimable() bool {
	switch o.Kind {
	case OwnerNone, OwnerImported, OwnerUnlinked, OwnerUnclaimed:
		return true
	default:
		return false
	}
}

// IsSentinel reports whether the owner is a placeholder rather than an
// account. Sentinels must never be counted as players when aggregating.
func (o Owner) IsSentinel() bool {
	return o.Kind != OwnerReal && o.Kind != OwnerNone
}

// Equals compares two owners by stored form.
func (o Owner) Equals(other Owner) bool {
	return o.Ref() == other.Ref()
}

// String returns a loggable representation.
func (o Owner) String() string {
	if o.Kind == OwnerReal {
		return fmt.Sprintf("Owner{real:%s}", o.ID)
	}
	return fmt.Sprintf("Owner{%s}", o.Kind)
}
