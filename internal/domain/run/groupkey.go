package run

import (
	"fmt"
	"strings"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP KEY
// ══════════════════════════════════════════════════════════════════════════════

// GroupKey is the tuple identifying a ranking cohort: all runs sharing a
// group key compete against each other and nothing else.
type GroupKey struct {
	BoardKind   BoardKind
	LevelRef    string
	CategoryRef string
	PlatformRef string
	Mode        Mode
}

// Validate checks the key's invariants. An empty CategoryRef is a valid
// cohort of its own: imported runs may carry only a fallback category
// name, and all such runs in the same board/level/platform/mode slot
// compete against each other.
func (k GroupKey) Validate() error {
	if !k.BoardKind.IsValid() {
		return shared.ErrInvalidBoardKind
	}
	if !k.Mode.IsValid() {
		return shared.ErrInvalidRunMode
	}
	if k.BoardKind.RequiresLevel() && k.LevelRef == "" {
		return shared.ErrMissingLevel
	}
	return nil
}

// String renders the key as a stable, comparable identifier. Used as the
// cache key and as the map key when grouping runs during backfill.
func (k GroupKey) String() string {
	return strings.Join([]string{
		string(k.BoardKind),
		k.LevelRef,
		k.CategoryRef,
		k.PlatformRef,
		string(k.Mode),
	}, "|")
}

// ParseGroupKey parses a key previously rendered with String.
func ParseGroupKey(s string) (GroupKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 5 {
		return GroupKey{}, shared.WrapError("run", "ParseGroupKey", shared.ErrInvalidFormat,
			fmt.Sprintf("malformed group key %q", s), nil)
	}
	key := GroupKey{
		BoardKind:   BoardKind(parts[0]),
		LevelRef:    parts[1],
		CategoryRef: parts[2],
		PlatformRef: parts[3],
		Mode:        Mode(parts[4]),
	}
	if err := key.Validate(); err != nil {
		return GroupKey{}, err
	}
	return key, nil
}
