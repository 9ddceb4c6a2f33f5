// Package registry contains the reference data the boards hang off:
// categories, platforms, and levels. Entries are keyed by opaque refs that
// runs carry; imported runs may reference entries that do not exist locally,
// which is why every lookup is allowed to miss.
package registry

import (
	"context"
	"strings"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY KINDS
// ══════════════════════════════════════════════════════════════════════════════

// Kind identifies the registry table an entry belongs to.
type Kind string

const (
	KindCategory Kind = "category"
	KindPlatform Kind = "platform"
	KindLevel    Kind = "level"
)

// IsValid checks the kind value.
func (k Kind) IsValid() bool {
	switch k {
	case KindCategory, KindPlatform, KindLevel:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one reference-data row: a category, platform, or level.
type Entry struct {
	// Ref is the opaque identifier runs carry.
	Ref string

	// Kind is the table this entry belongs to.
	Kind Kind

	// Name is the display name shown on boards and fed to the points
	// formula.
	Name string

	// SortOrder controls presentation order within a kind.
	SortOrder int

	// Active entries appear in board listings; retiring an entry hides
	// it without orphaning the runs that reference it.
	Active bool
}

// Validate checks entry invariants.
func (e *Entry) Validate() error {
	if strings.TrimSpace(e.Ref) == "" {
		return shared.NewDomainError("registry", "Validate", shared.ErrInvalidID, "entry ref cannot be empty")
	}
	if !e.Kind.IsValid() {
		return shared.NewDomainError("registry", "Validate", shared.ErrInvalidInput, "invalid entry kind")
	}
	if strings.TrimSpace(e.Name) == "" {
		return shared.NewDomainError("registry", "Validate", shared.ErrEmptyValue, "entry name cannot be empty")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the contract for registry storage.
type Repository interface {
	// Get returns an entry by kind and ref.
	// Returns shared.ErrNotFound when absent.
	Get(ctx context.Context, kind Kind, ref string) (*Entry, error)

	// ListByKind returns all entries of a kind, active first, in sort order.
	ListByKind(ctx context.Context, kind Kind) ([]*Entry, error)

	// Upsert creates or replaces an entry.
	Upsert(ctx context.Context, e *Entry) error

	// Delete removes an entry. Runs referencing it fall back to their
	// carried names.
	Delete(ctx context.Context, kind Kind, ref string) error
}
