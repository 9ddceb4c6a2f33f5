// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// PlayerID represents a unique player account identifier (UUID format).
type PlayerID string

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the player ID is a valid UUID.
func (p PlayerID) IsValid() bool {
	return uuidRegex.MatchString(string(p))
}

// String returns the string representation.
func (p PlayerID) String() string {
	return string(p)
}

// IsEmpty checks if the ID is empty.
func (p PlayerID) IsEmpty() bool {
	return p == ""
}

// NewPlayerID creates a new PlayerID with validation.
func NewPlayerID(id string) (PlayerID, error) {
	pid := PlayerID(strings.ToLower(strings.TrimSpace(id)))
	if !pid.IsValid() {
		return "", NewDomainError("shared", "NewPlayerID", ErrInvalidID, "invalid player ID format")
	}
	return pid, nil
}

// RunID represents a unique run identifier (store-assigned, UUID format).
type RunID string

// IsValid checks if the run ID is a valid UUID.
func (r RunID) IsValid() bool {
	return uuidRegex.MatchString(string(r))
}

// String returns the string representation.
func (r RunID) String() string {
	return string(r)
}

// IsEmpty checks if the ID is empty.
func (r RunID) IsEmpty() bool {
	return r == ""
}

// NewRunID creates a new RunID with validation.
func NewRunID(id string) (RunID, error) {
	rid := RunID(strings.ToLower(strings.TrimSpace(id)))
	if !rid.IsValid() {
		return "", NewDomainError("shared", "NewRunID", ErrInvalidID, "invalid run ID format")
	}
	return rid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Display Name Value Object
// ═══════════════════════════════════════════════════════════════════════════

// DisplayName represents a player's public name. Runs imported from the
// external results pipeline are attributed by display name alone, so the
// normalized form of this value is the linking key of the whole system.
type DisplayName string

const (
	// MinDisplayNameLen is the minimum length of a display name.
	MinDisplayNameLen = 1
	// MaxDisplayNameLen is the maximum length of a display name.
	MaxDisplayNameLen = 64
)

// IsValid checks if the display name is non-empty and within bounds.
func (d DisplayName) IsValid() bool {
	trimmed := strings.TrimSpace(string(d))
	return len(trimmed) >= MinDisplayNameLen && len(trimmed) <= MaxDisplayNameLen
}

// String returns the raw string representation.
func (d DisplayName) String() string {
	return string(d)
}

// Normalized returns the canonical matching key: trimmed and lowercased.
// Two names attribute to the same player iff their normalized forms are equal.
func (d DisplayName) Normalized() string {
	return strings.ToLower(strings.TrimSpace(string(d)))
}

// Matches reports whether two display names refer to the same player.
func (d DisplayName) Matches(other DisplayName) bool {
	return d.Normalized() != "" && d.Normalized() == other.Normalized()
}

// NewDisplayName creates a DisplayName with validation, preserving the
// original casing (only surrounding whitespace is stripped).
func NewDisplayName(name string) (DisplayName, error) {
	d := DisplayName(strings.TrimSpace(name))
	if !d.IsValid() {
		return "", NewDomainError("shared", "NewDisplayName", ErrEmptyValue,
			fmt.Sprintf("display name must be %d-%d characters", MinDisplayNameLen, MaxDisplayNameLen))
	}
	return d, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Points Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Points represents leaderboard points awarded for a run. The value comes
// from the external points formula and is trusted verbatim; for co-op runs
// it is already pre-split per owner.
type Points float64

// IsValid checks that points are non-negative.
func (p Points) IsValid() bool {
	return p >= 0
}

// Float64 returns the underlying float64 value.
func (p Points) Float64() float64 {
	return float64(p)
}

// Add returns the sum of two point values.
func (p Points) Add(other Points) Points {
	return p + other
}

// String returns a fixed two-decimal representation for logging.
func (p Points) String() string {
	return fmt.Sprintf("%.2f", float64(p))
}
