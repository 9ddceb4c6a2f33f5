package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollouts.
// Supports percentage rollout, per-account targeting, and time-boxed
// activation for moderation experiments.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	accountOverrides map[string]map[string]bool // accountID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Accounts are assigned based on hash of their ID
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// A/B test variant (for experiments)
	Variants []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	AccountID   string // Player account ID
	IsModerator bool   // Moderators get all features
}

// Predefined feature flag names.
const (
	// === Board Features ===
	FeatureBoardObsoleteRows = "board.obsolete_rows" // Append retired runs below the standings
	FeatureBoardCache        = "board.cache"         // Serve rendered boards from Redis
	FeatureBoardFreshParam   = "board.fresh_param"   // Allow ?fresh=1 cache bypass

	// === Reconciliation Features ===
	FeatureReconcileDeleteRecompute = "reconcile.delete_recompute" // Rebuild owner totals on hard delete
	FeatureReconcileEventBus        = "reconcile.event_bus"        // Publish domain events after passes

	// === Linking Features ===
	FeatureLinkClaims    = "link.claims"     // Player-initiated run claims
	FeatureLinkAutolink  = "link.autolink"   // Name-based run attribution sweeps
	FeatureLinkNameCache = "link.name_cache" // Cache name lookups (including misses)

	// === Import Features ===
	FeatureImportScheduled = "import.scheduled" // Periodic incremental import
	FeatureImportBackfill  = "import.backfill"  // Scheduled full-corpus backfill

	// === Experimental Features ===
	FeatureExperimentalAnalytics = "experimental.analytics" // Advanced analytics dashboard
	FeatureExperimentalWebhooks  = "experimental.webhooks"  // Real-time webhook updates
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		accountOverrides: make(map[string]map[string]bool),
	}

	// Initialize all features with defaults
	ff.initializeDefaults()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	// Board features - enabled by default
	ff.features[FeatureBoardObsoleteRows] = &Feature{
		Name:           FeatureBoardObsoleteRows,
		Description:    "Append retired runs below the ranked standings",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureBoardCache] = &Feature{
		Name:           FeatureBoardCache,
		Description:    "Serve rendered boards from the Redis cache",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureBoardFreshParam] = &Feature{
		Name:           FeatureBoardFreshParam,
		Description:    "Allow clients to bypass the board cache",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Reconciliation features
	ff.features[FeatureReconcileDeleteRecompute] = &Feature{
		Name:           FeatureReconcileDeleteRecompute,
		Description:    "Rebuild owner totals when a run is hard-deleted",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureReconcileEventBus] = &Feature{
		Name:           FeatureReconcileEventBus,
		Description:    "Publish domain events after reconciliation passes",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Linking features
	ff.features[FeatureLinkClaims] = &Feature{
		Name:           FeatureLinkClaims,
		Description:    "Player-initiated run claims",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLinkAutolink] = &Feature{
		Name:           FeatureLinkAutolink,
		Description:    "Name-based attribution sweeps for new accounts",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLinkNameCache] = &Feature{
		Name:           FeatureLinkNameCache,
		Description:    "Cache display-name lookups, including misses",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Import features
	ff.features[FeatureImportScheduled] = &Feature{
		Name:           FeatureImportScheduled,
		Description:    "Periodic incremental import from the results pipeline",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureImportBackfill] = &Feature{
		Name:           FeatureImportBackfill,
		Description:    "Scheduled full-corpus backfill",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Experimental features - disabled by default
	ff.features[FeatureExperimentalAnalytics] = &Feature{
		Name:           FeatureExperimentalAnalytics,
		Description:    "Advanced analytics dashboard",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureExperimentalWebhooks] = &Feature{
		Name:           FeatureExperimentalWebhooks,
		Description:    "Real-time webhook updates",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_LINK_AUTOLINK=true
// Example: FEATURE_BOARD_CACHE=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "link.autolink" -> "FEATURE_LINK_AUTOLINK"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check account overrides first
	if ctx != nil && ctx.AccountID != "" {
		if overrides, ok := ff.accountOverrides[ctx.AccountID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Moderators get all features
	if ctx != nil && ctx.IsModerator {
		return true
	}

	// Check if feature is enabled at all
	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.AccountID != "" {
		return ff.isInRollout(ctx.AccountID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if an account is in the rollout percentage.
// Uses consistent hashing so accounts stay in their bucket.
func (ff *FeatureFlags) isInRollout(accountID, featureName string, percent int) bool {
	// Create a consistent hash for this account+feature combination
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(accountID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// GetVariant returns the A/B test variant for an account.
// Returns empty string if no variants defined or feature disabled.
func (ff *FeatureFlags) GetVariant(featureName string, ctx *FeatureContext) string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || !ff.IsEnabled(featureName, ctx) {
		return ""
	}

	if len(feature.Variants) == 0 {
		return ""
	}

	// Use consistent hashing to assign variant
	h := fnv.New32a()
	h.Write([]byte(featureName + "_variant"))
	h.Write([]byte(ctx.AccountID))
	hash := h.Sum32()

	variantIndex := int(hash % uint32(len(feature.Variants)))
	return feature.Variants[variantIndex]
}

// SetAccountOverride sets a feature override for a specific account.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetAccountOverride(accountID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.accountOverrides[accountID]; !ok {
		ff.accountOverrides[accountID] = make(map[string]bool)
	}
	ff.accountOverrides[accountID][featureName] = enabled
}

// ClearAccountOverrides removes all overrides for an account.
func (ff *FeatureFlags) ClearAccountOverrides(accountID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.accountOverrides, accountID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		// Return a copy
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
