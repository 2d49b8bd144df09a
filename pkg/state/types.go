package state

import (
	"time"

	"client-optimizer/pkg/profile"
)

// DefaultStateVersion is the schema version written by FileStore.
const DefaultStateVersion = "1.0"

// ProfileState is the on-disk document of a FileStore.
type ProfileState struct {
	// Profiles keyed by subject ID
	Profiles map[string]*profile.OptimizationProfile `json:"profiles"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version tracks the state schema version for compatibility
	Version string `json:"version"`
}

// StateValidationResult reports integrity issues found in a loaded state.
type StateValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`

	// MismatchedKeys are map keys that differ from the profile's subject ID
	MismatchedKeys []string `json:"mismatched_keys,omitempty"`

	// UnorderedHistory lists subjects whose history timestamps go backwards
	UnorderedHistory []string `json:"unordered_history,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}
