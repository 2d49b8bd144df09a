// Package state persists optimization profiles.
package state

import (
	"context"

	"client-optimizer/pkg/profile"
)

// ProfileStore holds one profile per subject.
//
// Settings, device info and metrics are last-writer-wins. History only grows
// through AppendHistory and LastOptimizationCheck never moves backwards.
type ProfileStore interface {
	// Get returns a private copy of the profile or a NotFound error.
	Get(ctx context.Context, subjectID string) (*profile.OptimizationProfile, error)

	// Insert stores a new profile, history included. It returns a Conflict
	// error when the subject already has one.
	Insert(ctx context.Context, p *profile.OptimizationProfile) error

	// Update overwrites the mutable fields of an existing profile. History and
	// feedback are left untouched.
	Update(ctx context.Context, p *profile.OptimizationProfile) error

	// AppendHistory appends entries to the subject's history.
	AppendHistory(ctx context.Context, subjectID string, entries ...profile.HistoryEntry) error

	// UpdateWithHistory performs Update and AppendHistory as a single write:
	// either the settings and the entries are both stored or neither is.
	UpdateWithHistory(ctx context.Context, p *profile.OptimizationProfile, entries ...profile.HistoryEntry) error

	// SaveFeedback stores the latest ratings and appends comment when non-nil.
	SaveFeedback(ctx context.Context, subjectID string, fb profile.Feedback, comment *profile.FeedbackComment) error

	// ForEach calls fn with a copy of every profile. Iteration stops at the
	// first error returned by fn.
	ForEach(ctx context.Context, fn func(*profile.OptimizationProfile) error) error

	// Count returns the number of stored profiles.
	Count(ctx context.Context) (int, error)

	Close(ctx context.Context) error
}

// applyUpdate copies the last-writer-wins fields of src into dst.
func applyUpdate(dst, src *profile.OptimizationProfile) {
	dst.DeviceInfo = src.DeviceInfo
	dst.PerformanceSettings = src.PerformanceSettings
	dst.UXSettings = src.UXSettings
	dst.PerformanceMetrics = src.PerformanceMetrics.Clone()
	dst.AdaptiveBehavior = src.AdaptiveBehavior
	dst.MobileFeatures = src.MobileFeatures
	dst.MarkChecked(src.LastOptimizationCheck)
	if src.UpdatedAt.After(dst.UpdatedAt) {
		dst.UpdatedAt = src.UpdatedAt
	}
}

func appendHistory(dst *profile.OptimizationProfile, entries []profile.HistoryEntry) {
	for _, e := range entries {
		e.Actions = append([]string(nil), e.Actions...)
		dst.OptimizationHistory = append(dst.OptimizationHistory, e)
	}
}

// applyFeedback stores ratings and appends the optional comment.
func applyFeedback(dst *profile.OptimizationProfile, fb profile.Feedback, comment *profile.FeedbackComment) {
	comments := dst.Feedback.Comments
	dst.Feedback = fb
	dst.Feedback.Comments = comments
	if comment != nil {
		dst.Feedback.Comments = append(dst.Feedback.Comments, *comment)
	}
}
