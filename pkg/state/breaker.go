package state

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	engerrors "client-optimizer/pkg/errors"
	"client-optimizer/pkg/profile"
)

// BreakerConfig configures the circuit breaker around a store.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	MinRequests      uint32
	FailureThreshold float64
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "profile-store",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		MinRequests:      5,
		FailureThreshold: 0.6,
	}
}

// BreakerStore fails fast while the wrapped store keeps failing. Only
// transient errors count as failures.
type BreakerStore struct {
	next    ProfileStore
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// StateChangeFunc is notified on breaker transitions.
type StateChangeFunc func(name string, from, to gobreaker.State)

func NewBreakerStore(next ProfileStore, cfg BreakerConfig, logger *zap.Logger, onChange StateChangeFunc) *BreakerStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !engerrors.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Profile store circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if onChange != nil {
				onChange(name, from, to)
			}
		},
	}
	return &BreakerStore{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// State returns the current breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerStore) exec(op, subjectID string, fn func() (interface{}, error)) (interface{}, error) {
	v, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, engerrors.TransientStorage(op, subjectID, err)
	}
	return v, err
}

func (b *BreakerStore) Get(ctx context.Context, subjectID string) (*profile.OptimizationProfile, error) {
	v, err := b.exec("get_profile", subjectID, func() (interface{}, error) {
		return b.next.Get(ctx, subjectID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*profile.OptimizationProfile), nil
}

func (b *BreakerStore) Insert(ctx context.Context, p *profile.OptimizationProfile) error {
	_, err := b.exec("insert_profile", p.SubjectID, func() (interface{}, error) {
		return nil, b.next.Insert(ctx, p)
	})
	return err
}

func (b *BreakerStore) Update(ctx context.Context, p *profile.OptimizationProfile) error {
	_, err := b.exec("update_profile", p.SubjectID, func() (interface{}, error) {
		return nil, b.next.Update(ctx, p)
	})
	return err
}

func (b *BreakerStore) AppendHistory(ctx context.Context, subjectID string, entries ...profile.HistoryEntry) error {
	_, err := b.exec("append_history", subjectID, func() (interface{}, error) {
		return nil, b.next.AppendHistory(ctx, subjectID, entries...)
	})
	return err
}

func (b *BreakerStore) UpdateWithHistory(ctx context.Context, p *profile.OptimizationProfile, entries ...profile.HistoryEntry) error {
	_, err := b.exec("update_profile", p.SubjectID, func() (interface{}, error) {
		return nil, b.next.UpdateWithHistory(ctx, p, entries...)
	})
	return err
}

func (b *BreakerStore) SaveFeedback(ctx context.Context, subjectID string, fb profile.Feedback, comment *profile.FeedbackComment) error {
	_, err := b.exec("save_feedback", subjectID, func() (interface{}, error) {
		return nil, b.next.SaveFeedback(ctx, subjectID, fb, comment)
	})
	return err
}

// ForEach is guarded as a whole; errors from fn pass through unchanged.
func (b *BreakerStore) ForEach(ctx context.Context, fn func(*profile.OptimizationProfile) error) error {
	_, err := b.exec("list_profiles", "", func() (interface{}, error) {
		return nil, b.next.ForEach(ctx, fn)
	})
	return err
}

func (b *BreakerStore) Count(ctx context.Context) (int, error) {
	v, err := b.exec("count_profiles", "", func() (interface{}, error) {
		return b.next.Count(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (b *BreakerStore) Close(ctx context.Context) error {
	return b.next.Close(ctx)
}
