package state

import (
	"context"
	"sort"
	"sync"

	engerrors "client-optimizer/pkg/errors"
	"client-optimizer/pkg/profile"
)

// MemoryStore keeps profiles in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*profile.OptimizationProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*profile.OptimizationProfile)}
}

func (s *MemoryStore) Get(ctx context.Context, subjectID string) (*profile.OptimizationProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[subjectID]
	if !ok {
		return nil, engerrors.NotFound("get_profile", subjectID)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Insert(ctx context.Context, p *profile.OptimizationProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.SubjectID]; ok {
		return engerrors.Conflict("insert_profile", p.SubjectID)
	}
	s.profiles[p.SubjectID] = p.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, p *profile.OptimizationProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.profiles[p.SubjectID]
	if !ok {
		return engerrors.NotFound("update_profile", p.SubjectID)
	}
	applyUpdate(cur, p)
	return nil
}

func (s *MemoryStore) AppendHistory(ctx context.Context, subjectID string, entries ...profile.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.profiles[subjectID]
	if !ok {
		return engerrors.NotFound("append_history", subjectID)
	}
	appendHistory(cur, entries)
	return nil
}

func (s *MemoryStore) UpdateWithHistory(ctx context.Context, p *profile.OptimizationProfile, entries ...profile.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.profiles[p.SubjectID]
	if !ok {
		return engerrors.NotFound("update_profile", p.SubjectID)
	}
	applyUpdate(cur, p)
	appendHistory(cur, entries)
	return nil
}

func (s *MemoryStore) SaveFeedback(ctx context.Context, subjectID string, fb profile.Feedback, comment *profile.FeedbackComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.profiles[subjectID]
	if !ok {
		return engerrors.NotFound("save_feedback", subjectID)
	}
	applyFeedback(cur, fb, comment)
	return nil
}

// ForEach visits profiles in subject order.
func (s *MemoryStore) ForEach(ctx context.Context, fn func(*profile.OptimizationProfile) error) error {
	s.mu.RLock()
	snapshot := make([]*profile.OptimizationProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		snapshot = append(snapshot, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].SubjectID < snapshot[j].SubjectID })
	for _, p := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles), nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// snapshot returns deep copies of every profile keyed by subject.
func (s *MemoryStore) snapshot() map[string]*profile.OptimizationProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*profile.OptimizationProfile, len(s.profiles))
	for id, p := range s.profiles {
		out[id] = p.Clone()
	}
	return out
}

// replace swaps the whole profile set.
func (s *MemoryStore) replace(profiles map[string]*profile.OptimizationProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = profiles
}
