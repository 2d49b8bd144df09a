package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	engerrors "client-optimizer/pkg/errors"
	"client-optimizer/pkg/profile"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newProfile(id string) *profile.OptimizationProfile {
	p := profile.New(id, base)
	p.OptimizationHistory = append(p.OptimizationHistory,
		profile.NewHistoryEntry(base, "initialize", profile.TriggerInitial, "profile created"))
	return p
}

// storeContract runs the behaviour every ProfileStore must share.
func storeContract(t *testing.T, store ProfileStore) {
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.True(t, engerrors.IsNotFound(err), "expected not found, got %v", err)

	require.NoError(t, store.Insert(ctx, newProfile("user-1")))
	err = store.Insert(ctx, newProfile("user-1"))
	assert.True(t, engerrors.IsConflict(err), "expected conflict, got %v", err)

	p, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, p.OptimizationHistory, 1)

	p.PerformanceSettings.Image.CompressionLevel = profile.CompressionHigh
	p.LastOptimizationCheck = base.Add(time.Hour)
	require.NoError(t, store.Update(ctx, p))

	stale := p.Clone()
	stale.LastOptimizationCheck = base
	stale.OptimizationHistory = nil
	require.NoError(t, store.Update(ctx, stale))

	entry := profile.NewHistoryEntry(base.Add(2*time.Hour), "optimize", profile.TriggerManual, "")
	entry.Actions = []string{"enabled minification"}
	require.NoError(t, store.AppendHistory(ctx, "user-1", entry))

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, profile.CompressionHigh, got.PerformanceSettings.Image.CompressionLevel)
	assert.True(t, got.LastOptimizationCheck.Equal(base.Add(time.Hour)), "last check must not regress")
	require.Len(t, got.OptimizationHistory, 2, "update never rewrites history")
	assert.Equal(t, entry.ID, got.OptimizationHistory[1].ID)

	rating := 4
	require.NoError(t, store.SaveFeedback(ctx, "user-1",
		profile.Feedback{PerformanceRating: &rating, LastSubmittedAt: base},
		&profile.FeedbackComment{Text: "great", SubmittedAt: base}))
	require.NoError(t, store.SaveFeedback(ctx, "user-1",
		profile.Feedback{PerformanceRating: &rating, LastSubmittedAt: base}, nil))

	got, err = store.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got.Feedback.PerformanceRating)
	assert.Equal(t, 4, *got.Feedback.PerformanceRating)
	assert.Len(t, got.Feedback.Comments, 1)

	got.PerformanceSettings.Content.EnableMinification = true
	got.LastOptimizationCheck = base.Add(3 * time.Hour)
	combined := profile.NewHistoryEntry(base.Add(3*time.Hour), "adaptive", profile.TriggerScheduled, "")
	require.NoError(t, store.UpdateWithHistory(ctx, got, combined))

	got, err = store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, got.PerformanceSettings.Content.EnableMinification)
	assert.True(t, got.LastOptimizationCheck.Equal(base.Add(3*time.Hour)))
	require.Len(t, got.OptimizationHistory, 3, "settings and entry land together")
	assert.Equal(t, combined.ID, got.OptimizationHistory[2].ID)
	assert.Len(t, got.Feedback.Comments, 1, "feedback survives a combined write")

	err = store.UpdateWithHistory(ctx, newProfile("missing"), combined)
	assert.True(t, engerrors.IsNotFound(err))
	err = store.AppendHistory(ctx, "missing", entry)
	assert.True(t, engerrors.IsNotFound(err))
	err = store.Update(ctx, newProfile("missing"))
	assert.True(t, engerrors.IsNotFound(err))

	require.NoError(t, store.Insert(ctx, newProfile("user-0")))
	var visited []string
	require.NoError(t, store.ForEach(ctx, func(p *profile.OptimizationProfile) error {
		visited = append(visited, p.SubjectID)
		return nil
	}))
	assert.Equal(t, []string{"user-0", "user-1"}, visited)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Insert(ctx, newProfile("user-1")))

	p, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	p.UXSettings.Readability.DarkMode = true
	p.OptimizationHistory[0].Action = "tampered"

	again, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, again.UXSettings.Readability.DarkMode)
	assert.Equal(t, "initialize", again.OptimizationHistory[0].Action)
}

func TestForEachStopsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Insert(ctx, newProfile("a")))
	require.NoError(t, store.Insert(ctx, newProfile("b")))

	stop := errors.New("stop")
	calls := 0
	err := store.ForEach(ctx, func(*profile.OptimizationProfile) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func fileConfig(compress bool) FileStoreConfig {
	cfg := DefaultFileStoreConfig()
	cfg.EnableCompression = compress
	cfg.AutoSaveInterval = 0
	return cfg
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	store, err := NewFileStore(path, zap.NewNop(), fileConfig(false))
	require.NoError(t, err)
	storeContract(t, store)
	require.NoError(t, store.Close(context.Background()))
}

func TestFileStorePersistsAcrossRestarts(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "gzip"}[compress], func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "profiles.json")

			store, err := NewFileStore(path, zap.NewNop(), fileConfig(compress))
			require.NoError(t, err)
			require.NoError(t, store.Insert(ctx, newProfile("user-1")))
			require.NoError(t, store.AppendHistory(ctx, "user-1",
				profile.NewHistoryEntry(base.Add(time.Hour), "optimize", profile.TriggerScheduled, "")))
			require.NoError(t, store.Close(ctx))

			reopened, err := NewFileStore(path, zap.NewNop(), fileConfig(compress))
			require.NoError(t, err)
			p, err := reopened.Get(ctx, "user-1")
			require.NoError(t, err)
			assert.Len(t, p.OptimizationHistory, 2)
			require.NoError(t, reopened.Close(ctx))
		})
	}
}

func TestFileStoreRecoversFromCorruption(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")

	store, err := NewFileStore(path, zap.NewNop(), fileConfig(false))
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, newProfile("user-1")))
	// The second save backs up the first file.
	require.NoError(t, store.Insert(ctx, newProfile("user-2")))
	require.NoError(t, store.Close(ctx))

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	recovered, err := NewFileStore(path, zap.NewNop(), fileConfig(false))
	require.NoError(t, err)
	_, err = recovered.Get(ctx, "user-1")
	assert.NoError(t, err)
}

func TestFileStoreCorruptionWithoutRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	cfg := fileConfig(false)
	cfg.CorruptionRecovery = false
	_, err := NewFileStore(path, zap.NewNop(), cfg)
	assert.Error(t, err)
}

func TestFileStoreValidation(t *testing.T) {
	st := &ProfileState{
		Version: DefaultStateVersion,
		Profiles: map[string]*profile.OptimizationProfile{
			"wrong-key": newProfile("user-1"),
		},
	}
	result := validateState(st)
	assert.True(t, result.Valid)
	assert.Equal(t, []string{"wrong-key"}, result.MismatchedKeys)
	assert.NotEmpty(t, result.Warnings)

	assert.False(t, validateState(&ProfileState{}).Valid)
}

type failingStore struct {
	*MemoryStore
	err error
}

func (f *failingStore) Get(ctx context.Context, subjectID string) (*profile.OptimizationProfile, error) {
	return nil, f.err
}

func TestBreakerStoreOpensOnTransientFailures(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{MemoryStore: NewMemoryStore(), err: engerrors.TransientStorage("get_profile", "x", errors.New("connection refused"))}

	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 3
	cfg.FailureThreshold = 0.5
	store := NewBreakerStore(inner, cfg, zap.NewNop(), nil)

	for i := 0; i < 3; i++ {
		_, err := store.Get(ctx, "x")
		assert.True(t, engerrors.IsTransient(err))
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())

	_, err := store.Get(ctx, "x")
	assert.True(t, engerrors.IsTransient(err))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestBreakerStoreIgnoresNotFound(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 1
	store := NewBreakerStore(NewMemoryStore(), cfg, zap.NewNop(), nil)

	for i := 0; i < 5; i++ {
		_, err := store.Get(ctx, "missing")
		assert.True(t, engerrors.IsNotFound(err))
	}
	assert.Equal(t, gobreaker.StateClosed, store.State())
	storeContract(t, NewBreakerStore(NewMemoryStore(), DefaultBreakerConfig(), zap.NewNop(), nil))
}
