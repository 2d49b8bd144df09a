package state

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	engerrors "client-optimizer/pkg/errors"
	"client-optimizer/pkg/profile"
)

// FileStore is a MemoryStore persisted to a single JSON document.
type FileStore struct {
	mem      *MemoryStore
	saveMu   sync.Mutex
	filePath string
	logger   *zap.Logger
	config   FileStoreConfig

	createdAt time.Time
	dirty     atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// FileStoreConfig contains configuration for the file store
type FileStoreConfig struct {
	// EnableCompression enables gzip compression for state files
	EnableCompression bool

	// CreateBackups enables automatic backup creation before saving
	CreateBackups bool

	// MaxBackups is the maximum number of backups to keep
	MaxBackups int

	// SyncWrites persists after every mutation instead of on the auto-save tick
	SyncWrites bool

	// AutoSaveInterval is the interval for saving pending changes
	AutoSaveInterval time.Duration

	// ValidateOnLoad enables state validation when loading from disk
	ValidateOnLoad bool

	// CorruptionRecovery enables automatic recovery from corruption
	CorruptionRecovery bool
}

// DefaultFileStoreConfig returns a default configuration
func DefaultFileStoreConfig() FileStoreConfig {
	return FileStoreConfig{
		EnableCompression:  false,
		CreateBackups:      true,
		MaxBackups:         5,
		SyncWrites:         true,
		AutoSaveInterval:   5 * time.Minute,
		ValidateOnLoad:     true,
		CorruptionRecovery: true,
	}
}

// NewFileStore opens or creates the state file at filePath.
func NewFileStore(filePath string, logger *zap.Logger, config ...FileStoreConfig) (*FileStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if filePath == "" {
		return nil, fmt.Errorf("file path is required")
	}

	cfg := DefaultFileStoreConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	fs := &FileStore{
		mem:       NewMemoryStore(),
		filePath:  filePath,
		logger:    logger,
		config:    cfg,
		createdAt: time.Now(),
		stopCh:    make(chan struct{}),
	}

	if err := fs.Load(); err != nil {
		if !os.IsNotExist(err) {
			if !cfg.CorruptionRecovery {
				return nil, fmt.Errorf("failed to load state: %w", err)
			}
			logger.Warn("State file appears corrupted, attempting recovery",
				zap.String("file", filePath),
				zap.Error(err))
			if recoverErr := fs.recoverFromCorruption(); recoverErr != nil {
				return nil, fmt.Errorf("failed to recover from corruption: %w", recoverErr)
			}
		}
	}

	if cfg.AutoSaveInterval > 0 {
		fs.wg.Add(1)
		go fs.autoSaveWorker()
	}

	logger.Info("File profile store initialized",
		zap.String("file", filePath),
		zap.Bool("compression", cfg.EnableCompression),
		zap.Bool("backups", cfg.CreateBackups),
		zap.Bool("sync_writes", cfg.SyncWrites))

	return fs, nil
}

// Load replaces the in-memory profiles with the file contents.
func (fs *FileStore) Load() error {
	fs.saveMu.Lock()
	defer fs.saveMu.Unlock()

	file, err := os.Open(fs.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	var reader io.Reader = file

	header := make([]byte, 2)
	if _, err := io.ReadFull(file, header); err != nil {
		return fmt.Errorf("failed to read file header: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to reset file position: %w", err)
	}

	// gzip magic number
	if header[0] == 0x1f && header[1] == 0x8b {
		gzipReader, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	var st ProfileState
	if err := json.NewDecoder(reader).Decode(&st); err != nil {
		return fmt.Errorf("failed to decode state: %w", err)
	}

	if fs.config.ValidateOnLoad {
		if result := validateState(&st); !result.Valid || len(result.Warnings) > 0 {
			fs.logger.Warn("Loaded state has validation issues",
				zap.Strings("errors", result.Errors),
				zap.Strings("warnings", result.Warnings))
			fs.autoFixState(&st)
		}
	}

	if st.Profiles == nil {
		st.Profiles = make(map[string]*profile.OptimizationProfile)
	}
	fs.mem.replace(st.Profiles)
	if !st.CreatedAt.IsZero() {
		fs.createdAt = st.CreatedAt
	}

	fs.logger.Info("State loaded successfully",
		zap.String("file", fs.filePath),
		zap.String("version", st.Version),
		zap.Int("profiles", len(st.Profiles)),
		zap.Time("updated", st.UpdatedAt))

	return nil
}

// Save writes all profiles to disk atomically.
func (fs *FileStore) Save() error {
	fs.saveMu.Lock()
	defer fs.saveMu.Unlock()

	fs.dirty.Store(false)
	if err := fs.saveState(); err != nil {
		fs.dirty.Store(true)
		return err
	}
	return nil
}

func (fs *FileStore) saveState() error {
	st := ProfileState{
		Profiles:  fs.mem.snapshot(),
		CreatedAt: fs.createdAt,
		UpdatedAt: time.Now(),
		Version:   DefaultStateVersion,
	}

	if fs.config.CreateBackups {
		if err := fs.createBackup(); err != nil {
			fs.logger.Warn("Failed to create backup", zap.Error(err))
		}
	}

	tempFile := fs.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		file.Close()
		os.Remove(tempFile)
	}()

	var writer io.Writer = file
	var gzipWriter *gzip.Writer
	if fs.config.EnableCompression {
		gzipWriter = gzip.NewWriter(file)
		writer = gzipWriter
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&st); err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tempFile, fs.filePath); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	fs.logger.Debug("State saved successfully",
		zap.String("file", fs.filePath),
		zap.Int("profiles", len(st.Profiles)))
	return nil
}

// persist runs after every successful mutation.
func (fs *FileStore) persist(op, subjectID string) error {
	if !fs.config.SyncWrites {
		fs.dirty.Store(true)
		return nil
	}
	if err := fs.Save(); err != nil {
		return engerrors.TransientStorage(op, subjectID, err)
	}
	return nil
}

func (fs *FileStore) createBackup() error {
	if _, err := os.Stat(fs.filePath); os.IsNotExist(err) {
		return nil
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s.backup.%s", fs.filePath, timestamp)

	if err := copyFile(fs.filePath, backupPath); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	if err := fs.cleanupOldBackups(); err != nil {
		fs.logger.Warn("Failed to cleanup old backups", zap.Error(err))
	}

	fs.logger.Debug("Backup created", zap.String("backup", backupPath))
	return nil
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}
	return destFile.Sync()
}

// cleanupOldBackups keeps the newest MaxBackups files. Backup names sort by time.
func (fs *FileStore) cleanupOldBackups() error {
	if fs.config.MaxBackups <= 0 {
		return nil
	}

	matches, err := filepath.Glob(fs.filePath + ".backup.*")
	if err != nil {
		return err
	}
	if len(matches) <= fs.config.MaxBackups {
		return nil
	}

	for i := 0; i < len(matches)-fs.config.MaxBackups; i++ {
		if err := os.Remove(matches[i]); err != nil {
			fs.logger.Warn("Failed to remove old backup",
				zap.String("file", matches[i]),
				zap.Error(err))
		}
	}
	return nil
}

// recoverFromCorruption tries backups newest first, then starts empty.
func (fs *FileStore) recoverFromCorruption() error {
	backups, err := filepath.Glob(fs.filePath + ".backup.*")
	if err != nil {
		return fmt.Errorf("failed to find backups: %w", err)
	}

	for i := len(backups) - 1; i >= 0; i-- {
		backupPath := backups[i]
		fs.logger.Info("Attempting recovery from backup", zap.String("backup", backupPath))

		if err := copyFile(backupPath, fs.filePath); err != nil {
			fs.logger.Warn("Failed to copy backup", zap.String("backup", backupPath), zap.Error(err))
			continue
		}
		if err := fs.Load(); err != nil {
			fs.logger.Warn("Failed to load from backup", zap.String("backup", backupPath), zap.Error(err))
			continue
		}

		fs.logger.Info("Successfully recovered from backup", zap.String("backup", backupPath))
		return nil
	}

	fs.logger.Warn("No usable backup found, starting with an empty profile set")
	fs.mem.replace(make(map[string]*profile.OptimizationProfile))
	return nil
}

func validateState(st *ProfileState) *StateValidationResult {
	result := &StateValidationResult{
		Valid:     true,
		Errors:    make([]string, 0),
		Warnings:  make([]string, 0),
		CheckedAt: time.Now(),
	}

	if st == nil {
		result.Valid = false
		result.Errors = append(result.Errors, "state is nil")
		return result
	}
	if st.Version == "" {
		result.Valid = false
		result.Errors = append(result.Errors, "state version is empty")
	}
	if st.Profiles == nil {
		result.Valid = false
		result.Errors = append(result.Errors, "profiles map is nil")
	}

	for id, p := range st.Profiles {
		if p == nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("profile %s is empty", id))
			continue
		}
		if p.SubjectID != id {
			result.MismatchedKeys = append(result.MismatchedKeys, id)
		}
		for i := 1; i < len(p.OptimizationHistory); i++ {
			if p.OptimizationHistory[i].Timestamp.Before(p.OptimizationHistory[i-1].Timestamp) {
				result.UnorderedHistory = append(result.UnorderedHistory, id)
				break
			}
		}
	}

	if len(result.MismatchedKeys) > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("found %d profiles stored under a different key", len(result.MismatchedKeys)))
	}
	// History order is the append order; timestamps from clock skew are reported only.
	if len(result.UnorderedHistory) > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("found %d profiles with out-of-order history timestamps", len(result.UnorderedHistory)))
	}
	return result
}

func (fs *FileStore) autoFixState(st *ProfileState) {
	fixed := make(map[string]*profile.OptimizationProfile, len(st.Profiles))
	for id, p := range st.Profiles {
		if p == nil {
			continue
		}
		if p.SubjectID == "" {
			p.SubjectID = id
		}
		if p.OptimizationHistory == nil {
			p.OptimizationHistory = make([]profile.HistoryEntry, 0)
		}
		fixed[p.SubjectID] = p
	}
	st.Profiles = fixed

	if st.Version == "" {
		st.Version = DefaultStateVersion
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}

	fs.logger.Info("Auto-fixed state issues", zap.Int("profiles", len(st.Profiles)))
}

func (fs *FileStore) autoSaveWorker() {
	defer fs.wg.Done()

	ticker := time.NewTicker(fs.config.AutoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fs.stopCh:
			return
		case <-ticker.C:
			if !fs.dirty.Load() {
				continue
			}
			if err := fs.Save(); err != nil {
				fs.logger.Error("Auto-save failed", zap.Error(err))
			}
		}
	}
}

// GetChecksum calculates a checksum of the stored profiles.
func (fs *FileStore) GetChecksum() (string, error) {
	data, err := json.Marshal(fs.mem.snapshot())
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}

// ValidateState validates the current in-memory profiles.
func (fs *FileStore) ValidateState() *StateValidationResult {
	return validateState(&ProfileState{
		Profiles: fs.mem.snapshot(),
		Version:  DefaultStateVersion,
	})
}

func (fs *FileStore) Get(ctx context.Context, subjectID string) (*profile.OptimizationProfile, error) {
	return fs.mem.Get(ctx, subjectID)
}

func (fs *FileStore) Insert(ctx context.Context, p *profile.OptimizationProfile) error {
	if err := fs.mem.Insert(ctx, p); err != nil {
		return err
	}
	return fs.persist("insert_profile", p.SubjectID)
}

func (fs *FileStore) Update(ctx context.Context, p *profile.OptimizationProfile) error {
	if err := fs.mem.Update(ctx, p); err != nil {
		return err
	}
	return fs.persist("update_profile", p.SubjectID)
}

func (fs *FileStore) AppendHistory(ctx context.Context, subjectID string, entries ...profile.HistoryEntry) error {
	if err := fs.mem.AppendHistory(ctx, subjectID, entries...); err != nil {
		return err
	}
	return fs.persist("append_history", subjectID)
}

// UpdateWithHistory changes memory atomically; a failed save leaves both
// parts in memory for the next save.
func (fs *FileStore) UpdateWithHistory(ctx context.Context, p *profile.OptimizationProfile, entries ...profile.HistoryEntry) error {
	if err := fs.mem.UpdateWithHistory(ctx, p, entries...); err != nil {
		return err
	}
	return fs.persist("update_profile", p.SubjectID)
}

func (fs *FileStore) SaveFeedback(ctx context.Context, subjectID string, fb profile.Feedback, comment *profile.FeedbackComment) error {
	if err := fs.mem.SaveFeedback(ctx, subjectID, fb, comment); err != nil {
		return err
	}
	return fs.persist("save_feedback", subjectID)
}

func (fs *FileStore) ForEach(ctx context.Context, fn func(*profile.OptimizationProfile) error) error {
	return fs.mem.ForEach(ctx, fn)
}

func (fs *FileStore) Count(ctx context.Context) (int, error) {
	return fs.mem.Count(ctx)
}

// Close stops auto-save and performs a final save.
func (fs *FileStore) Close(ctx context.Context) error {
	fs.stopOnce.Do(func() { close(fs.stopCh) })
	fs.wg.Wait()

	if err := fs.Save(); err != nil {
		fs.logger.Error("Failed to save state on close", zap.Error(err))
		return err
	}

	fs.logger.Info("File profile store closed")
	return nil
}
