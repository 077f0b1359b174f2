package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"montevecchio/internal/config"
)

const backupPrefix = "backup_"

// BackupService takes scheduled snapshots of the SQLite store and prunes old
// ones.
type BackupService struct {
	store     *Store
	config    config.BackupConfig
	logger    zerolog.Logger
	scheduler *gocron.Scheduler
	mu        sync.Mutex
	now       func() time.Time
}

func NewBackupService(store *Store, cfg config.BackupConfig, loc *time.Location, logger *zerolog.Logger) *BackupService {
	if loc == nil {
		loc = time.UTC
	}
	return &BackupService{
		store:     store,
		config:    cfg,
		logger:    logger.With().Str("component", "backup").Logger(),
		scheduler: gocron.NewScheduler(loc),
		now:       time.Now,
	}
}

// Start registers the cron job and runs it in the background until ctx is
// cancelled.
func (s *BackupService) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return nil
	}

	_, err := s.scheduler.Cron(s.config.Schedule).Do(func() {
		if _, err := s.PerformBackup(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled backup failed")
			return
		}
		s.CleanupOldBackups()
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", s.config.Schedule, err)
	}

	s.scheduler.StartAsync()
	_, next := s.scheduler.NextRun()
	s.logger.Info().Str("schedule", s.config.Schedule).Time("next_run", next).Msg("Backup service started")

	go func() {
		<-ctx.Done()
		s.scheduler.Stop()
		s.logger.Info().Msg("Backup service stopped")
	}()
	return nil
}

// PerformBackup writes a snapshot and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.db", backupPrefix, s.now().Format("20060102_150405"))
	path := filepath.Join(s.config.StoragePath, name)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("backup %s already exists", name)
	}

	s.logger.Info().Str("path", path).Msg("Performing database backup")
	if err := s.store.Snapshot(ctx, path); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	s.logger.Info().Msg("Backup completed successfully")
	return path, nil
}

// CleanupOldBackups deletes snapshots older than the retention period.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.StoragePath, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete backup")
				continue
			}
			removed++
		}
	}
	return removed
}
