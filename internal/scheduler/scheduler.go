// Package scheduler drives rooms at their fixed tick rate and runs the
// server's background housekeeping: replay retention, disk alerts and
// daily statistics.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skeld-project/skeld/internal/config"
	"github.com/skeld-project/skeld/internal/util"
)

// StatsSource reports the live room population.
type StatsSource interface {
	RoomCount() int
	PlayerCount() int
}

// AlertStore persists operator alerts.
type AlertStore interface {
	CreateAlert(alertType, level, message string) error
	CleanOldAlerts(days int) error
}

// alertRetentionDays is how long acknowledged alerts are kept.
const alertRetentionDays = 30

const diskCheckInterval = 30 * time.Minute

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg       *config.Config
	stats     StatsSource
	alerts    AlertStore
	now       func() time.Time
	diskUsage func(path string) (*util.DiskUsage, error)
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, stats StatsSource) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		stats:     stats,
		now:       time.Now,
		diskUsage: util.GetDiskUsage,
	}
}

// SetAlertStore enables disk alerts and the daily pruning of acknowledged
// alerts.
func (s *Scheduler) SetAlertStore(store AlertStore) {
	s.alerts = store
}

// Start begins running all scheduled tasks and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	if s.cfg.GetApplicationData().Replay.Enabled {
		go s.runReplayCleanerLoop(ctx)
	}

	go s.runStatsCollectionLoop(ctx)
	go s.runDiskCheckLoop(ctx)

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

// runReplayCleanerLoop runs the replay cleaner at the configured time.
func (s *Scheduler) runReplayCleanerLoop(ctx context.Context) {
	for {
		nextRun := s.calculateNextCleanupTime()
		sleepDuration := nextRun.Sub(s.now())
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("replay cleaner scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepDuration):
			s.RunReplayCleaner()
		}
	}
}

// RunReplayCleaner deletes recordings older than the retention period and
// returns how many files were removed.
func (s *Scheduler) RunReplayCleaner() int {
	replayCfg := s.cfg.GetApplicationData().Replay
	cutoff := time.Duration(replayCfg.RetentionDays) * 24 * time.Hour

	log.Info().
		Str("directory", replayCfg.Directory).
		Int("retention_days", replayCfg.RetentionDays).
		Msg("running replay cleaner")

	var (
		deletedCount int
		deletedSize  int64
	)

	err := filepath.Walk(replayCfg.Directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if info.IsDir() || !isRecording(info.Name()) {
			return nil
		}
		if s.now().Sub(info.ModTime()) <= cutoff {
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("failed to delete replay")
			return nil
		}
		deletedCount++
		deletedSize += info.Size()
		log.Debug().Str("file", info.Name()).Msg("deleted old replay")
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("replay cleaner encountered errors")
	}

	log.Info().
		Int("deleted_files", deletedCount).
		Str("freed_space", formatBytes(deletedSize)).
		Msg("replay cleaner completed")

	return deletedCount
}

func isRecording(name string) bool {
	return strings.HasSuffix(name, ".jsonl.zst")
}

// runStatsCollectionLoop collects daily statistics and prunes old alerts.
func (s *Scheduler) runStatsCollectionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collectStats()
			s.pruneAlerts()
		}
	}
}

// collectStats logs the room population and the size of the replay store.
func (s *Scheduler) collectStats() {
	replayDir := s.cfg.GetApplicationData().Replay.Directory

	replayCount := 0
	if entries, err := os.ReadDir(replayDir); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && isRecording(entry.Name()) {
				replayCount++
			}
		}
	}

	event := log.Info().Int("replay_count", replayCount)
	if s.stats != nil {
		event = event.Int("rooms", s.stats.RoomCount()).Int("players", s.stats.PlayerCount())
	}
	event.Msg("daily stats collected")
}

func (s *Scheduler) pruneAlerts() {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.CleanOldAlerts(alertRetentionDays); err != nil {
		log.Warn().Err(err).Msg("failed to prune acknowledged alerts")
	}
}

func (s *Scheduler) runDiskCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(diskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkDiskUtilization()
		}
	}
}

// diskLevel maps a usage percentage to an alert level, or "" below 80%.
func diskLevel(usedPercent float64) string {
	switch {
	case usedPercent >= 100:
		return "critical"
	case usedPercent >= 95:
		return "error"
	case usedPercent >= 90:
		return "warning"
	case usedPercent >= 80:
		return "info"
	default:
		return ""
	}
}

// checkDiskUtilization raises an alert when the volume holding the
// recordings is filling up.
func (s *Scheduler) checkDiskUtilization() {
	path := s.cfg.GetApplicationData().Replay.Directory
	if path == "" || !util.FileExists(path) {
		path = "."
	}

	usage, err := s.diskUsage(path)
	if err != nil {
		log.Warn().Err(err).Msg("disk utilization check failed")
		return
	}
	log.Debug().Float64("used_percent", usage.UsedPercent).Uint64("free_gb", usage.Free).Msg("disk utilization")

	level := diskLevel(usage.UsedPercent)
	if level == "" {
		return
	}
	message := fmt.Sprintf("Disk usage at %.1f%% (%d GB free of %d GB total)", usage.UsedPercent, usage.Free, usage.Total)
	log.Warn().Str("level", level).Msg(message)

	if s.alerts != nil {
		if err := s.alerts.CreateAlert("disk", level, message); err != nil {
			log.Warn().Err(err).Msg("failed to store disk alert")
		}
	}
}

// calculateNextCleanupTime returns the next time the cleanup should run.
func (s *Scheduler) calculateNextCleanupTime() time.Time {
	parts := strings.Split(s.cfg.GetApplicationData().Replay.CleanupTime, ":")

	hour, minute := 4, 0 // Default: 4:00 AM
	if len(parts) >= 2 {
		fmt.Sscanf(parts[0], "%d", &hour)
		fmt.Sscanf(parts[1], "%d", &minute)
	}

	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
