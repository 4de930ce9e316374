package mcp

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hpungsan/stasher/internal/config"
	"github.com/hpungsan/stasher/internal/ops"
)

// watchDebounce coalesces the burst of events an editor save produces.
const watchDebounce = 200 * time.Millisecond

// WatchRules re-syncs bindings whenever cfg.RulesFile changes on disk, until
// ctx is cancelled. A rule file that fails to parse is logged and left for
// the next change.
func WatchRules(ctx context.Context, db *sql.DB, cfg *config.Config, logger *zap.Logger) error {
	return watchRules(ctx, db, cfg, logger, watchDebounce, nil)
}

func watchRules(ctx context.Context, db *sql.DB, cfg *config.Config, logger *zap.Logger, debounce time.Duration, synced func(*ops.SyncRulesOutput)) error {
	path, err := filepath.Abs(cfg.RulesFile)
	if err != nil {
		return fmt.Errorf("resolve rules file: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors often replace the file rather than write it.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	logger.Info("watching rule file", zap.String("path", path))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("rule watcher error", zap.Error(err))

		case <-timer.C:
			out, err := ops.SyncRules(ctx, db, cfg, ops.RulesInput{Path: path})
			if err != nil {
				logger.Warn("rule file sync failed", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("rule file synced",
				zap.Int("rules", out.Rules),
				zap.Strings("added", out.Added),
				zap.Strings("removed", out.Removed),
			)
			if synced != nil {
				synced(out)
			}
		}
	}
}
