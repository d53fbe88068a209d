package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"atelier/pkg/config"
	"atelier/pkg/logger"
)

// Options tells the purge runner where generated artifacts live and how
// long they are kept.
type Options struct {
	Retention config.RetentionConfig
	// Dirs are scanned recursively; any regular file older than MaxAge
	// is removed.
	Dirs []string
}

// Start starts the artifact purge scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, opts Options) (context.CancelFunc, error) {
	ret := opts.Retention
	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	if time.Duration(ret.MaxAge) <= 0 {
		return nil, fmt.Errorf("retention enabled but max_age is not set")
	}

	// map empty cron to default daily @02:00
	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "max_age", time.Duration(ret.MaxAge).String(), "dirs", len(opts.Dirs))
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, opts, cronExpr)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, opts Options, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(ctx, opts); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce walks the artifact directories and removes regular files whose
// modification time is older than the retention window. With DryRun set
// it only logs what would be removed.
func RunOnce(ctx context.Context, opts Options) error {
	cutoff := time.Now().Add(-time.Duration(opts.Retention.MaxAge))
	var removed, kept int
	for _, dir := range opts.Dirs {
		if dir == "" {
			continue
		}
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if info.IsDir() || !info.Mode().IsRegular() {
				return nil
			}
			if info.ModTime().After(cutoff) {
				kept++
				return nil
			}
			if opts.Retention.DryRun {
				logger.Info("retention_would_remove", "path", path, "age", time.Since(info.ModTime()).String())
				return nil
			}
			if err := os.Remove(path); err != nil {
				logger.Warn("retention_remove_failed", "path", path, "error", err)
				return nil
			}
			removed++
			return nil
		})
		if err != nil {
			return err
		}
	}
	logger.Info("retention_run_complete", "removed", removed, "kept", kept, "dry_run", opts.Retention.DryRun)
	return nil
}
