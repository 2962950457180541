// ABOUTME: Retention sweeper that expires old boxes and reclaims their storage
// ABOUTME: Deletes blobs by box prefix first, then the metadata rows via cascade

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boxdrop/boxdrop/internal/blob"
	"github.com/boxdrop/boxdrop/internal/store"
)

// Sweeper periodically removes boxes older than the retention window,
// including every blob stored under their key prefix.
type Sweeper struct {
	store     store.Store
	blobs     blob.Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// Result summarizes one sweep pass.
type Result struct {
	BoxesDeleted int
	BlobsDeleted int
	Errors       []error
}

func NewSweeper(s store.Store, blobs blob.Store, retention, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     s,
		blobs:     blobs,
		retention: retention,
		interval:  interval,
		logger:    logger.With("component", "cleanup"),
	}
}

// Run sweeps on the configured interval until the context is canceled.
// A failed pass is logged and the next tick tries again. An interval of
// zero or less disables the sweeper; NewTicker panics on it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("retention sweeper disabled, no sweep interval configured")
		return
	}

	s.logger.Info("retention sweeper started",
		"retention", s.retention.String(),
		"interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			result, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("sweep pass failed", "error", err)
				continue
			}
			if result.BoxesDeleted > 0 || len(result.Errors) > 0 {
				s.logger.Info("sweep pass complete",
					"boxes_deleted", result.BoxesDeleted,
					"blobs_deleted", result.BlobsDeleted,
					"errors", len(result.Errors))
			}
		}
	}
}

// SweepOnce deletes every box created before the retention cutoff. Blobs
// go first so a crash mid-pass leaves dangling metadata that the next
// pass retries, never unreachable blobs. Per-box failures are collected
// and the pass moves on to the remaining boxes.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	cutoff := time.Now().UTC().Add(-s.retention)

	expired, err := s.store.ListExpiredBoxes(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("listing expired boxes: %w", err)
	}

	var result Result
	for _, box := range expired {
		deleted, err := s.deleteBox(ctx, box)
		result.BlobsDeleted += deleted
		if err != nil {
			s.logger.Error("deleting expired box", "box_id", box.ID, "error", err)
			result.Errors = append(result.Errors, fmt.Errorf("box %s: %w", box.ID, err))
			continue
		}
		result.BoxesDeleted++
	}
	return result, nil
}

// deleteBox reclaims one box: every blob under its prefix in both kinds,
// then the box row (content rows cascade). Returns the blob count removed
// even when a later step fails.
func (s *Sweeper) deleteBox(ctx context.Context, box *store.Box) (int, error) {
	prefix := box.ID + "/"
	deleted := 0

	for _, kind := range []blob.Kind{blob.KindImage, blob.KindFile} {
		keys, err := s.blobs.List(ctx, kind, prefix)
		if err != nil {
			return deleted, fmt.Errorf("listing %s blobs: %w", kind, err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := s.blobs.Delete(ctx, kind, keys); err != nil {
			return deleted, fmt.Errorf("deleting %s blobs: %w", kind, err)
		}
		deleted += len(keys)
	}

	if err := s.store.DeleteBox(ctx, box.ID); err != nil {
		return deleted, fmt.Errorf("deleting box row: %w", err)
	}
	return deleted, nil
}
