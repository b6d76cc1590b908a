package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
)

// HeartbeatPruner is the background upkeep loop for reader liveness.  Each
// pass flips readers that stopped sending heartbeats to offline and deletes
// heartbeat rows older than the retention period.
//
// A retention of 0 keeps heartbeat history forever; the offline sweep still
// runs.
type HeartbeatPruner struct {
	store        store.HeartbeatStore
	retention    time.Duration
	offlineAfter time.Duration
	interval     time.Duration
	logger       *zap.Logger
	cancel       context.CancelFunc
	done         chan struct{}
	stopOnce     sync.Once
}

// PrunerConfig holds the parameters for NewHeartbeatPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of heartbeat history to keep.
	// 0 keeps everything.
	RetentionDays int

	// OfflineAfter is how long a reader may stay silent before it is
	// marked offline.  Defaults to 5 minutes.
	OfflineAfter time.Duration

	// Interval is how often the pruner runs.  Defaults to 1 minute.
	Interval time.Duration
}

// NewHeartbeatPruner creates a pruner but does not start it.
// Call Start to begin the background loop.
func NewHeartbeatPruner(s store.HeartbeatStore, cfg PrunerConfig, logger *zap.Logger) *HeartbeatPruner {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	offlineAfter := cfg.OfflineAfter
	if offlineAfter <= 0 {
		offlineAfter = 5 * time.Minute
	}

	return &HeartbeatPruner{
		store:        s,
		retention:    time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		offlineAfter: offlineAfter,
		interval:     interval,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// Start begins the background pruning loop.  It runs an immediate prune
// on startup, then repeats on the configured interval.  The loop exits
// when ctx is cancelled or Stop is called.
func (p *HeartbeatPruner) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info("heartbeat pruner started",
		zap.Duration("retention", p.retention),
		zap.Duration("offline_after", p.offlineAfter),
		zap.Duration("interval", p.interval),
	)
}

// Stop signals the pruner to exit and waits for it to finish.  Calling Stop
// on a pruner that was never started returns immediately.
func (p *HeartbeatPruner) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel == nil {
			close(p.done)
			return
		}
		p.cancel()
	})
	<-p.done
}

func (p *HeartbeatPruner) loop(ctx context.Context) {
	defer close(p.done)

	// Run immediately on startup to clean up any backlog.
	p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single offline sweep and prune pass.
func (p *HeartbeatPruner) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	offline, err := p.store.MarkOfflineSince(ctx, now.Add(-p.offlineAfter))
	if err != nil {
		p.logger.Error("reader offline sweep failed", zap.Error(err))
	} else if offline > 0 {
		p.logger.Warn("readers marked offline", zap.Int64("count", offline))
	}

	if p.retention <= 0 {
		return
	}
	cutoff := now.Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("heartbeat prune failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("heartbeat prune",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
