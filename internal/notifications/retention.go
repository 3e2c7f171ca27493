package notifications

import (
	"context"
	"time"

	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultRetention     = 90 * 24 * time.Hour
	DefaultPruneInterval = time.Hour
)

// Pruner periodically removes notifications that were read long ago
type Pruner struct {
	repo      repository.NotificationRepository
	retention time.Duration
	interval  time.Duration
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPruner(repo repository.NotificationRepository, retention, interval time.Duration) *Pruner {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pruner{
		repo:      repo,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	logger.Log.Info("Starting notification pruner",
		zap.Duration("retention", p.retention),
		zap.Duration("interval", p.interval))
	go p.run()
}

// Stop cancels the loop and waits for an in-flight prune to finish
func (p *Pruner) Stop() {
	p.cancel()
	<-p.done
}

func (p *Pruner) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.PruneOnce(p.ctx)
		case <-p.ctx.Done():
			return
		}
	}
}

// PruneOnce deletes notifications read before now minus retention
func (p *Pruner) PruneOnce(ctx context.Context) int64 {
	cutoff := p.now().UTC().Add(-p.retention)
	n, err := p.repo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		logger.Log.Warn("Failed to prune notifications", zap.Error(err))
		return 0
	}
	if n > 0 {
		logger.Log.Info("Pruned read notifications", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n
}
