package search

import (
	"context"
	"sync"
	"time"

	"github.com/soundbay/backend/internal/logger"
	"go.uber.org/zap"
)

// Reconciler periodically rewrites the indices from the database to catch
// any sync that was missed
type Reconciler struct {
	service  *Service
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
}

func NewReconciler(service *Service, interval time.Duration) *Reconciler {
	return &Reconciler{
		service:  service,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start is a no-op when search is disabled or the interval is zero
func (r *Reconciler) Start() {
	if !r.service.Enabled() || r.interval <= 0 {
		return
	}
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = true
	r.mu.Unlock()

	logger.Log.Info("Starting search reconciliation", zap.Duration("interval", r.interval))
	r.wg.Add(1)
	go r.loop()
}

func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()
	logger.Log.Info("Search reconciliation stopped")
}

func (r *Reconciler) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.reconcile()
		}
	}
}

func (r *Reconciler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	stats, err := r.service.Reindex(ctx)
	if err != nil {
		logger.Log.Warn("Search reconciliation failed", zap.Error(err))
		return
	}
	logger.Log.Info("Search reconciliation finished",
		zap.Int("tracks", stats.Tracks),
		zap.Int("users", stats.Users),
		zap.Duration("took", time.Since(start)))
}
