package queue

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/soundbay/backend/internal/audio"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// finished jobs are forgotten after this long
const jobRetention = time.Hour

// Notifier delivers a notification to a user
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// CompletionHook runs after a track is transcoded successfully
type CompletionHook func(ctx context.Context, track *models.Track)

type Options struct {
	Workers      int
	QueueSize    int
	Timeout      time.Duration
	TempDir      string
	AutoApprove  bool
	WaveformBars int
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 100
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Minute
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.WaveformBars <= 0 {
		o.WaveformBars = 200
	}
}

// TranscodeQueue runs uploaded tracks through the encoder on a bounded worker pool
type TranscodeQueue struct {
	opts     Options
	db       *gorm.DB
	store    storage.Store
	encoder  audio.Encoder
	notifier Notifier

	jobs       chan *Job
	results    map[string]*Job
	resultsMux sync.RWMutex

	hookMux    sync.RWMutex
	onComplete CompletionHook

	ctx      context.Context
	cancel   context.CancelFunc
	quit     chan struct{}
	stopOnce sync.Once
	stopMux  sync.RWMutex
	stopped  bool
	started  atomic.Bool
	running  atomic.Int32
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewTranscodeQueue(db *gorm.DB, store storage.Store, encoder audio.Encoder, notifier Notifier, opts Options) *TranscodeQueue {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
		logger.Log.Warn("Failed to create transcode temp directory", zap.String("temp_dir", opts.TempDir), zap.Error(err))
	}

	return &TranscodeQueue{
		opts:     opts,
		db:       db,
		store:    store,
		encoder:  encoder,
		notifier: notifier,
		jobs:     make(chan *Job, opts.QueueSize),
		results:  make(map[string]*Job),
		ctx:      ctx,
		cancel:   cancel,
		quit:     make(chan struct{}),
		now:      time.Now,
	}
}

// SetCompletionHook registers fn to run after each successful transcode
func (q *TranscodeQueue) SetCompletionHook(fn CompletionHook) {
	q.hookMux.Lock()
	defer q.hookMux.Unlock()
	q.onComplete = fn
}

// Start launches the worker pool. Calling it twice is a no-op.
func (q *TranscodeQueue) Start() {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	logger.Log.Info("Starting transcode queue",
		zap.Int("workers", q.opts.Workers),
		zap.Int("capacity", q.opts.QueueSize),
		zap.Duration("timeout", q.opts.Timeout),
	)
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop refuses new jobs and waits for running ones. When ctx expires first,
// running jobs are cancelled. Buffered jobs stay queued in the database and
// are resumed on the next boot.
func (q *TranscodeQueue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.stopMux.Lock()
		q.stopped = true
		q.stopMux.Unlock()
		close(q.quit)
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		logger.Log.Info("Transcode queue drained")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// Submit enqueues a transcode for trackID and marks the track queued
func (q *TranscodeQueue) Submit(trackID, userID, sourcePath, filename string) (*Job, error) {
	q.stopMux.RLock()
	defer q.stopMux.RUnlock()
	if q.stopped {
		return nil, ErrQueueStopped
	}

	job := &Job{
		ID:         uuid.New().String(),
		TrackID:    trackID,
		UserID:     userID,
		SourcePath: sourcePath,
		Filename:   filename,
		Status:     JobQueued,
		CreatedAt:  q.now(),
		done:       make(chan struct{}),
	}

	q.resultsMux.Lock()
	q.pruneLocked()
	q.results[job.ID] = job
	// taken before the send; once queued a worker may update the job
	snap := job.snapshot()
	q.resultsMux.Unlock()

	// Marked before the send so a fast worker's "processing" is never overwritten.
	// A full queue leaves the track queued for ResumePending.
	if q.db != nil {
		q.db.Model(&models.Track{}).Where("id = ?", trackID).Updates(map[string]interface{}{
			"processing_status": models.ProcessingQueued,
			"processing_error":  "",
		})
	}

	select {
	case q.jobs <- job:
	default:
		q.resultsMux.Lock()
		delete(q.results, job.ID)
		q.resultsMux.Unlock()
		return nil, ErrQueueFull
	}

	m := metrics.Get()
	m.TranscodeJobsSubmitted.Inc()
	m.TranscodeQueueDepth.Set(float64(len(q.jobs)))

	logger.Log.Info("Transcode job submitted",
		logger.WithJobID(job.ID),
		logger.WithTrackID(trackID),
		zap.String("filename", filename),
	)
	return &snap, nil
}

// Requeue resubmits a track from its retained original (admin retranscode)
func (q *TranscodeQueue) Requeue(ctx context.Context, trackID string) (*Job, error) {
	var track models.Track
	if err := q.db.WithContext(ctx).First(&track, "id = ?", trackID).Error; err != nil {
		return nil, err
	}
	if track.OriginalKey == "" {
		return nil, ErrNoOriginal
	}
	return q.Submit(track.ID, track.UserID, "", track.OriginalFilename)
}

// ResumePending resubmits tracks left queued or mid-processing by a previous run
func (q *TranscodeQueue) ResumePending(ctx context.Context) (int, error) {
	var tracks []models.Track
	err := q.db.WithContext(ctx).
		Where("processing_status IN ?", []models.ProcessingStatus{models.ProcessingQueued, models.ProcessingProcessing}).
		Where("original_key <> ''").
		Order("created_at ASC").
		Find(&tracks).Error
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, t := range tracks {
		if _, err := q.Submit(t.ID, t.UserID, "", t.OriginalFilename); err != nil {
			logger.Log.Warn("Could not resume transcode", logger.WithTrackID(t.ID), zap.Error(err))
			if err == ErrQueueFull || err == ErrQueueStopped {
				break
			}
			continue
		}
		resumed++
	}
	return resumed, nil
}

// Status returns a snapshot of a job
func (q *TranscodeQueue) Status(jobID string) (Job, error) {
	q.resultsMux.RLock()
	defer q.resultsMux.RUnlock()

	job, ok := q.results[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// WaitForJob blocks until the job finishes or timeout elapses
func (q *TranscodeQueue) WaitForJob(jobID string, timeout time.Duration) (Job, error) {
	q.resultsMux.RLock()
	job, ok := q.results[jobID]
	q.resultsMux.RUnlock()
	if !ok {
		return Job{}, ErrJobNotFound
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-job.done:
		return q.Status(jobID)
	case <-timer.C:
		return Job{}, fmt.Errorf("timeout waiting for job %s", jobID)
	}
}

// Depth is the number of jobs waiting for a worker
func (q *TranscodeQueue) Depth() int {
	return len(q.jobs)
}

// Running is the number of jobs being processed
func (q *TranscodeQueue) Running() int {
	return int(q.running.Load())
}

func (q *TranscodeQueue) Capacity() int {
	return cap(q.jobs)
}

// pruneLocked drops finished jobs past retention; resultsMux must be held
func (q *TranscodeQueue) pruneLocked() {
	cutoff := q.now().Add(-jobRetention)
	for id, j := range q.results {
		if j.finished() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(q.results, id)
		}
	}
}

func (q *TranscodeQueue) worker(workerID int) {
	defer q.wg.Done()
	logger.Log.Debug("Transcode worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-q.quit:
			logger.Log.Debug("Transcode worker shutting down", zap.Int("worker_id", workerID))
			return
		default:
		}

		select {
		case <-q.quit:
			logger.Log.Debug("Transcode worker shutting down", zap.Int("worker_id", workerID))
			return
		case job := <-q.jobs:
			metrics.Get().TranscodeQueueDepth.Set(float64(len(q.jobs)))
			q.processJob(workerID, job)
		}
	}
}

func (q *TranscodeQueue) updateJob(jobID string, fn func(j *Job)) {
	q.resultsMux.Lock()
	defer q.resultsMux.Unlock()
	if job, ok := q.results[jobID]; ok {
		fn(job)
	}
}

// finishJob records the final state and wakes waiters
func (q *TranscodeQueue) finishJob(jobID string, status JobStatus, result *JobResult, errMsg string) {
	q.resultsMux.Lock()
	defer q.resultsMux.Unlock()

	job, ok := q.results[jobID]
	if !ok || job.finished() {
		return
	}
	now := q.now()
	job.Status = status
	job.Result = result
	job.Error = errMsg
	job.CompletedAt = &now
	close(job.done)
}
