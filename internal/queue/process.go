package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/notifications"
	"github.com/soundbay/backend/internal/storage"
	"github.com/soundbay/backend/internal/telemetry"
	"github.com/soundbay/backend/internal/waveform"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// processJob runs one job end to end. There is no retry: any fatal error
// rejects the track.
func (q *TranscodeQueue) processJob(workerID int, job *Job) {
	start := q.now()
	q.running.Add(1)
	metrics.Get().TranscodeRunning.Inc()
	defer func() {
		q.running.Add(-1)
		metrics.Get().TranscodeRunning.Dec()
	}()

	if job.SourcePath != "" {
		defer os.Remove(job.SourcePath)
	}

	ctx, span := telemetry.TraceTranscodeJob(q.ctx, job.ID, job.TrackID)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, q.opts.Timeout)
	defer cancel()

	log := logger.Log.With(zap.Int("worker_id", workerID), logger.WithJobID(job.ID), logger.WithTrackID(job.TrackID))
	log.Info("Transcode job started")

	q.updateJob(job.ID, func(j *Job) {
		j.Status = JobProcessing
		j.StartedAt = &start
	})

	var track models.Track
	if err := q.db.WithContext(ctx).First(&track, "id = ?", job.TrackID).Error; err != nil {
		if q.ctx.Err() != nil {
			q.finishJob(job.ID, JobFailed, nil, errInterrupted)
			return
		}
		// Deleted while queued; nothing to reject.
		log.Warn("Track vanished before transcoding", zap.Error(err))
		q.finishJob(job.ID, JobFailed, nil, "track not found")
		metrics.Get().TranscodeFinished(string(JobFailed), time.Since(start).Seconds())
		return
	}

	if err := q.db.WithContext(ctx).Model(&track).Updates(map[string]interface{}{
		"processing_status": models.ProcessingProcessing,
		"processing_error":  "",
	}).Error; err != nil {
		log.Warn("Failed to mark track processing", zap.Error(err))
	}

	result, err := q.transcode(ctx, job, &track)
	if err != nil && q.ctx.Err() != nil {
		// shutdown, not a bad file: leave the track for ResumePending
		log.Warn("Transcode interrupted by shutdown", zap.Error(err))
		q.interrupt(&track, job)
		metrics.Get().TranscodeFinished(string(JobFailed), time.Since(start).Seconds())
		return
	}
	if err != nil {
		telemetry.RecordError(span, err)
		log.Error("Transcode job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		q.fail(&track, job, err)
		metrics.Get().TranscodeFinished(string(JobFailed), time.Since(start).Seconds())
		return
	}

	q.finishJob(job.ID, JobComplete, result, "")
	metrics.Get().TranscodeFinished(string(JobComplete), time.Since(start).Seconds())
	log.Info("Transcode job complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Float64("duration_seconds", result.DurationSeconds),
		zap.Int64("size", result.FileSize),
	)

	var fresh models.Track
	if err := q.db.First(&fresh, "id = ?", track.ID).Error; err != nil {
		log.Warn("Failed to reload transcoded track", zap.Error(err))
		return
	}
	hookCtx := context.WithoutCancel(ctx)

	q.hookMux.RLock()
	hook := q.onComplete
	q.hookMux.RUnlock()
	if hook != nil {
		hook(hookCtx, &fresh)
	}

	// auto-approval gets the same owner notification as a moderator's approval
	if result.AutoApproved && q.notifier != nil {
		if err := q.notifier.Notify(hookCtx, notifications.Moderated(&fresh)); err != nil {
			log.Warn("Failed to notify owner of auto-approval", zap.Error(err))
		}
	}
}

// interrupt puts a track cut off by shutdown back in the queued state
func (q *TranscodeQueue) interrupt(track *models.Track, job *Job) {
	q.finishJob(job.ID, JobFailed, nil, errInterrupted)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := q.db.WithContext(ctx).Model(&models.Track{}).Where("id = ?", track.ID).Updates(map[string]interface{}{
		"processing_status": models.ProcessingQueued,
		"processing_error":  "",
	}).Error
	if err != nil {
		logger.Log.Error("Failed to requeue interrupted track", logger.WithTrackID(track.ID), zap.Error(err))
	}
}

func (q *TranscodeQueue) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.TraceTranscodeStep(ctx, name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	metrics.Get().TranscodeDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (q *TranscodeQueue) transcode(ctx context.Context, job *Job, track *models.Track) (*JobResult, error) {
	workDir, err := os.MkdirTemp(q.opts.TempDir, "transcode-"+job.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	source := job.SourcePath
	if source == "" || !fileExists(source) {
		source, err = q.fetchOriginal(ctx, track, workDir)
		if err != nil {
			return nil, err
		}
	}

	mp3Path := filepath.Join(workDir, "out.mp3")
	if err := q.stage(ctx, "encode", func(ctx context.Context) error {
		return q.encoder.Transcode(ctx, source, mp3Path)
	}); err != nil {
		return nil, err
	}

	probe, err := q.encoder.Probe(ctx, mp3Path)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}

	// A waveform is nice to have; its absence never rejects a track.
	peaks, pngData := q.extractWaveform(ctx, job, mp3Path, workDir)

	info, err := os.Stat(mp3Path)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}

	audioKey := storage.AudioKey(track.CreatedAt, track.UserID, track.ID)
	if err := q.stage(ctx, "upload", func(ctx context.Context) error {
		f, err := os.Open(mp3Path)
		if err != nil {
			return err
		}
		defer f.Close()
		return q.store.PutObject(ctx, audioKey, f, "audio/mpeg", map[string]string{
			"track-id": track.ID,
			"user-id":  track.UserID,
		})
	}); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"processing_status": models.ProcessingComplete,
		"processing_error":  "",
		"audio_key":         audioKey,
		"audio_url":         q.store.URL(audioKey),
		"duration_seconds":  probe.DurationSeconds,
		"bitrate":           probe.Bitrate,
		"file_size":         info.Size(),
	}

	result := &JobResult{
		AudioURL:        q.store.URL(audioKey),
		DurationSeconds: probe.DurationSeconds,
		Bitrate:         probe.Bitrate,
		FileSize:        info.Size(),
	}

	if peaks != nil {
		if url, key, ok := q.uploadWaveform(ctx, track.ID, peaks, pngData, probe.DurationSeconds); ok {
			updates["waveform_key"] = key
			updates["waveform_url"] = url
			updates["waveform"] = models.Peaks(peaks)
			result.WaveformURL = url
		}
	}

	err = q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(track).Updates(updates).Error; err != nil {
			return err
		}
		if q.opts.AutoApprove {
			now := q.now()
			res := tx.Model(&models.Track{}).
				Where("id = ? AND status = ?", track.ID, models.TrackPending).
				Updates(map[string]interface{}{
					"status":       models.TrackApproved,
					"moderated_at": &now,
				})
			if res.Error != nil {
				return res.Error
			}
			result.AutoApproved = res.RowsAffected > 0
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist results: %w", err)
	}
	return result, nil
}

func (q *TranscodeQueue) fetchOriginal(ctx context.Context, track *models.Track, workDir string) (string, error) {
	if track.OriginalKey == "" {
		return "", ErrNoOriginal
	}
	dst := filepath.Join(workDir, "original"+strings.ToLower(filepath.Ext(track.OriginalKey)))

	err := q.stage(ctx, "download", func(ctx context.Context) error {
		rc, err := q.store.GetObject(ctx, track.OriginalKey)
		if err != nil {
			return err
		}
		defer rc.Close()

		f, err := os.Create(dst)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, rc); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	return dst, err
}

func (q *TranscodeQueue) extractWaveform(ctx context.Context, job *Job, mp3Path, workDir string) ([]float64, []byte) {
	var peaks []float64
	var pngData []byte

	err := q.stage(ctx, "waveform", func(ctx context.Context) error {
		pcm := filepath.Join(workDir, "pcm.wav")
		if err := q.encoder.DecodePCM(ctx, mp3Path, pcm); err != nil {
			return err
		}
		f, err := os.Open(pcm)
		if err != nil {
			return err
		}
		defer f.Close()

		peaks, err = waveform.Peaks(f, q.opts.WaveformBars)
		if err != nil {
			return err
		}
		pngData, err = waveform.RenderPNG(peaks, waveform.DefaultStyle())
		return err
	})
	if err != nil {
		logger.Log.Warn("Waveform extraction failed", logger.WithJobID(job.ID), zap.Error(err))
		return nil, nil
	}
	return peaks, pngData
}

func (q *TranscodeQueue) uploadWaveform(ctx context.Context, trackID string, peaks []float64, pngData []byte, duration float64) (string, string, bool) {
	doc, err := waveform.MarshalDocument(peaks, duration)
	if err != nil {
		logger.Log.Warn("Waveform encoding failed", logger.WithTrackID(trackID), zap.Error(err))
		return "", "", false
	}

	pngKey := storage.WaveformKey(trackID, "png")
	jsonKey := storage.WaveformKey(trackID, "json")
	err = q.stage(ctx, "waveform_upload", func(ctx context.Context) error {
		if err := q.store.PutObject(ctx, jsonKey, strings.NewReader(string(doc)), "application/json", nil); err != nil {
			return err
		}
		return q.store.PutObject(ctx, pngKey, strings.NewReader(string(pngData)), "image/png", nil)
	})
	if err != nil {
		logger.Log.Warn("Waveform upload failed", logger.WithTrackID(trackID), zap.Error(err))
		return "", "", false
	}
	return q.store.URL(pngKey), pngKey, true
}

// fail applies the failure-to-rejection transition and tells the owner
func (q *TranscodeQueue) fail(track *models.Track, job *Job, cause error) {
	msg := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = fmt.Sprintf("transcode timed out after %s: %s", q.opts.Timeout, msg)
	}
	q.finishJob(job.ID, JobFailed, nil, msg)

	// The job context may be dead; persist the failure regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := q.db.WithContext(ctx).Model(&models.Track{}).Where("id = ?", track.ID).Updates(map[string]interface{}{
		"processing_status": models.ProcessingFailed,
		"processing_error":  msg,
		"status":            models.TrackRejected,
		"rejection_reason":  models.RejectionTranscodeFailed,
	}).Error
	if err != nil {
		logger.Log.Error("Failed to record transcode failure", logger.WithTrackID(track.ID), zap.Error(err))
	}

	if q.notifier == nil {
		return
	}
	trackID := track.ID
	n := &models.Notification{
		RecipientID: track.UserID,
		Type:        models.NotifyTrackFailed,
		TrackID:     &trackID,
		Message:     fmt.Sprintf("We couldn't process %q. Please check the file and upload it again.", track.Title),
	}
	if err := q.notifier.Notify(ctx, n); err != nil {
		logger.Log.Warn("Failed to notify owner of transcode failure", logger.WithTrackID(track.ID), zap.Error(err))
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
