package queue

import (
	"errors"
	"time"
)

var (
	ErrQueueFull    = errors.New("transcode queue is full")
	ErrJobNotFound  = errors.New("job not found")
	ErrQueueStopped = errors.New("transcode queue is stopped")
	ErrNoOriginal   = errors.New("track has no retained original")
)

const errInterrupted = "interrupted by shutdown; resumes on next start"

// JobStatus mirrors the track's processing status for one run
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobFailed     JobStatus = "failed"
)

// Job is one transcode run for a track
type Job struct {
	ID      string `json:"id"`
	TrackID string `json:"track_id"`
	UserID  string `json:"user_id"`
	// SourcePath is a local copy of the upload; empty means fetch the original from storage
	SourcePath  string     `json:"-"`
	Filename    string     `json:"filename"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	done chan struct{}
}

// JobResult is what a successful run produced
type JobResult struct {
	AudioURL        string  `json:"audio_url"`
	WaveformURL     string  `json:"waveform_url,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Bitrate         int     `json:"bitrate"`
	FileSize        int64   `json:"file_size"`
	AutoApproved    bool    `json:"auto_approved,omitempty"`
}

func (j *Job) finished() bool {
	return j.Status == JobComplete || j.Status == JobFailed
}

// snapshot copies the job without its completion channel
func (j *Job) snapshot() Job {
	c := *j
	c.done = nil
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return c
}
