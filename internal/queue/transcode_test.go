package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/soundbay/backend/internal/audio"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/storage"
	"github.com/soundbay/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeEncoder struct {
	transcodeErr error
	block        chan struct{}
}

func (f *fakeEncoder) Transcode(ctx context.Context, in, out string) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.transcodeErr != nil {
		return f.transcodeErr
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

func (f *fakeEncoder) Probe(context.Context, string) (*audio.ProbeResult, error) {
	return &audio.ProbeResult{DurationSeconds: 3.5, Bitrate: 128, SampleRate: 44100, Channels: 2, Format: "mp3"}, nil
}

func (f *fakeEncoder) DecodePCM(_ context.Context, _, out string) error {
	file, err := os.Create(out)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(file, 8000, 16, 1, 1)
	data := make([]int, 8000)
	for i := range data {
		data[i] = int(math.Sin(float64(i)/10) * 20000)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		file.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (f *fakeEncoder) Available() error { return nil }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*models.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) all() []*models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Notification(nil), r.sent...)
}

type fixture struct {
	db       *gorm.DB
	store    *storage.LocalStore
	notifier *recordingNotifier
	user     *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost:8787/media")
	require.NoError(t, err)
	return &fixture{
		db:       db,
		store:    store,
		notifier: &recordingNotifier{},
		user:     testutil.CreateUser(t, db, "uploader"),
	}
}

func (f *fixture) queue(t *testing.T, enc audio.Encoder, opts Options) *TranscodeQueue {
	t.Helper()
	if opts.TempDir == "" {
		opts.TempDir = t.TempDir()
	}
	q := NewTranscodeQueue(f.db, f.store, enc, f.notifier, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Stop(ctx)
	})
	return q
}

// pendingTrack stores an original in the object store and a pending track row
func (f *fixture) pendingTrack(t *testing.T, title string) *models.Track {
	t.Helper()
	key := storage.OriginalKey(time.Now(), f.user.ID, title+".wav")
	src := filepath.Join(t.TempDir(), "src.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF fake audio payload"), 0o644))
	file, err := os.Open(src)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, f.store.PutObject(context.Background(), key, file, "audio/wav", nil))

	tr := &models.Track{
		UserID:           f.user.ID,
		Title:            title,
		IsPublic:         true,
		OriginalKey:      key,
		OriginalFilename: title + ".wav",
	}
	require.NoError(t, f.db.Create(tr).Error)
	return tr
}

func (f *fixture) reload(t *testing.T, id string) models.Track {
	t.Helper()
	var tr models.Track
	require.NoError(t, f.db.First(&tr, "id = ?", id).Error)
	return tr
}

func TestSubmitAndComplete(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, &fakeEncoder{}, Options{Workers: 2, QueueSize: 4, WaveformBars: 50})

	var hooked []string
	var hookMu sync.Mutex
	q.SetCompletionHook(func(_ context.Context, tr *models.Track) {
		hookMu.Lock()
		hooked = append(hooked, tr.ID)
		hookMu.Unlock()
	})
	q.Start()

	tr := f.pendingTrack(t, "first")
	job, err := q.Submit(tr.ID, tr.UserID, "", tr.OriginalFilename)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)

	done, err := q.WaitForJob(job.ID, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, JobComplete, done.Status, done.Error)
	require.NotNil(t, done.Result)
	assert.Equal(t, 3.5, done.Result.DurationSeconds)
	assert.NotEmpty(t, done.Result.WaveformURL)

	got := f.reload(t, tr.ID)
	assert.Equal(t, models.ProcessingComplete, got.ProcessingStatus)
	assert.Equal(t, models.TrackPending, got.Status, "moderation is untouched without auto-approve")
	assert.Equal(t, 128, got.Bitrate)
	assert.Len(t, got.Waveform, 50)
	assert.NotEmpty(t, got.AudioKey)
	assert.NotEmpty(t, got.AudioURL)

	rc, err := f.store.GetObject(context.Background(), got.AudioKey)
	require.NoError(t, err)
	rc.Close()
	rc, err = f.store.GetObject(context.Background(), storage.WaveformKey(tr.ID, "json"))
	require.NoError(t, err)
	rc.Close()

	hookMu.Lock()
	assert.Equal(t, []string{tr.ID}, hooked)
	hookMu.Unlock()
	assert.Empty(t, f.notifier.all())
}

func TestAutoApprove(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, &fakeEncoder{}, Options{Workers: 1, QueueSize: 2, AutoApprove: true})
	q.Start()

	tr := f.pendingTrack(t, "approved")
	job, err := q.Submit(tr.ID, tr.UserID, "", tr.OriginalFilename)
	require.NoError(t, err)
	done, err := q.WaitForJob(job.ID, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, JobComplete, done.Status)

	got := f.reload(t, tr.ID)
	assert.Equal(t, models.TrackApproved, got.Status)
	assert.NotNil(t, got.ModeratedAt)
	assert.True(t, got.Streamable())
	require.NotNil(t, done.Result)
	assert.True(t, done.Result.AutoApproved)

	// the owner hears about it the same way as a moderator approval
	require.Eventually(t, func() bool { return len(f.notifier.all()) == 1 }, 5*time.Second, 10*time.Millisecond)
	n := f.notifier.all()[0]
	assert.Equal(t, models.NotifyTrackApproved, n.Type)
	assert.Equal(t, f.user.ID, n.RecipientID)
	require.NotNil(t, n.TrackID)
	assert.Equal(t, tr.ID, *n.TrackID)
	assert.Nil(t, n.ActorID)
}

func TestAutoApproveLeavesRejectedTracks(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, &fakeEncoder{}, Options{Workers: 1, QueueSize: 2, AutoApprove: true})
	q.Start()

	tr := f.pendingTrack(t, "rejected")
	require.NoError(t, f.db.Model(tr).Update("status", models.TrackRejected).Error)

	job, err := q.Requeue(context.Background(), tr.ID)
	require.NoError(t, err)
	_, err = q.WaitForJob(job.ID, 5*time.Second)
	require.NoError(t, err)

	got := f.reload(t, tr.ID)
	assert.Equal(t, models.TrackRejected, got.Status)
	assert.Equal(t, models.ProcessingComplete, got.ProcessingStatus)
}

func TestFailureRejectsAndNotifies(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, &fakeEncoder{transcodeErr: errors.New("invalid data found when processing input")}, Options{Workers: 1, QueueSize: 2})
	q.Start()

	tr := f.pendingTrack(t, "broken")
	job, err := q.Submit(tr.ID, tr.UserID, "", tr.OriginalFilename)
	require.NoError(t, err)

	done, err := q.WaitForJob(job.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, done.Status)
	assert.Contains(t, done.Error, "invalid data")

	got := f.reload(t, tr.ID)
	assert.Equal(t, models.ProcessingFailed, got.ProcessingStatus)
	assert.Equal(t, models.TrackRejected, got.Status)
	assert.Equal(t, models.RejectionTranscodeFailed, got.RejectionReason)
	assert.Contains(t, got.ProcessingError, "invalid data")

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, models.NotifyTrackFailed, sent[0].Type)
	assert.Equal(t, f.user.ID, sent[0].RecipientID)
	require.NotNil(t, sent[0].TrackID)
	assert.Equal(t, tr.ID, *sent[0].TrackID)
}

func TestMissingOriginalFails(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, &fakeEncoder{}, Options{Workers: 1, QueueSize: 2})
	q.Start()

	tr := &models.Track{UserID: f.user.ID, Title: "ghost"}
	require.NoError(t, f.db.Create(tr).Error)

	job, err := q.Submit(tr.ID, tr.UserID, "", "ghost.wav")
	require.NoError(t, err)
	done, err := q.WaitForJob(job.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, done.Status)
	assert.Equal(t, models.TrackRejected, f.reload(t, tr.ID).Status)
}

func TestLocalSourceIsRemoved(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, &fakeEncoder{}, Options{Workers: 1, QueueSize: 2})
	q.Start()

	tr := f.pendingTrack(t, "local")
	src := filepath.Join(t.TempDir(), "upload.wav")
	require.NoError(t, os.WriteFile(src, []byte("local upload"), 0o644))

	job, err := q.Submit(tr.ID, tr.UserID, src, "upload.wav")
	require.NoError(t, err)
	done, err := q.WaitForJob(job.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, JobComplete, done.Status)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestQueueFull(t *testing.T) {
	f := newFixture(t)
	// Not started, so nothing drains the buffer.
	q := f.queue(t, &fakeEncoder{}, Options{Workers: 1, QueueSize: 1})

	tr := f.pendingTrack(t, "a")
	_, err := q.Submit(tr.ID, tr.UserID, "", "a.wav")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Depth())
	assert.Equal(t, 1, q.Capacity())

	_, err = q.Submit(tr.ID, tr.UserID, "", "a.wav")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestStatusUnknownJob(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, &fakeEncoder{}, Options{})

	_, err := q.Status("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = q.WaitForJob("nope", time.Millisecond)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStopRefusesNewJobs(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, &fakeEncoder{}, Options{Workers: 1, QueueSize: 2})
	q.Start()

	require.NoError(t, q.Stop(context.Background()))
	_, err := q.Submit("track", f.user.ID, "", "x.wav")
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestStopWaitsForRunningJob(t *testing.T) {
	f := newFixture(t)
	enc := &fakeEncoder{block: make(chan struct{})}
	q := f.queue(t, enc, Options{Workers: 1, QueueSize: 2})
	q.Start()

	tr := f.pendingTrack(t, "slow")
	job, err := q.Submit(tr.ID, tr.UserID, "", tr.OriginalFilename)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return q.Running() == 1 }, 5*time.Second, 10*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- q.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(enc.block)
	require.NoError(t, <-stopped)

	done, err := q.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobComplete, done.Status)
}

func TestStopDeadlineRequeuesInterruptedTrack(t *testing.T) {
	f := newFixture(t)
	enc := &fakeEncoder{block: make(chan struct{})}
	q := f.queue(t, enc, Options{Workers: 1, QueueSize: 2})
	q.Start()

	tr := f.pendingTrack(t, "cut-off")
	job, err := q.Submit(tr.ID, tr.UserID, "", tr.OriginalFilename)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return q.Running() == 1 }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Stop(ctx), context.DeadlineExceeded)

	done, err := q.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, done.Status)
	assert.Equal(t, errInterrupted, done.Error)

	// not a bad upload: no rejection, no notification
	got := f.reload(t, tr.ID)
	assert.Equal(t, models.TrackPending, got.Status)
	assert.Equal(t, models.ProcessingQueued, got.ProcessingStatus)
	assert.Empty(t, got.RejectionReason)
	assert.Empty(t, got.ProcessingError)
	assert.Empty(t, f.notifier.all())

	next := f.queue(t, &fakeEncoder{}, Options{Workers: 1, QueueSize: 2})
	n, err := next.ResumePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmitReturnsQueuedSnapshot(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, &fakeEncoder{}, Options{Workers: 2, QueueSize: 8})
	q.Start()

	for i := 0; i < 8; i++ {
		tr := f.pendingTrack(t, fmt.Sprintf("fast-%d", i))
		job, err := q.Submit(tr.ID, tr.UserID, "", tr.OriginalFilename)
		require.NoError(t, err)
		// a worker may already own the job; the caller still sees it as submitted
		assert.Equal(t, JobQueued, job.Status)
		assert.Nil(t, job.StartedAt)
		assert.Nil(t, job.Result)
		_, err = q.WaitForJob(job.ID, 5*time.Second)
		require.NoError(t, err)
	}
}

func TestResumePending(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, &fakeEncoder{}, Options{Workers: 1, QueueSize: 4})

	f.pendingTrack(t, "one")
	f.pendingTrack(t, "two")
	done := f.pendingTrack(t, "done")
	require.NoError(t, f.db.Model(done).Update("processing_status", models.ProcessingComplete).Error)

	n, err := q.ResumePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, q.Depth())
}
