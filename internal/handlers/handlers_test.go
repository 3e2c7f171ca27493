package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/soundbay/backend/internal/auth"
	"github.com/soundbay/backend/internal/config"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/notifications"
	"github.com/soundbay/backend/internal/queue"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/storage"
	"github.com/soundbay/backend/internal/testutil"
	"github.com/soundbay/backend/internal/util"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeTranscoder records submissions instead of running the encoder
type fakeTranscoder struct {
	mu        sync.Mutex
	jobs      map[string]queue.Job
	submitted []string
	requeued  []string
	submitErr error
}

func newFakeTranscoder() *fakeTranscoder {
	return &fakeTranscoder{jobs: map[string]queue.Job{}}
}

func (f *fakeTranscoder) Submit(trackID, userID, _, filename string) (*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	job := queue.Job{
		ID:        uuid.NewString(),
		TrackID:   trackID,
		UserID:    userID,
		Filename:  filename,
		Status:    queue.JobQueued,
		CreatedAt: time.Now(),
	}
	f.jobs[job.ID] = job
	f.submitted = append(f.submitted, trackID)
	return &job, nil
}

func (f *fakeTranscoder) Requeue(_ context.Context, trackID string) (*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := queue.Job{ID: uuid.NewString(), TrackID: trackID, Status: queue.JobQueued, CreatedAt: time.Now()}
	f.jobs[job.ID] = job
	f.requeued = append(f.requeued, trackID)
	return &job, nil
}

func (f *fakeTranscoder) Status(jobID string) (queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return queue.Job{}, queue.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeTranscoder) Depth() int    { return 0 }
func (f *fakeTranscoder) Running() int  { return 0 }
func (f *fakeTranscoder) Capacity() int { return 4 }

type testEnv struct {
	t        *testing.T
	db       *gorm.DB
	router   *gin.Engine
	handlers *Handlers
	auth     *auth.Service
	store    *storage.LocalStore
	queue    *fakeTranscoder
	notes    repository.NotificationRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	users := repository.NewUserRepository(db)
	authSvc := auth.NewService(users, auth.Options{JWTSecret: "test-secret"})
	store, err := storage.NewLocalStore(t.TempDir(), "http://cdn.test")
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Audio.TempDir = t.TempDir()
	cfg.Audio.MaxUploadMB = 1

	notes := repository.NewNotificationRepository(db)
	q := newFakeTranscoder()
	h := NewHandlers(Dependencies{
		Config:        cfg,
		DB:            db,
		Auth:          authSvc,
		Users:         users,
		Tracks:        repository.NewTrackRepository(db),
		Social:        repository.NewSocialRepository(db),
		Comments:      repository.NewCommentRepository(db),
		Playlists:     repository.NewPlaylistRepository(db),
		History:       repository.NewHistoryRepository(db),
		Reports:       repository.NewReportRepository(db),
		Notifications: notifications.NewService(notes, nil),
		Storage:       store,
		Queue:         q,
	})

	r := gin.New()
	h.RegisterRoutes(r)
	return &testEnv{t: t, db: db, router: r, handlers: h, auth: authSvc, store: store, queue: q, notes: notes}
}

func (e *testEnv) user(username string) (*models.User, string) {
	e.t.Helper()
	u := testutil.CreateUser(e.t, e.db, username)
	resp, err := e.auth.IssueToken(u)
	require.NoError(e.t, err)
	return u, resp.Token
}

func (e *testEnv) admin(username string) (*models.User, string) {
	e.t.Helper()
	u, token := e.user(username)
	require.NoError(e.t, e.db.Model(u).Update("is_admin", true).Error)
	u.IsAdmin = true
	return u, token
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req, token)
}

func (e *testEnv) upload(path, token, field, filename string, content []byte, form map[string]string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range form {
		require.NoError(e.t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile(field, filename)
	require.NoError(e.t, err)
	_, err = part.Write(content)
	require.NoError(e.t, err)
	require.NoError(e.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return e.serve(req, token)
}

func (e *testEnv) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp util.ErrorResponse
	decode(t, rec, &resp)
	return resp.Code
}

func (e *testEnv) track(id string) *models.Track {
	e.t.Helper()
	var tr models.Track
	require.NoError(e.t, e.db.Unscoped().First(&tr, "id = ?", id).Error)
	return &tr
}

// waitForNotification polls until recipientID has a notification of type kind
func (e *testEnv) waitForNotification(recipientID string, kind models.NotificationType) bool {
	e.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		e.db.Model(&models.Notification{}).
			Where("recipient_id = ? AND type = ?", recipientID, kind).
			Count(&count)
		if count > 0 {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}
