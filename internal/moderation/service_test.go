package moderation

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recorder struct {
	mu       sync.Mutex
	notified []*models.Notification
	mailed   []string
	synced   []string
	removed  []string
}

func (r *recorder) Notify(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, n)
	return nil
}

func (r *recorder) SendPasswordReset(context.Context, string, string) error { return nil }

func (r *recorder) SendModerationResult(_ context.Context, to string, _ *models.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mailed = append(r.mailed, to)
	return nil
}

func (r *recorder) SyncTrack(_ context.Context, track *models.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced = append(r.synced, track.ID)
	return nil
}

func (r *recorder) RemoveTrack(_ context.Context, trackID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, trackID)
	return nil
}

func setup(t *testing.T) (*gorm.DB, *Service, *recorder) {
	t.Helper()
	db := testutil.NewDB(t)
	rec := &recorder{}
	return db, NewService(repository.NewTrackRepository(db), rec, rec, rec), rec
}

func pending(t *testing.T, db *gorm.DB, ownerID, title string) *models.Track {
	t.Helper()
	track := testutil.CreateTrack(t, db, ownerID, title)
	require.NoError(t, db.Model(track).Update("status", models.TrackPending).Error)
	return track
}

func TestApproveIndexesAndNotifies(t *testing.T) {
	db, svc, rec := setup(t)
	owner := testutil.CreateUser(t, db, "artist")
	mod := testutil.CreateUser(t, db, "mod")
	track := pending(t, db, owner.ID, "debut")

	d, err := svc.Approve(context.Background(), track.ID, mod.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrackPending, d.Previous)
	assert.Equal(t, models.TrackApproved, d.Track.Status)
	require.NotNil(t, d.Track.ModeratedBy)
	assert.Equal(t, mod.ID, *d.Track.ModeratedBy)

	assert.Equal(t, []string{track.ID}, rec.synced)
	assert.Empty(t, rec.removed)
	require.Len(t, rec.notified, 1)
	assert.Equal(t, models.NotifyTrackApproved, rec.notified[0].Type)
	assert.Equal(t, owner.ID, rec.notified[0].RecipientID)
	assert.Nil(t, rec.notified[0].ActorID)
	assert.Equal(t, []string{"artist@example.com"}, rec.mailed)

	_, err = svc.Approve(context.Background(), track.ID, mod.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestApproveRequiresFinishedProcessing(t *testing.T) {
	db, svc, rec := setup(t)
	owner := testutil.CreateUser(t, db, "artist")
	track := pending(t, db, owner.ID, "wip")
	require.NoError(t, db.Model(track).Update("processing_status", models.ProcessingFailed).Error)

	_, err := svc.Approve(context.Background(), track.ID, "")
	assert.ErrorIs(t, err, repository.ErrTrackNotReady)
	assert.Empty(t, rec.notified)

	_, err = svc.Approve(context.Background(), "missing", "")
	assert.ErrorIs(t, err, repository.ErrTrackNotFound)
}

func TestRejectRemovesFromIndex(t *testing.T) {
	db, svc, rec := setup(t)
	owner := testutil.CreateUser(t, db, "artist")
	track := testutil.CreateTrack(t, db, owner.ID, "live")

	_, err := svc.Reject(context.Background(), track.ID, "  ", "")
	assert.ErrorIs(t, err, ErrReasonRequired)

	d, err := svc.Reject(context.Background(), track.ID, strings.Repeat("x", maxReasonLength+50), "")
	require.NoError(t, err)
	assert.Equal(t, models.TrackApproved, d.Previous)
	assert.Equal(t, models.TrackRejected, d.Track.Status)
	assert.Len(t, d.Track.RejectionReason, maxReasonLength)
	assert.Nil(t, d.Track.ModeratedBy)

	assert.Equal(t, []string{track.ID}, rec.removed)
	require.Len(t, rec.notified, 1)
	assert.Equal(t, models.NotifyTrackRejected, rec.notified[0].Type)
}

func TestNilCollaborators(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(repository.NewTrackRepository(db), nil, nil, nil)
	owner := testutil.CreateUser(t, db, "artist")
	track := pending(t, db, owner.ID, "solo")

	d, err := svc.Approve(context.Background(), track.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.TrackApproved, d.Track.Status)
}
