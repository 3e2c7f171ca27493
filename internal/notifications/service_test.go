package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/testutil"
	"github.com/soundbay/backend/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	mu     sync.Mutex
	online map[string]bool
	sent   map[string][]*websocket.Message
}

func newFakePusher(online ...string) *fakePusher {
	p := &fakePusher{online: map[string]bool{}, sent: map[string][]*websocket.Message{}}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePusher) SendToUser(userID string, message *websocket.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent[userID] = append(p.sent[userID], message)
}

func (p *fakePusher) IsUserOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePusher) messages(userID string) []*websocket.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*websocket.Message(nil), p.sent[userID]...)
}

func TestNotifyStoresAndPushes(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	fan := testutil.CreateUser(t, db, "fan")
	track := testutil.CreateTrack(t, db, owner.ID, "song")

	pusher := newFakePusher(owner.ID)
	svc := NewService(repository.NewNotificationRepository(db), pusher)

	require.NoError(t, svc.Notify(context.Background(), Liked(fan, track)))

	items, total, err := svc.List(context.Background(), owner.ID, false, repository.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, models.NotifyLike, items[0].Type)
	assert.Contains(t, items[0].Message, "fan liked")

	msgs := pusher.messages(owner.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, websocket.MessageTypeNotification, msgs[0].Type)
	assert.Equal(t, websocket.MessageTypeNotificationCount, msgs[1].Type)
	count, ok := msgs[1].Payload.(websocket.NotificationCountPayload)
	require.True(t, ok)
	assert.Equal(t, int64(1), count.UnreadCount)
}

func TestNotifyOfflineOnlyStores(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	fan := testutil.CreateUser(t, db, "fan")

	pusher := newFakePusher()
	svc := NewService(repository.NewNotificationRepository(db), pusher)

	require.NoError(t, svc.Notify(context.Background(), Followed(fan, owner.ID)))
	assert.Empty(t, pusher.messages(owner.ID))

	count, err := svc.UnreadCount(context.Background(), owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNotifyDropsSelfNotifications(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	track := testutil.CreateTrack(t, db, owner.ID, "song")

	svc := NewService(repository.NewNotificationRepository(db), nil)
	require.NoError(t, svc.Notify(context.Background(), Liked(owner, track)))

	count, err := svc.UnreadCount(context.Background(), owner.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestModeratedHasNoActor(t *testing.T) {
	track := &models.Track{ID: "t1", UserID: "u1", Title: "Song", Status: models.TrackRejected, RejectionReason: "clipping"}
	n := Moderated(track)
	assert.Nil(t, n.ActorID)
	assert.Equal(t, models.NotifyTrackRejected, n.Type)
	assert.Contains(t, n.Message, "clipping")

	track.Status = models.TrackApproved
	assert.Equal(t, models.NotifyTrackApproved, Moderated(track).Type)
}

func TestMarkAllReadPushesCount(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	fan := testutil.CreateUser(t, db, "fan")

	pusher := newFakePusher()
	svc := NewService(repository.NewNotificationRepository(db), pusher)
	ctx := context.Background()
	require.NoError(t, svc.Notify(ctx, Followed(fan, owner.ID)))

	pusher.online[owner.ID] = true
	n, err := svc.MarkAllRead(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msgs := pusher.messages(owner.ID)
	require.Len(t, msgs, 1)
	count := msgs[0].Payload.(websocket.NotificationCountPayload)
	assert.Zero(t, count.UnreadCount)
}

func TestPrunerRemovesOldReadNotifications(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	fan := testutil.CreateUser(t, db, "fan")
	repo := repository.NewNotificationRepository(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-100 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)
	for _, readAt := range []*time.Time{&old, &recent, nil} {
		n := Followed(fan, owner.ID)
		n.ReadAt = readAt
		require.NoError(t, repo.Create(ctx, n))
	}

	p := NewPruner(repo, 0, 0)
	assert.Equal(t, int64(1), p.PruneOnce(ctx))

	_, total, err := repo.List(ctx, owner.ID, false, repository.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
