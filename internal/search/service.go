package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/soundbay/backend/internal/cache"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/telemetry"
	"go.uber.org/zap"
)

type Kind string

const (
	KindTracks Kind = "tracks"
	KindUsers  Kind = "users"
)

const (
	BackendElasticsearch = "elasticsearch"
	BackendDatabase      = "database"
)

var (
	ErrEmptyQuery  = errors.New("search query is empty")
	ErrUnknownKind = errors.New("unknown search type")
)

const reindexBatch = 200

// Results is one page of search matches
type Results struct {
	Query   string         `json:"query"`
	Type    Kind           `json:"type"`
	Tracks  []models.Track `json:"tracks,omitempty"`
	Users   []models.User  `json:"users,omitempty"`
	Total   int64          `json:"total"`
	Backend string         `json:"backend"`
}

// Service searches through Elasticsearch when configured and falls back to
// SQL LIKE queries otherwise or when the cluster errors.
type Service struct {
	client *Client
	tracks repository.TrackRepository
	users  repository.UserRepository
	hits   *hitCache
}

// NewService accepts a nil client and a nil store
func NewService(client *Client, tracks repository.TrackRepository, users repository.UserRepository, store cache.Store, ttl time.Duration) *Service {
	s := &Service{client: client, tracks: tracks, users: users}
	if store != nil && ttl > 0 {
		s.hits = &hitCache{store: store, ttl: ttl}
	}
	return s
}

func (s *Service) Enabled() bool { return s.client != nil }

// Client returns the Elasticsearch client, nil when disabled
func (s *Service) Client() *Client { return s.client }

func (s *Service) Search(ctx context.Context, query string, kind Kind, page repository.Page) (*Results, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if kind == "" {
		kind = KindTracks
	}
	if kind != KindTracks && kind != KindUsers {
		return nil, ErrUnknownKind
	}
	page = page.Normalize()

	ctx, span := telemetry.TraceSearch(ctx, string(kind), query, s.client == nil)
	defer span.End()

	if s.client != nil {
		res, err := s.searchIndex(ctx, query, kind, page)
		if err == nil {
			metrics.Get().SearchRequestsTotal.WithLabelValues(BackendElasticsearch, string(kind)).Inc()
			return res, nil
		}
		telemetry.RecordError(span, err)
		logger.Log.Warn("Elasticsearch query failed, using database search",
			zap.String("type", string(kind)), zap.Error(err))
	}

	metrics.Get().SearchRequestsTotal.WithLabelValues(BackendDatabase, string(kind)).Inc()
	return s.searchDatabase(ctx, query, kind, page)
}

func (s *Service) searchIndex(ctx context.Context, query string, kind Kind, page repository.Page) (*Results, error) {
	key := s.hits.key(kind, query, page.Limit, page.Offset)
	hits, ok := s.hits.get(ctx, key)
	if !ok {
		var err error
		if kind == KindTracks {
			hits, err = s.client.SearchTracks(ctx, query, page.Limit, page.Offset)
		} else {
			hits, err = s.client.SearchUsers(ctx, query, page.Limit, page.Offset)
		}
		if err != nil {
			return nil, err
		}
		s.hits.put(ctx, key, hits)
	}

	res := &Results{Query: query, Type: kind, Total: hits.Total, Backend: BackendElasticsearch}
	var err error
	if kind == KindTracks {
		res.Tracks, err = s.tracks.GetVisible(ctx, hits.IDs)
	} else {
		res.Users, err = s.users.GetMany(ctx, hits.IDs)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) searchDatabase(ctx context.Context, query string, kind Kind, page repository.Page) (*Results, error) {
	res := &Results{Query: query, Type: kind, Backend: BackendDatabase}
	if kind == KindTracks {
		tracks, total, err := s.tracks.Search(ctx, query, page)
		if err != nil {
			return nil, err
		}
		res.Tracks, res.Total = tracks, total
		return res, nil
	}
	users, err := s.users.Search(ctx, query, page)
	if err != nil {
		return nil, err
	}
	res.Users, res.Total = users, int64(len(users))
	return res, nil
}

// SyncTrack indexes a visible track and removes any other from the index
func (s *Service) SyncTrack(ctx context.Context, track *models.Track) error {
	if s.client == nil || track == nil {
		return nil
	}
	if !searchable(track) {
		return s.client.DeleteTrack(ctx, track.ID)
	}
	if track.User == nil {
		full, err := s.tracks.Get(ctx, track.ID)
		if err != nil {
			return err
		}
		track = full
	}
	return s.client.IndexTrack(ctx, TrackToDoc(track))
}

func (s *Service) RemoveTrack(ctx context.Context, trackID string) error {
	if s.client == nil {
		return nil
	}
	return s.client.DeleteTrack(ctx, trackID)
}

// SyncUser indexes a user, or removes a banned one
func (s *Service) SyncUser(ctx context.Context, user *models.User) error {
	if s.client == nil || user == nil {
		return nil
	}
	if user.IsBanned {
		return s.client.DeleteUser(ctx, user.ID)
	}
	return s.client.IndexUser(ctx, UserToDoc(user))
}

func (s *Service) RemoveUser(ctx context.Context, userID string) error {
	if s.client == nil {
		return nil
	}
	return s.client.DeleteUser(ctx, userID)
}

// SyncTrackAsync runs SyncTrack in the background, logging failures
func (s *Service) SyncTrackAsync(track *models.Track) {
	if s.client == nil || track == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.SyncTrack(ctx, track); err != nil {
			logger.Log.Warn("Failed to sync track to search index", logger.WithTrackID(track.ID), zap.Error(err))
		}
	}()
}

// ReindexStats counts documents written by Reindex
type ReindexStats struct {
	Tracks int `json:"tracks"`
	Users  int `json:"users"`
}

// Reindex ensures the indices exist and bulk-writes every visible track and
// active user
func (s *Service) Reindex(ctx context.Context) (ReindexStats, error) {
	var stats ReindexStats
	if s.client == nil {
		return stats, ErrUnavailable
	}
	if _, err := s.client.EnsureIndices(ctx); err != nil {
		return stats, err
	}

	after := ""
	for {
		tracks, err := s.tracks.ListApproved(ctx, after, reindexBatch)
		if err != nil {
			return stats, err
		}
		if len(tracks) == 0 {
			break
		}
		ids := make([]string, len(tracks))
		docs := make([]interface{}, len(tracks))
		for i := range tracks {
			ids[i] = tracks[i].ID
			docs[i] = TrackToDoc(&tracks[i])
		}
		if err := s.client.bulkIndex(ctx, IndexTracks, ids, docs); err != nil {
			return stats, err
		}
		stats.Tracks += len(tracks)
		after = tracks[len(tracks)-1].ID
	}

	after = ""
	for {
		users, err := s.users.ListActive(ctx, after, reindexBatch)
		if err != nil {
			return stats, err
		}
		if len(users) == 0 {
			break
		}
		ids := make([]string, len(users))
		docs := make([]interface{}, len(users))
		for i := range users {
			ids[i] = users[i].ID
			docs[i] = UserToDoc(&users[i])
		}
		if err := s.client.bulkIndex(ctx, IndexUsers, ids, docs); err != nil {
			return stats, err
		}
		stats.Users += len(users)
		after = users[len(users)-1].ID
	}

	logger.Log.Info("Search reindex complete", zap.Int("tracks", stats.Tracks), zap.Int("users", stats.Users))
	return stats, nil
}
