// Package seed fills a database with fake users, tracks and activity for
// development and end-to-end tests.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPassword is the password of every seeded account
const DefaultPassword = "password123"

// SeedEmailDomain marks seeded accounts so Clean can find them
const SeedEmailDomain = "seed.soundbay.test"

var genres = []string{"house", "techno", "ambient", "drum & bass", "hip-hop", "trap", "lo-fi", "jazz", "synthwave", "folk"}

// Counts sizes a dev seed
type Counts struct {
	Users     int
	Tracks    int
	Follows   int
	Likes     int
	Reposts   int
	Comments  int
	Playlists int
	Plays     int
}

// DevCounts is the default size of `soundbay seed`
var DevCounts = Counts{
	Users:     40,
	Tracks:    160,
	Follows:   300,
	Likes:     800,
	Reposts:   120,
	Comments:  400,
	Playlists: 30,
	Plays:     1500,
}

// Seeder handles database seeding operations
type Seeder struct {
	db           *gorm.DB
	passwordHash string
	now          time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db, now: time.Now().UTC()}
}

func (s *Seeder) hash() (string, error) {
	if s.passwordHash != "" {
		return s.passwordHash, nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	s.passwordHash = string(h)
	return s.passwordHash, nil
}

// SeedDev seeds a development database with random data
func (s *Seeder) SeedDev(ctx context.Context, counts Counts) error {
	users, err := s.seedUsers(ctx, counts.Users)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}
	tracks, err := s.seedTracks(ctx, users, counts.Tracks)
	if err != nil {
		return fmt.Errorf("failed to seed tracks: %w", err)
	}
	if err := s.seedFollows(ctx, users, counts.Follows); err != nil {
		return fmt.Errorf("failed to seed follows: %w", err)
	}
	if err := s.seedLikesAndReposts(ctx, users, tracks, counts.Likes, counts.Reposts); err != nil {
		return fmt.Errorf("failed to seed likes: %w", err)
	}
	if err := s.seedComments(ctx, users, tracks, counts.Comments); err != nil {
		return fmt.Errorf("failed to seed comments: %w", err)
	}
	if err := s.seedPlaylists(ctx, users, tracks, counts.Playlists); err != nil {
		return fmt.Errorf("failed to seed playlists: %w", err)
	}
	if err := s.seedPlays(ctx, users, tracks, counts.Plays); err != nil {
		return fmt.Errorf("failed to seed plays: %w", err)
	}
	if err := s.Recount(ctx); err != nil {
		return err
	}

	logger.Log.Info("Seeded development data",
		zap.Int("users", len(users)),
		zap.Int("tracks", len(tracks)))
	return nil
}

// SeedTest creates the fixed accounts end-to-end tests log in with. It is
// idempotent.
func (s *Seeder) SeedTest(ctx context.Context) ([]models.User, error) {
	specs := []struct {
		username    string
		displayName string
		admin       bool
	}{
		{"alice", "Alice Smith", true},
		{"bob", "Bob Johnson", false},
		{"charlie", "Charlie Brown", false},
		{"diana", "Diana Prince", false},
		{"eve", "Eve Wilson", false},
	}

	hash, err := s.hash()
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(specs))
	for _, spec := range specs {
		var user models.User
		err := s.db.WithContext(ctx).Preload("Profile").Where("username = ?", spec.username).First(&user).Error
		if err == nil {
			users = append(users, user)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		user = models.User{
			Email:         spec.username + "@" + SeedEmailDomain,
			Username:      spec.username,
			PasswordHash:  &hash,
			EmailVerified: true,
			IsAdmin:       spec.admin,
			Profile: &models.Profile{
				DisplayName: spec.displayName,
				Genres:      models.StringArray{pick(genres)},
			},
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", spec.username, err)
		}
		users = append(users, user)
	}

	var existing int64
	s.db.WithContext(ctx).Model(&models.Track{}).Where("user_id = ?", users[0].ID).Count(&existing)
	if existing == 0 {
		if _, err := s.seedTracks(ctx, users, len(users)*2); err != nil {
			return nil, err
		}
		if err := s.Recount(ctx); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// Clean removes every seeded account and everything hanging off it
func (s *Seeder) Clean(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seeded := tx.Model(&models.User{}).Unscoped().Select("id").Where("email LIKE ?", "%@"+SeedEmailDomain)
		seededTracks := tx.Model(&models.Track{}).Unscoped().Select("id").Where("user_id IN (?)", seeded)
		seededPlaylists := tx.Model(&models.Playlist{}).Unscoped().Select("id").Where("user_id IN (?)", seeded)

		steps := []struct {
			name  string
			query *gorm.DB
		}{
			{"listening history", tx.Where("user_id IN (?) OR track_id IN (?)", seeded, seededTracks).Delete(&models.ListeningHistory{})},
			{"plays", tx.Where("track_id IN (?)", seededTracks).Delete(&models.Play{})},
			{"playlist tracks", tx.Where("playlist_id IN (?) OR track_id IN (?)", seededPlaylists, seededTracks).Delete(&models.PlaylistTrack{})},
			{"playlists", tx.Unscoped().Where("user_id IN (?)", seeded).Delete(&models.Playlist{})},
			{"comments", tx.Where("user_id IN (?) OR track_id IN (?)", seeded, seededTracks).Delete(&models.Comment{})},
			{"likes", tx.Where("user_id IN (?) OR track_id IN (?)", seeded, seededTracks).Delete(&models.Like{})},
			{"reposts", tx.Where("user_id IN (?) OR track_id IN (?)", seeded, seededTracks).Delete(&models.Repost{})},
			{"follows", tx.Where("follower_id IN (?) OR following_id IN (?)", seeded, seeded).Delete(&models.Follow{})},
			{"reports", tx.Where("reporter_id IN (?)", seeded).Delete(&models.Report{})},
			{"notifications", tx.Where("recipient_id IN (?) OR actor_id IN (?)", seeded, seeded).Delete(&models.Notification{})},
			{"tracks", tx.Unscoped().Where("user_id IN (?)", seeded).Delete(&models.Track{})},
			{"profiles", tx.Where("user_id IN (?)", seeded).Delete(&models.Profile{})},
			{"users", tx.Unscoped().Where("email LIKE ?", "%@"+SeedEmailDomain).Delete(&models.User{})},
		}
		for _, step := range steps {
			if step.query.Error != nil {
				return fmt.Errorf("failed to clean %s: %w", step.name, step.query.Error)
			}
		}
		return nil
	})
}

// Recount rebuilds every denormalised counter from the pivot tables
func (s *Seeder) Recount(ctx context.Context) error {
	stmts := []string{
		`UPDATE users SET
			follower_count = (SELECT COUNT(*) FROM follows WHERE follows.following_id = users.id),
			following_count = (SELECT COUNT(*) FROM follows WHERE follows.follower_id = users.id),
			track_count = (SELECT COUNT(*) FROM tracks WHERE tracks.user_id = users.id AND tracks.deleted_at IS NULL)`,
		`UPDATE tracks SET
			like_count = (SELECT COUNT(*) FROM likes WHERE likes.track_id = tracks.id),
			repost_count = (SELECT COUNT(*) FROM reposts WHERE reposts.track_id = tracks.id),
			comment_count = (SELECT COUNT(*) FROM comments WHERE comments.track_id = tracks.id AND comments.is_deleted = false)`,
		`UPDATE playlists SET
			track_count = (SELECT COUNT(*) FROM playlist_tracks WHERE playlist_tracks.playlist_id = playlists.id)`,
	}
	for _, stmt := range stmts {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to recount: %w", err)
		}
	}
	return nil
}

func (s *Seeder) seedUsers(ctx context.Context, count int) ([]models.User, error) {
	hash, err := s.hash()
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, count)
	taken := make(map[string]bool)
	for len(users) < count {
		username := fakeUsername()
		if taken[username] {
			continue
		}
		var exists int64
		s.db.WithContext(ctx).Model(&models.User{}).Unscoped().Where("username = ?", username).Count(&exists)
		if exists > 0 {
			taken[username] = true
			continue
		}
		taken[username] = true

		lastActive := gofakeit.DateRange(s.now.AddDate(0, 0, -30), s.now)
		user := models.User{
			Email:         username + "@" + SeedEmailDomain,
			Username:      username,
			PasswordHash:  &hash,
			EmailVerified: true,
			LastActiveAt:  &lastActive,
			Profile: &models.Profile{
				DisplayName: truncate(gofakeit.Name(), 60),
				Bio:         truncate(gofakeit.HipsterSentence(), 500),
				Location:    truncate(fmt.Sprintf("%s, %s", gofakeit.City(), gofakeit.Country()), 100),
				Genres:      models.StringArray{pick(genres), pick(genres)}.Normalize(),
			},
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		users = append(users, user)
	}
	logger.Log.Info("Created seed users", zap.Int("count", len(users)))
	return users, nil
}

func (s *Seeder) seedTracks(ctx context.Context, users []models.User, count int) ([]models.Track, error) {
	if len(users) == 0 {
		return nil, nil
	}
	tracks := make([]models.Track, 0, count)
	for i := 0; i < count; i++ {
		owner := users[i%len(users)]
		title := truncate(capitalize(gofakeit.Adjective()+" "+gofakeit.Noun()), 120)
		created := gofakeit.DateRange(s.now.AddDate(0, -3, 0), s.now)

		status := models.TrackApproved
		switch roll := gofakeit.Number(1, 20); {
		case roll == 1:
			status = models.TrackRejected
		case roll <= 3:
			status = models.TrackPending
		}

		key := fmt.Sprintf("audio/%d/%02d/%s/%s.mp3", created.Year(), created.Month(), owner.ID, gofakeit.UUID())
		track := models.Track{
			UserID:           owner.ID,
			Title:            title,
			Description:      gofakeit.HipsterSentence(),
			Genre:            pick(genres),
			Tags:             models.StringArray{strings.ToLower(gofakeit.Noun()), strings.ToLower(gofakeit.Adjective())}.Normalize(),
			IsPublic:         gofakeit.Number(1, 10) > 1,
			Status:           status,
			ProcessingStatus: models.ProcessingComplete,
			OriginalFilename: strings.ReplaceAll(strings.ToLower(title), " ", "_") + ".wav",
			AudioKey:         key,
			DurationSeconds:  float64(gofakeit.Number(60, 420)),
			Bitrate:          192,
			CreatedAt:        created,
		}
		if status == models.TrackRejected {
			track.RejectionReason = "seeded rejection"
		}
		if err := s.db.WithContext(ctx).Create(&track).Error; err != nil {
			return nil, fmt.Errorf("failed to create track: %w", err)
		}
		tracks = append(tracks, track)
	}
	logger.Log.Info("Created seed tracks", zap.Int("count", len(tracks)))
	return tracks, nil
}

func (s *Seeder) seedFollows(ctx context.Context, users []models.User, count int) error {
	if len(users) < 2 {
		return nil
	}
	follows := make([]models.Follow, 0, count)
	for i := 0; i < count; i++ {
		a, b := pickUser(users), pickUser(users)
		if a.ID == b.ID {
			continue
		}
		follows = append(follows, models.Follow{
			FollowerID:  a.ID,
			FollowingID: b.ID,
			CreatedAt:   gofakeit.DateRange(s.now.AddDate(0, -2, 0), s.now),
		})
	}
	return s.insertIgnoringDuplicates(ctx, &follows)
}

func (s *Seeder) seedLikesAndReposts(ctx context.Context, users []models.User, tracks []models.Track, likes, reposts int) error {
	visible := approved(tracks)
	if len(visible) == 0 {
		return nil
	}
	likeRows := make([]models.Like, 0, likes)
	for i := 0; i < likes; i++ {
		likeRows = append(likeRows, models.Like{
			UserID:    pickUser(users).ID,
			TrackID:   visible[gofakeit.Number(0, len(visible)-1)].ID,
			CreatedAt: gofakeit.DateRange(s.now.AddDate(0, 0, -14), s.now),
		})
	}
	if err := s.insertIgnoringDuplicates(ctx, &likeRows); err != nil {
		return err
	}

	repostRows := make([]models.Repost, 0, reposts)
	for i := 0; i < reposts; i++ {
		user := pickUser(users)
		track := visible[gofakeit.Number(0, len(visible)-1)]
		if track.UserID == user.ID {
			continue
		}
		repostRows = append(repostRows, models.Repost{
			UserID:    user.ID,
			TrackID:   track.ID,
			Caption:   truncate(gofakeit.HipsterSentence(), 280),
			CreatedAt: gofakeit.DateRange(s.now.AddDate(0, 0, -14), s.now),
		})
	}
	return s.insertIgnoringDuplicates(ctx, &repostRows)
}

func (s *Seeder) seedComments(ctx context.Context, users []models.User, tracks []models.Track, count int) error {
	visible := approved(tracks)
	if len(visible) == 0 {
		return nil
	}
	var parents []models.Comment
	for i := 0; i < count; i++ {
		track := visible[gofakeit.Number(0, len(visible)-1)]
		comment := models.Comment{
			TrackID:   track.ID,
			UserID:    pickUser(users).ID,
			Body:      gofakeit.HipsterSentence(),
			CreatedAt: gofakeit.DateRange(track.CreatedAt, s.now),
		}
		if gofakeit.Number(1, 3) == 1 {
			at := float64(gofakeit.Number(0, int(track.DurationSeconds)))
			comment.TimestampSeconds = &at
		}
		// roughly one in four is a reply to an earlier top-level comment on the same track
		if len(parents) > 0 && gofakeit.Number(1, 4) == 1 {
			parent := parents[gofakeit.Number(0, len(parents)-1)]
			comment.TrackID = parent.TrackID
			comment.ParentID = &parent.ID
			comment.TimestampSeconds = nil
			if comment.CreatedAt.Before(parent.CreatedAt) {
				comment.CreatedAt = parent.CreatedAt.Add(time.Minute)
			}
		}
		if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
			return fmt.Errorf("failed to create comment: %w", err)
		}
		if comment.ParentID == nil {
			parents = append(parents, comment)
		}
	}
	return nil
}

func (s *Seeder) seedPlaylists(ctx context.Context, users []models.User, tracks []models.Track, count int) error {
	visible := approved(tracks)
	for i := 0; i < count; i++ {
		playlist := models.Playlist{
			UserID:      pickUser(users).ID,
			Title:       truncate(capitalize(gofakeit.Adjective()+" "+pick(genres)), 120),
			Description: gofakeit.HipsterSentence(),
			IsPublic:    gofakeit.Number(1, 4) > 1,
		}
		if err := s.db.WithContext(ctx).Create(&playlist).Error; err != nil {
			return fmt.Errorf("failed to create playlist: %w", err)
		}

		size := gofakeit.Number(0, 12)
		seen := make(map[string]bool)
		var entries []models.PlaylistTrack
		var duration float64
		for j := 0; j < size && len(visible) > 0; j++ {
			track := visible[gofakeit.Number(0, len(visible)-1)]
			if seen[track.ID] {
				continue
			}
			seen[track.ID] = true
			entries = append(entries, models.PlaylistTrack{
				PlaylistID: playlist.ID,
				TrackID:    track.ID,
				Position:   len(entries),
				AddedAt:    s.now,
			})
			duration += track.DurationSeconds
		}
		if len(entries) == 0 {
			continue
		}
		if err := s.db.WithContext(ctx).Create(&entries).Error; err != nil {
			return fmt.Errorf("failed to fill playlist: %w", err)
		}
		if err := s.db.WithContext(ctx).Model(&playlist).Update("total_duration", duration).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedPlays(ctx context.Context, users []models.User, tracks []models.Track, count int) error {
	visible := approved(tracks)
	if len(visible) == 0 {
		return nil
	}
	plays := make(map[string]int)
	rows := make([]models.ListeningHistory, 0, count)
	counted := make([]models.Play, 0, count)
	for i := 0; i < count; i++ {
		track := visible[gofakeit.Number(0, len(visible)-1)]
		playedAt := gofakeit.DateRange(s.now.AddDate(0, 0, -14), s.now)
		rows = append(rows, models.ListeningHistory{
			UserID:          pickUser(users).ID,
			TrackID:         track.ID,
			PlayedAt:        playedAt,
			ProgressSeconds: float64(gofakeit.Number(0, int(track.DurationSeconds))),
		})
		counted = append(counted, models.Play{TrackID: track.ID, PlayedAt: playedAt})
		plays[track.ID]++
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&rows, 200).Error; err != nil {
		return fmt.Errorf("failed to create history: %w", err)
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&counted, 200).Error; err != nil {
		return fmt.Errorf("failed to create plays: %w", err)
	}
	for trackID, n := range plays {
		if err := s.db.WithContext(ctx).Model(&models.Track{}).Where("id = ?", trackID).
			UpdateColumn("play_count", gorm.Expr("play_count + ?", n)).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) insertIgnoringDuplicates(ctx context.Context, rows interface{}) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 200).Error
}

func approved(tracks []models.Track) []models.Track {
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Status == models.TrackApproved && t.IsPublic {
			out = append(out, t)
		}
	}
	return out
}

func pick(values []string) string {
	return values[gofakeit.Number(0, len(values)-1)]
}

func pickUser(users []models.User) models.User {
	return users[gofakeit.Number(0, len(users)-1)]
}

// fakeUsername maps a fake handle onto the [a-z0-9_]{3,30} username alphabet
func fakeUsername() string {
	var b strings.Builder
	for _, r := range strings.ToLower(gofakeit.Username()) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	name := b.String()
	for len(name) < 3 {
		name += fmt.Sprint(gofakeit.Number(0, 9))
	}
	return truncate(name, 30)
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
