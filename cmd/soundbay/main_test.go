package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soundbay/backend/internal/config"
	"github.com/soundbay/backend/internal/database"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment: "test",
		APIBaseURL:  "http://api.test",
		Database:    config.DatabaseConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "cli.db")},
		Auth:        config.AuthConfig{JWTSecret: "cli-secret", TokenTTL: time.Hour},
		Storage:     config.StorageConfig{Driver: "local", LocalDir: filepath.Join(dir, "objects")},
		Search:      config.SearchConfig{CacheTTL: time.Minute},
		Audio: config.AudioConfig{
			Workers:     1,
			QueueSize:   2,
			Timeout:     time.Minute,
			MaxUploadMB: 10,
			TempDir:     filepath.Join(dir, "tmp"),
		},
	}
}

type harness struct {
	t   *testing.T
	cfg *config.Config
	db  *gorm.DB
}

func newHarness(t *testing.T) *harness {
	cfg := testConfig(t)
	db, err := database.OpenSQLite(cfg.Database.SQLitePath)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &harness{t: t, cfg: cfg, db: db}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	a := newApp(&out)
	a.cfg = h.cfg
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	_ = a.close(context.Background())
	return out.String(), err
}

func TestRenderTable(t *testing.T) {
	got := renderTable(
		[]string{"Username", "Tracks"},
		[][]string{{"alice", "12"}, {"bob"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	assert.Contains(t, got, "╭")
	assert.Contains(t, got, "USERNAME")
	assert.Contains(t, got, "alice")
	assert.Contains(t, got, "bob")
	assert.Equal(t, "", renderTable(nil, nil, nil))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "2:05", formatDuration(125.4))
	assert.Equal(t, "-", formatDuration(0))
	assert.Equal(t, "-", formatTime(time.Time{}))
	assert.Equal(t, "yes", yesNo(true))
}

func TestRejectsUnknownOutputFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("tracks", "list", "--output", "yaml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestAdminPromoteAndRevoke(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.db, "dj_kim")

	out, err := h.run("admin", "promote", "@dj_kim")
	require.NoError(t, err)
	assert.Contains(t, out, "dj_kim is now an admin")

	var got models.User
	require.NoError(t, h.db.First(&got, "id = ?", user.ID).Error)
	assert.True(t, got.IsAdmin)

	_, err = h.run("admin", "revoke", "dj_kim")
	require.NoError(t, err)
	require.NoError(t, h.db.First(&got, "id = ?", user.ID).Error)
	assert.False(t, got.IsAdmin)

	_, err = h.run("admin", "promote", "nobody")
	assert.ErrorContains(t, err, "nobody")
}

func TestUsersBanAndList(t *testing.T) {
	h := newHarness(t)
	testutil.CreateUser(t, h.db, "spammer")
	testutil.CreateUser(t, h.db, "listener")

	out, err := h.run("users", "ban", "spammer", "--reason", "link spam", "-o", "json")
	require.NoError(t, err)
	var banned models.User
	require.NoError(t, json.Unmarshal([]byte(out), &banned))
	assert.True(t, banned.IsBanned)
	assert.Equal(t, "link spam", banned.BannedReason)

	out, err = h.run("users", "list", "--banned", "-o", "json")
	require.NoError(t, err)
	var listing struct {
		Users []models.User `json:"users"`
		Total int64         `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	require.Len(t, listing.Users, 1)
	assert.Equal(t, "spammer", listing.Users[0].Username)

	_, err = h.run("users", "unban", "spammer")
	require.NoError(t, err)
	out, err = h.run("users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "listener")
	assert.Contains(t, out, "spammer")
}

func TestTracksModeration(t *testing.T) {
	h := newHarness(t)
	artist := testutil.CreateUser(t, h.db, "artist")
	mod := testutil.CreateUser(t, h.db, "mod")
	require.NoError(t, h.db.Model(mod).Update("is_admin", true).Error)
	track := testutil.CreateTrack(t, h.db, artist.ID, "night-drive")
	require.NoError(t, h.db.Model(track).Update("status", models.TrackPending).Error)

	out, err := h.run("tracks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "night-drive")
	assert.Contains(t, out, "2:00")

	_, err = h.run("tracks", "reject", track.ID)
	assert.Error(t, err)

	_, err = h.run("tracks", "approve", track.ID, "--as", "artist")
	assert.ErrorContains(t, err, "not an admin")

	out, err = h.run("tracks", "approve", track.ID, "--as", "mod")
	require.NoError(t, err)
	assert.Contains(t, out, `Approved "night-drive" (was pending)`)

	var got models.Track
	require.NoError(t, h.db.First(&got, "id = ?", track.ID).Error)
	assert.Equal(t, models.TrackApproved, got.Status)
	require.NotNil(t, got.ModeratedBy)
	assert.Equal(t, mod.ID, *got.ModeratedBy)

	out, err = h.run("tracks", "reject", track.ID, "--reason", "uncleared sample")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Rejected"))

	out, err = h.run("tracks", "list", "--status", "rejected", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "uncleared sample")

	_, err = h.run("tracks", "list", "--status", "deleted")
	assert.ErrorContains(t, err, "unknown status")
}

func TestRetranscodeWithoutOriginal(t *testing.T) {
	h := newHarness(t)
	artist := testutil.CreateUser(t, h.db, "artist")
	track := testutil.CreateTrack(t, h.db, artist.ID, "no-original")

	_, err := h.run("tracks", "retranscode", track.ID, "--wait=false")
	assert.ErrorContains(t, err, "no retained original")
}

func TestSearchReindexWithoutElasticsearch(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("search", "reindex")
	assert.ErrorContains(t, err, "not configured")
}

func TestSeedTestAndClean(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("seed", "--test")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")

	var admins int64
	h.db.Model(&models.User{}).Where("is_admin = ?", true).Count(&admins)
	assert.Equal(t, int64(1), admins)

	_, err = h.run("seed", "--test", "--clean")
	assert.Error(t, err)

	_, err = h.run("seed", "--clean")
	require.NoError(t, err)
	var users int64
	h.db.Unscoped().Model(&models.User{}).Count(&users)
	assert.Zero(t, users)
}

func TestMigrate(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("migrate", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","driver":"sqlite"}`, out)
}
