package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/soundbay/backend/internal/models"
	"gorm.io/gorm"
)

// UserRepository handles all database operations for users and their credentials
type UserRepository interface {
	// User CRUD
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, userID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, userID string) error

	// Profile
	UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) (*models.Profile, error)
	ChangeUsername(ctx context.Context, userID, username string) error

	// Queries
	Search(ctx context.Context, query string, page Page) ([]models.User, error)
	GetMany(ctx context.Context, ids []string) ([]models.User, error)
	ListActive(ctx context.Context, afterID string, limit int) ([]models.User, error)
	List(ctx context.Context, filter UserFilter, page Page) ([]models.User, int64, error)
	Count(ctx context.Context) (int64, error)

	// Admin
	SetBanned(ctx context.Context, userID string, banned bool, reason string) error
	SetAdmin(ctx context.Context, userID string, admin bool) error
	TouchLastActive(ctx context.Context, userID string, at time.Time) error

	// OAuth and password reset
	GetOAuthAccount(ctx context.Context, provider, providerUserID string) (*models.OAuthAccount, error)
	SaveOAuthAccount(ctx context.Context, account *models.OAuthAccount) error
	CreatePasswordReset(ctx context.Context, reset *models.PasswordReset) error
	GetPasswordReset(ctx context.Context, token string) (*models.PasswordReset, error)
	ConsumePasswordReset(ctx context.Context, resetID, userID, passwordHash string) error
}

// UserFilter narrows admin user listings
type UserFilter struct {
	Query  string
	Banned *bool
	Admin  *bool
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts the user and its profile, enforcing unique email and username
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user == nil || user.Email == "" || user.Username == "" {
		return ErrInvalidInput
	}
	email := strings.ToLower(strings.TrimSpace(user.Email))
	username := strings.ToLower(strings.TrimSpace(user.Username))

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Unscoped().Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUserExists
		}
		if err := tx.Unscoped().Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		if user.Profile == nil {
			user.Profile = &models.Profile{DisplayName: user.Username}
		}
		return tx.Create(user).Error
	})
}

func (r *userRepository) first(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Profile").Where(query, args...).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Get(ctx context.Context, userID string) (*models.User, error) {
	return r.first(ctx, "id = ?", userID)
}

// GetByEmail is case-insensitive; emails are stored lowercase
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, "username = ?", strings.ToLower(strings.TrimSpace(username)))
}

// GetByLogin accepts either an email or a username
func (r *userRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if strings.Contains(login, "@") {
		return r.first(ctx, "email = ?", login)
	}
	return r.first(ctx, "username = ?", login)
}

func (r *userRepository) Save(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Omit("Profile").Save(user).Error
}

func (r *userRepository) UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ?", userID).First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			profile = models.Profile{UserID: userID}
			if err := tx.Create(&profile).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		return tx.Model(&profile).Updates(fields).Error
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *userRepository) ChangeUsername(ctx context.Context, userID, username string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Unscoped().Model(&models.User{}).
			Where("username = ? AND id <> ?", username, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		res := tx.Model(&models.User{}).Where("id = ?", userID).Update("username", username)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// Search matches username or display name, skipping banned accounts
func (r *userRepository) Search(ctx context.Context, query string, page Page) ([]models.User, error) {
	page = page.Normalize()
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	var users []models.User
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Joins("LEFT JOIN profiles ON profiles.user_id = users.id").
		Where("users.is_banned = ?", false).
		Where("LOWER(users.username) LIKE ? OR LOWER(profiles.display_name) LIKE ?", pattern, pattern).
		Order("users.follower_count DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&users).Error
	return users, err
}

// GetMany loads the unbanned users among ids in the order given
func (r *userRepository) GetMany(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var found []models.User
	if err := r.db.WithContext(ctx).Preload("Profile").
		Where("id IN ? AND is_banned = ?", ids, false).
		Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	out := make([]models.User, 0, len(found))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// ListActive pages through unbanned users by id, for reindexing
func (r *userRepository) ListActive(ctx context.Context, afterID string, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Preload("Profile").
		Where("id > ? AND is_banned = ?", afterID, false).
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func (r *userRepository) List(ctx context.Context, filter UserFilter, page Page) ([]models.User, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.User{})
	if filter.Query != "" {
		pattern := "%" + strings.ToLower(filter.Query) + "%"
		q = q.Where("username LIKE ? OR email LIKE ?", pattern, pattern)
	}
	if filter.Banned != nil {
		q = q.Where("is_banned = ?", *filter.Banned)
	}
	if filter.Admin != nil {
		q = q.Where("is_admin = ?", *filter.Admin)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []models.User
	err := q.Preload("Profile").Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&users).Error
	return users, total, err
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}

func (r *userRepository) updateUser(ctx context.Context, userID string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepository) SetBanned(ctx context.Context, userID string, banned bool, reason string) error {
	if !banned {
		reason = ""
	}
	return r.updateUser(ctx, userID, map[string]interface{}{"is_banned": banned, "banned_reason": reason})
}

func (r *userRepository) SetAdmin(ctx context.Context, userID string, admin bool) error {
	return r.updateUser(ctx, userID, map[string]interface{}{"is_admin": admin})
}

func (r *userRepository) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("last_active_at", at).Error
}

// Delete removes the user together with everything that references them
func (r *userRepository) Delete(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		var tracks []models.Track
		if err := tx.Where("user_id = ?", userID).Find(&tracks).Error; err != nil {
			return err
		}
		for i := range tracks {
			if err := deleteTrackCascade(tx, &tracks[i]); err != nil {
				return err
			}
		}

		if err := releaseLikes(tx, "user_id = ?", userID); err != nil {
			return err
		}
		if err := releaseReposts(tx, "user_id = ?", userID); err != nil {
			return err
		}
		if err := releaseFollows(tx, userID); err != nil {
			return err
		}
		if err := releaseComments(tx, userID); err != nil {
			return err
		}

		var playlistIDs []string
		if err := tx.Model(&models.Playlist{}).Where("user_id = ?", userID).Pluck("id", &playlistIDs).Error; err != nil {
			return err
		}
		if len(playlistIDs) > 0 {
			if err := tx.Where("playlist_id IN ?", playlistIDs).Delete(&models.PlaylistTrack{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", playlistIDs).Delete(&models.Playlist{}).Error; err != nil {
				return err
			}
		}

		deletes := []struct {
			model interface{}
			where string
		}{
			{&models.Notification{}, "recipient_id = ? OR actor_id = ?"},
			{&models.ListeningHistory{}, "user_id = ?"},
			{&models.OAuthAccount{}, "user_id = ?"},
			{&models.PasswordReset{}, "user_id = ?"},
			{&models.Profile{}, "user_id = ?"},
		}
		for _, d := range deletes {
			args := []interface{}{userID}
			if strings.Count(d.where, "?") == 2 {
				args = append(args, userID)
			}
			if err := tx.Where(d.where, args...).Delete(d.model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&user).Error
	})
}

func (r *userRepository) GetOAuthAccount(ctx context.Context, provider, providerUserID string) (*models.OAuthAccount, error) {
	var account models.OAuthAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_user_id = ?", provider, providerUserID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *userRepository) SaveOAuthAccount(ctx context.Context, account *models.OAuthAccount) error {
	return r.db.WithContext(ctx).Save(account).Error
}

func (r *userRepository) CreatePasswordReset(ctx context.Context, reset *models.PasswordReset) error {
	return r.db.WithContext(ctx).Create(reset).Error
}

func (r *userRepository) GetPasswordReset(ctx context.Context, token string) (*models.PasswordReset, error) {
	var reset models.PasswordReset
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&reset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reset, nil
}

// ConsumePasswordReset marks the token used and stores the new hash atomically
func (r *userRepository) ConsumePasswordReset(ctx context.Context, resetID, userID, passwordHash string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PasswordReset{}).Where("id = ? AND used = ?", resetID, false).Update("used", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidInput
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).Update("password_hash", passwordHash).Error
	})
}
