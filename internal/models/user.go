package models

import (
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// ValidUsername reports whether name is 3..30 chars of [a-z0-9_]
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// User holds credentials and account state. Display data lives on Profile.
type User struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Username string `gorm:"uniqueIndex;size:30;not null" json:"username"`

	// Nil for OAuth-only accounts
	PasswordHash  *string `gorm:"type:text" json:"-"`
	EmailVerified bool    `gorm:"default:false" json:"email_verified"`

	IsAdmin      bool   `gorm:"default:false" json:"is_admin"`
	IsBanned     bool   `gorm:"default:false;index" json:"is_banned"`
	BannedReason string `gorm:"type:text" json:"banned_reason,omitempty"`

	TwoFactorEnabled bool    `gorm:"default:false" json:"two_factor_enabled"`
	TwoFactorSecret  *string `gorm:"type:text" json:"-"`
	// JSON array of SHA-256 hashed backup codes
	BackupCodes *string `gorm:"type:text" json:"-"`

	FollowerCount  int `gorm:"default:0" json:"follower_count"`
	FollowingCount int `gorm:"default:0" json:"following_count"`
	TrackCount     int `gorm:"default:0" json:"track_count"`

	LastActiveAt *time.Time `json:"last_active_at,omitempty"`

	Profile *Profile `gorm:"foreignKey:UserID" json:"profile,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = newID()
	}
	return nil
}

// BeforeSave keeps email and username lowercase so unique indexes are
// case-insensitive on every dialect.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	return nil
}

// HasPassword reports whether the account can log in natively
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Profile is the public face of a user.
type Profile struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	UserID      string      `gorm:"uniqueIndex;size:36;not null" json:"user_id"`
	DisplayName string      `gorm:"size:60" json:"display_name"`
	Bio         string      `gorm:"size:500" json:"bio"`
	Location    string      `gorm:"size:100" json:"location"`
	Website     string      `gorm:"size:255" json:"website"`
	AvatarURL   string      `json:"avatar_url"`
	HeaderURL   string      `json:"header_url"`
	Genres      StringArray `json:"genres"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = newID()
	}
	return nil
}

// OAuthAccount links a provider identity to a user
type OAuthAccount struct {
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	UserID         string `gorm:"size:36;not null;index" json:"user_id"`
	Provider       string `gorm:"size:20;not null;uniqueIndex:idx_oauth_provider_user" json:"provider"`
	ProviderUserID string `gorm:"not null;uniqueIndex:idx_oauth_provider_user" json:"provider_user_id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	AvatarURL      string `json:"avatar_url"`

	AccessToken  *string    `gorm:"type:text" json:"-"`
	RefreshToken *string    `gorm:"type:text" json:"-"`
	TokenExpiry  *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *OAuthAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = newID()
	}
	return nil
}

// PasswordReset is a single-use reset token
type PasswordReset struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;not null;index" json:"user_id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Used      bool      `gorm:"default:false" json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *PasswordReset) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newID()
	}
	return nil
}

// Valid reports whether the token can still be redeemed at now
func (r *PasswordReset) Valid(now time.Time) bool {
	return !r.Used && now.Before(r.ExpiresAt)
}
