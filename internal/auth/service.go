package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/soundbay/backend/internal/cache"
	"github.com/soundbay/backend/internal/config"
	"github.com/soundbay/backend/internal/email"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserBanned         = errors.New("account is banned")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidUsername    = errors.New("username must be 3-30 characters of a-z, 0-9 or _")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

const (
	MinPasswordLength = 8
	PasswordResetTTL  = time.Hour
	challengeTTL      = 5 * time.Minute

	purposeTwoFactor = "2fa"
)

// Options configures a Service
type Options struct {
	JWTSecret  string
	TokenTTL   time.Duration
	TOTPIssuer string
	OAuth      *config.OAuthConfig
	// States holds OAuth state between redirect and callback
	States     cache.Store
	Mailer     email.Mailer
	HTTPClient *http.Client
}

// Service handles registration, login, tokens, OAuth, password reset and 2FA
type Service struct {
	users      repository.UserRepository
	jwtSecret  []byte
	tokenTTL   time.Duration
	totpIssuer string
	oauth      *config.OAuthConfig
	states     cache.Store
	mailer     email.Mailer
	httpClient *http.Client
	// provider name -> user info endpoint
	userInfoURLs map[string]string
	now          func() time.Time
}

func NewService(users repository.UserRepository, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.TOTPIssuer == "" {
		opts.TOTPIssuer = "Soundbay"
	}
	if opts.OAuth == nil {
		opts.OAuth = &config.OAuthConfig{}
	}
	if opts.States == nil {
		opts.States = cache.NewMemoryStore()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout:   10 * time.Second,
			Transport: telemetry.NewInstrumentedTransport(http.DefaultTransport),
		}
	}
	return &Service{
		users:      users,
		jwtSecret:  []byte(opts.JWTSecret),
		tokenTTL:   opts.TokenTTL,
		totpIssuer: opts.TOTPIssuer,
		oauth:      opts.OAuth,
		states:     opts.States,
		mailer:     opts.Mailer,
		httpClient: opts.HTTPClient,
		userInfoURLs: map[string]string{
			ProviderGoogle:  googleUserInfoURL,
			ProviderDiscord: discordUserInfoURL,
		},
		now: time.Now,
	}
}

// AuthResponse is returned by every successful sign-in
type AuthResponse struct {
	Token     string       `json:"token"`
	User      *models.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// LoginResult carries either a session or a pending 2FA challenge
type LoginResult struct {
	*AuthResponse
	TwoFactorRequired bool   `json:"two_factor_required,omitempty"`
	ChallengeToken    string `json:"challenge_token,omitempty"`
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	// Email or username
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Claims are the JWT claims for session and challenge tokens
type Claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	Purpose  string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Register creates a password account and signs it in
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.ToLower(strings.TrimSpace(req.Username))

	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return nil, ErrInvalidEmail
	}
	if !models.ValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if len(req.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}
	user := &models.User{
		Email:        emailAddr,
		Username:     username,
		PasswordHash: &hash,
		Profile:      &models.Profile{DisplayName: displayName},
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.Log.Info("User registered", logger.WithUserID(user.ID), zap.String("username", username))
	return s.IssueToken(user)
}

// Login checks a password against an email or username. Accounts with 2FA
// get a short-lived challenge token instead of a session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	user, err := s.users.GetByLogin(ctx, strings.TrimSpace(req.Login))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	// social-only accounts fail like a wrong password so login reveals nothing
	if !user.HasPassword() || !checkPassword(*user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}
	if user.IsBanned {
		return nil, ErrUserBanned
	}

	if user.TwoFactorEnabled {
		challenge, _, err := s.signToken(user, purposeTwoFactor, challengeTTL)
		if err != nil {
			return nil, err
		}
		return &LoginResult{TwoFactorRequired: true, ChallengeToken: challenge}, nil
	}

	s.touch(ctx, user)
	resp, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AuthResponse: resp}, nil
}

// IssueToken signs a session token for user
func (s *Service) IssueToken(user *models.User) (*AuthResponse, error) {
	token, expiresAt, err := s.signToken(user, "", s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

func (s *Service) signToken(user *models.User, purpose string, ttl time.Duration) (string, time.Time, error) {
	if len(s.jwtSecret) == 0 {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		Purpose:  purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *Service) parseToken(tokenString, purpose string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateToken resolves a session token to its user. Banned and deleted
// users are rejected even while the token is unexpired.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := s.parseToken(tokenString, "")
	if err != nil {
		return nil, err
	}
	user, err := s.users.Get(ctx, claims.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, ErrUserBanned
	}
	return user, nil
}

// RequestPasswordReset mails a reset link. Unknown addresses succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.IsBanned {
		return nil
	}

	token, err := randomToken(32)
	if err != nil {
		return err
	}
	reset := &models.PasswordReset{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: s.now().Add(PasswordResetTTL),
	}
	if err := s.users.CreatePasswordReset(ctx, reset); err != nil {
		return err
	}

	if s.mailer == nil {
		return nil
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		logger.Log.Warn("Failed to send password reset email", logger.WithUserID(user.ID), zap.Error(err))
		return err
	}
	return nil
}

// ResetPassword redeems a reset token. Works for social-login accounts too,
// which gain a password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	reset, err := s.users.GetPasswordReset(ctx, token)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}
	if !reset.Valid(s.now()) {
		return ErrInvalidResetToken
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.ConsumePasswordReset(ctx, reset.ID, reset.UserID, hash); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			return ErrInvalidResetToken
		}
		return err
	}
	logger.Log.Info("Password reset", logger.WithUserID(reset.UserID))
	return nil
}

// ChangePassword replaces the password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < MinPasswordLength {
		return ErrWeakPassword
	}
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasPassword() && !checkPassword(*user.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := hashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = &hash
	return s.users.Save(ctx, user)
}

func (s *Service) touch(ctx context.Context, user *models.User) {
	now := s.now()
	if err := s.users.TouchLastActive(ctx, user.ID, now); err != nil {
		logger.Log.Debug("Failed to update last active", logger.WithUserID(user.ID), zap.Error(err))
		return
	}
	user.LastActiveAt = &now
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
