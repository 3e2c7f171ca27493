package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soundbay/backend/internal/cache"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	ProviderGoogle  = "google"
	ProviderDiscord = "discord"

	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	discordUserInfoURL = "https://discord.com/api/users/@me"

	oauthStateTTL = 10 * time.Minute
)

var (
	ErrProviderDisabled = errors.New("oauth provider is not configured")
	ErrInvalidState     = errors.New("invalid or expired oauth state")
	ErrNoProviderEmail  = errors.New("oauth provider did not return an email")
)

// OAuthUserInfo is the provider identity normalized across providers
type OAuthUserInfo struct {
	ID           string
	Email        string
	Name         string
	AvatarURL    string
	AccessToken  string
	RefreshToken string
	TokenExpiry  *time.Time
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type discordUserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

// OAuthURL starts a provider login, storing a one-time state in the cache
func (s *Service) OAuthURL(ctx context.Context, provider string) (string, error) {
	cfg := s.oauth.Provider(provider)
	if cfg == nil {
		return "", ErrProviderDisabled
	}
	state := uuid.NewString()
	if err := s.states.Set(ctx, cache.OAuthStatePrefix+state, provider, oauthStateTTL); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// OAuthCallback consumes the state, exchanges the code and signs the user in,
// linking to an existing account with the same email when one exists.
func (s *Service) OAuthCallback(ctx context.Context, provider, state, code string) (*AuthResponse, error) {
	cfg := s.oauth.Provider(provider)
	if cfg == nil {
		return nil, ErrProviderDisabled
	}
	if state == "" {
		return nil, ErrInvalidState
	}
	stored, err := s.states.GetDel(ctx, cache.OAuthStatePrefix+state)
	if err != nil || stored != provider {
		return nil, ErrInvalidState
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	info, err := s.fetchUserInfo(ctx, cfg, provider, token)
	if err != nil {
		return nil, err
	}
	if info.Email == "" {
		return nil, ErrNoProviderEmail
	}

	user, err := s.findOrCreateOAuthUser(ctx, provider, info)
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, ErrUserBanned
	}
	s.touch(ctx, user)
	return s.IssueToken(user)
}

func (s *Service) fetchUserInfo(ctx context.Context, cfg *oauth2.Config, provider string, token *oauth2.Token) (*OAuthUserInfo, error) {
	client := cfg.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURLs[provider], nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info request failed with status %d", resp.StatusCode)
	}

	info := &OAuthUserInfo{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		info.TokenExpiry = &expiry
	}

	switch provider {
	case ProviderGoogle:
		var g googleUserInfo
		if err := json.Unmarshal(body, &g); err != nil {
			return nil, fmt.Errorf("failed to parse user info: %w", err)
		}
		info.ID, info.Email, info.Name, info.AvatarURL = g.ID, g.Email, g.Name, g.Picture
	case ProviderDiscord:
		var d discordUserInfo
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, fmt.Errorf("failed to parse user info: %w", err)
		}
		info.ID, info.Email, info.Name = d.ID, d.Email, d.Username
		if d.Avatar != "" {
			info.AvatarURL = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", d.ID, d.Avatar)
		}
	default:
		return nil, ErrProviderDisabled
	}
	if info.ID == "" {
		return nil, errors.New("user info missing id")
	}
	return info, nil
}

func (s *Service) findOrCreateOAuthUser(ctx context.Context, provider string, info *OAuthUserInfo) (*models.User, error) {
	account, err := s.users.GetOAuthAccount(ctx, provider, info.ID)
	switch {
	case err == nil:
		s.refreshAccount(ctx, account, info)
		return s.users.Get(ctx, account.UserID)
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, err
	}

	emailAddr := strings.ToLower(info.Email)
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if errors.Is(err, repository.ErrUserNotFound) {
		user, err = s.createOAuthUser(ctx, emailAddr, info)
	}
	if err != nil {
		return nil, err
	}

	account = &models.OAuthAccount{
		UserID:         user.ID,
		Provider:       provider,
		ProviderUserID: info.ID,
	}
	s.refreshAccount(ctx, account, info)
	logger.Log.Info("OAuth account linked",
		logger.WithUserID(user.ID),
		zap.String("provider", provider))
	return user, nil
}

func (s *Service) refreshAccount(ctx context.Context, account *models.OAuthAccount, info *OAuthUserInfo) {
	account.Email = info.Email
	account.Name = info.Name
	account.AvatarURL = info.AvatarURL
	account.AccessToken = &info.AccessToken
	if info.RefreshToken != "" {
		account.RefreshToken = &info.RefreshToken
	}
	account.TokenExpiry = info.TokenExpiry
	if err := s.users.SaveOAuthAccount(ctx, account); err != nil {
		logger.Log.Warn("Failed to save oauth account", logger.WithUserID(account.UserID), zap.Error(err))
	}
}

func (s *Service) createOAuthUser(ctx context.Context, emailAddr string, info *OAuthUserInfo) (*models.User, error) {
	username, err := s.uniqueUsername(ctx, usernameFromName(info.Name))
	if err != nil {
		return nil, err
	}
	displayName := strings.TrimSpace(info.Name)
	if displayName == "" {
		displayName = username
	}
	user := &models.User{
		Email:         emailAddr,
		Username:      username,
		EmailVerified: true,
		Profile: &models.Profile{
			DisplayName: displayName,
			AvatarURL:   info.AvatarURL,
		},
	}
	err = s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrUsernameTaken) {
		// deleted accounts keep their usernames reserved
		user.Username = username[:min(len(username), 21)] + "_" + uuid.NewString()[:8]
		err = s.users.Create(ctx, user)
	}
	if err != nil {
		return nil, err
	}
	logger.Log.Info("User registered via oauth", logger.WithUserID(user.ID), zap.String("username", username))
	return user, nil
}

func (s *Service) uniqueUsername(ctx context.Context, base string) (string, error) {
	username := base
	for i := 1; i < 1000; i++ {
		_, err := s.users.GetByUsername(ctx, username)
		if errors.Is(err, repository.ErrUserNotFound) {
			return username, nil
		}
		if err != nil {
			return "", err
		}
		username = fmt.Sprintf("%s%d", base, i)
	}
	return "", errors.New("unable to generate unique username")
}

// usernameFromName keeps [a-z0-9_] and pads short results
func usernameFromName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 24 {
		out = out[:24]
	}
	if len(out) < 3 {
		out = "listener" + out
	}
	return out
}
