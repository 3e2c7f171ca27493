package auth

import (
	"context"

	"github.com/soundbay/backend/internal/models"
)

// Authenticator is what the HTTP layer needs from the auth service
type Authenticator interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	ValidateToken(ctx context.Context, token string) (*models.User, error)
	IssueToken(user *models.User) (*AuthResponse, error)

	OAuthURL(ctx context.Context, provider string) (string, error)
	OAuthCallback(ctx context.Context, provider, state, code string) (*AuthResponse, error)

	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, userID, current, next string) error

	SetupTwoFactor(ctx context.Context, userID, password string) (*TwoFactorSetup, error)
	EnableTwoFactor(ctx context.Context, userID, code string) error
	DisableTwoFactor(ctx context.Context, userID, password, code string) error
	VerifyTwoFactorLogin(ctx context.Context, challenge, code string) (*AuthResponse, error)
	RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error)
	TwoFactorStatus(ctx context.Context, userID string) (*TwoFactorStatus, error)
}

var _ Authenticator = (*Service)(nil)
