package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/repository"
)

const (
	backupCodeCount  = 10
	backupCodeLength = 8
	backupCodeChars  = "abcdefghjkmnpqrstuvwxyz23456789"
)

var (
	ErrTwoFactorEnabled    = errors.New("two-factor authentication is already enabled")
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorNotSetup   = errors.New("two-factor setup has not been started")
	ErrInvalidCode         = errors.New("invalid verification code")
)

// TwoFactorSetup is shown once when 2FA setup begins
type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	URL         string   `json:"url"`
	BackupCodes []string `json:"backup_codes"`
}

type TwoFactorStatus struct {
	Enabled              bool `json:"enabled"`
	BackupCodesRemaining int  `json:"backup_codes_remaining"`
}

// SetupTwoFactor generates a TOTP secret and backup codes. 2FA stays off
// until EnableTwoFactor confirms a code.
func (s *Service) SetupTwoFactor(ctx context.Context, userID, password string) (*TwoFactorSetup, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}
	if user.HasPassword() && !checkPassword(*user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.totpIssuer,
		AccountName: user.Email,
		SecretSize:  32,
	})
	if err != nil {
		return nil, err
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	hashed, err := encodeBackupCodes(codes)
	if err != nil {
		return nil, err
	}

	secret := key.Secret()
	user.TwoFactorSecret = &secret
	user.BackupCodes = &hashed
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	return &TwoFactorSetup{Secret: secret, URL: key.URL(), BackupCodes: codes}, nil
}

// EnableTwoFactor turns 2FA on once the user proves the authenticator works
func (s *Service) EnableTwoFactor(ctx context.Context, userID, code string) error {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return ErrTwoFactorEnabled
	}
	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		return ErrTwoFactorNotSetup
	}
	if !s.validTOTP(*user.TwoFactorSecret, code) {
		return ErrInvalidCode
	}
	user.TwoFactorEnabled = true
	if err := s.users.Save(ctx, user); err != nil {
		return err
	}
	logger.Log.Info("Two-factor enabled", logger.WithUserID(userID))
	return nil
}

// DisableTwoFactor requires the password (if any) and a current code
func (s *Service) DisableTwoFactor(ctx context.Context, userID, password, code string) error {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if user.HasPassword() && !checkPassword(*user.PasswordHash, password) {
		return ErrInvalidCredentials
	}
	if !s.verifyCode(ctx, user, code) {
		return ErrInvalidCode
	}
	user.TwoFactorEnabled = false
	user.TwoFactorSecret = nil
	user.BackupCodes = nil
	if err := s.users.Save(ctx, user); err != nil {
		return err
	}
	logger.Log.Info("Two-factor disabled", logger.WithUserID(userID))
	return nil
}

// VerifyTwoFactorLogin completes a login that returned a challenge token.
// The code may be a TOTP code or an unused backup code.
func (s *Service) VerifyTwoFactorLogin(ctx context.Context, challenge, code string) (*AuthResponse, error) {
	claims, err := s.parseToken(challenge, purposeTwoFactor)
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
	if !user.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}
	if !s.verifyCode(ctx, user, code) {
		return nil, ErrInvalidCode
	}
	s.touch(ctx, user)
	return s.IssueToken(user)
}

// RegenerateBackupCodes replaces every backup code
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}
	if !s.validTOTP(*user.TwoFactorSecret, code) {
		return nil, ErrInvalidCode
	}
	codes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	hashed, err := encodeBackupCodes(codes)
	if err != nil {
		return nil, err
	}
	user.BackupCodes = &hashed
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	return codes, nil
}

func (s *Service) TwoFactorStatus(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	status := &TwoFactorStatus{Enabled: user.TwoFactorEnabled}
	if user.TwoFactorEnabled {
		status.BackupCodesRemaining = len(decodeBackupCodes(user.BackupCodes))
	}
	return status, nil
}

func (s *Service) validTOTP(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// verifyCode accepts a TOTP code, or burns a matching backup code
func (s *Service) verifyCode(ctx context.Context, user *models.User, code string) bool {
	if user.TwoFactorSecret != nil && s.validTOTP(*user.TwoFactorSecret, code) {
		return true
	}

	hashes := decodeBackupCodes(user.BackupCodes)
	want := hashBackupCode(code)
	for i, h := range hashes {
		if h != want {
			continue
		}
		remaining := append(hashes[:i:i], hashes[i+1:]...)
		data, err := json.Marshal(remaining)
		if err != nil {
			return false
		}
		encoded := string(data)
		user.BackupCodes = &encoded
		if err := s.users.Save(ctx, user); err != nil {
			logger.ErrorWithFields("Failed to consume backup code", err)
			return false
		}
		return true
	}
	return false
}

func generateBackupCodes() ([]string, error) {
	codes := make([]string, backupCodeCount)
	buf := make([]byte, backupCodeLength)
	for i := range codes {
		raw, err := randomToken(backupCodeLength)
		if err != nil {
			return nil, err
		}
		// randomToken is hex; reuse its bytes to index the alphabet
		decoded, _ := hex.DecodeString(raw)
		for j := range buf {
			buf[j] = backupCodeChars[int(decoded[j])%len(backupCodeChars)]
		}
		codes[i] = string(buf)
	}
	return codes, nil
}

func hashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}

func encodeBackupCodes(codes []string) (string, error) {
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = hashBackupCode(c)
	}
	data, err := json.Marshal(hashes)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeBackupCodes(stored *string) []string {
	if stored == nil || *stored == "" {
		return nil
	}
	var hashes []string
	if err := json.Unmarshal([]byte(*stored), &hashes); err != nil {
		return nil
	}
	return hashes
}
