// Package email sends transactional mail: password resets and moderation
// outcomes.
package email

import (
	"context"
	"fmt"

	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/soundbay/backend/internal/models"
	"go.uber.org/zap"
)

const (
	TemplatePasswordReset = "password_reset"
	TemplateModeration    = "moderation"
)

// Mailer delivers transactional mail
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, token string) error
	SendModerationResult(ctx context.Context, to string, track *models.Track) error
}

// Message is a rendered email
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// LogMailer logs messages instead of sending them. Used when SES is not configured.
type LogMailer struct {
	baseURL string
}

func NewLogMailer(baseURL string) *LogMailer {
	return &LogMailer{baseURL: baseURL}
}

func (m *LogMailer) SendPasswordReset(_ context.Context, to, token string) error {
	msg := passwordResetMessage(m.baseURL, to, token)
	logger.Log.Info("Email delivery disabled, logging message",
		zap.String("template", TemplatePasswordReset),
		zap.String("to", to),
		zap.String("subject", msg.Subject))
	metrics.Get().EmailsTotal.WithLabelValues(TemplatePasswordReset, "logged").Inc()
	return nil
}

func (m *LogMailer) SendModerationResult(_ context.Context, to string, track *models.Track) error {
	msg := moderationMessage(m.baseURL, to, track)
	logger.Log.Info("Email delivery disabled, logging message",
		zap.String("template", TemplateModeration),
		zap.String("to", to),
		zap.String("subject", msg.Subject))
	metrics.Get().EmailsTotal.WithLabelValues(TemplateModeration, "logged").Inc()
	return nil
}

func passwordResetMessage(baseURL, to, token string) Message {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", baseURL, token)
	return Message{
		To:      to,
		Subject: "Reset your Soundbay password",
		HTML: fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #333;">
	<h1>Reset your password</h1>
	<p>Someone asked to reset the password for your Soundbay account. The link expires in 1 hour.</p>
	<p><a href="%s">Reset password</a></p>
	<p style="word-break: break-all; color: #666;">%s</p>
	<p>If this wasn't you, you can ignore this email.</p>
</body>
</html>`, resetURL, resetURL),
		Text: fmt.Sprintf(`Reset your Soundbay password

Someone asked to reset the password for your Soundbay account. The link expires in 1 hour.

%s

If this wasn't you, you can ignore this email.
`, resetURL),
	}
}

func moderationMessage(baseURL, to string, track *models.Track) Message {
	trackURL := fmt.Sprintf("%s/tracks/%s", baseURL, track.ID)
	if track.Status == models.TrackApproved {
		return Message{
			To:      to,
			Subject: fmt.Sprintf("%q is live on Soundbay", track.Title),
			HTML: fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #333;">
	<h1>Your track was approved</h1>
	<p>%s is now public. <a href="%s">Listen on Soundbay</a>.</p>
</body>
</html>`, track.Title, trackURL),
			Text: fmt.Sprintf("Your track %q was approved and is now public.\n\n%s\n", track.Title, trackURL),
		}
	}

	reason := track.RejectionReason
	if reason == "" {
		reason = "no reason given"
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%q was not approved", track.Title),
		HTML: fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #333;">
	<h1>Your track was not approved</h1>
	<p>%s was rejected by a moderator.</p>
	<p>Reason: %s</p>
</body>
</html>`, track.Title, reason),
		Text: fmt.Sprintf("Your track %q was rejected by a moderator.\n\nReason: %s\n", track.Title, reason),
	}
}
