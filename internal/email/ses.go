package email

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/soundbay/backend/internal/models"
)

// sesAPI is the slice of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends mail through AWS SES
type SESMailer struct {
	client    sesAPI
	fromEmail string
	fromName  string
	baseURL   string
}

// NewSESMailer loads the default AWS credential chain for region
func NewSESMailer(ctx context.Context, region, fromEmail, fromName, baseURL string) (*SESMailer, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newSESMailer(ses.NewFromConfig(cfg), fromEmail, fromName, baseURL), nil
}

func newSESMailer(client sesAPI, fromEmail, fromName, baseURL string) *SESMailer {
	return &SESMailer{client: client, fromEmail: fromEmail, fromName: fromName, baseURL: baseURL}
}

func (e *SESMailer) SendPasswordReset(ctx context.Context, to, token string) error {
	return e.send(ctx, TemplatePasswordReset, passwordResetMessage(e.baseURL, to, token))
}

func (e *SESMailer) SendModerationResult(ctx context.Context, to string, track *models.Track) error {
	return e.send(ctx, TemplateModeration, moderationMessage(e.baseURL, to, track))
}

func (e *SESMailer) send(ctx context.Context, template string, msg Message) error {
	from := e.fromEmail
	if e.fromName != "" {
		from = fmt.Sprintf("%s <%s>", e.fromName, e.fromEmail)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
			},
		},
	}

	if _, err := e.client.SendEmail(ctx, input); err != nil {
		metrics.Get().EmailsTotal.WithLabelValues(template, "error").Inc()
		return fmt.Errorf("failed to send %s email: %w", template, err)
	}
	metrics.Get().EmailsTotal.WithLabelValues(template, "sent").Inc()
	return nil
}
