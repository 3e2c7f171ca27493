package email

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/soundbay/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESPasswordReset(t *testing.T) {
	fake := &fakeSES{}
	m := newSESMailer(fake, "noreply@soundbay.test", "Soundbay", "https://soundbay.test")

	require.NoError(t, m.SendPasswordReset(context.Background(), "alice@example.com", "tok123"))
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "Soundbay <noreply@soundbay.test>", aws.ToString(in.Source))
	assert.Equal(t, []string{"alice@example.com"}, in.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(in.Message.Body.Text.Data), "https://soundbay.test/reset-password?token=tok123")
}

func TestSESModerationResult(t *testing.T) {
	fake := &fakeSES{}
	m := newSESMailer(fake, "noreply@soundbay.test", "", "https://soundbay.test")

	track := &models.Track{ID: "t1", Title: "Loop", Status: models.TrackRejected, RejectionReason: "clipping"}
	require.NoError(t, m.SendModerationResult(context.Background(), "bob@example.com", track))

	in := fake.inputs[0]
	assert.Equal(t, "noreply@soundbay.test", aws.ToString(in.Source))
	assert.Contains(t, aws.ToString(in.Message.Subject.Data), "was not approved")
	assert.Contains(t, aws.ToString(in.Message.Body.Text.Data), "clipping")

	track.Status = models.TrackApproved
	require.NoError(t, m.SendModerationResult(context.Background(), "bob@example.com", track))
	assert.Contains(t, aws.ToString(fake.inputs[1].Message.Body.Text.Data), "https://soundbay.test/tracks/t1")
}

func TestSESErrorIsWrapped(t *testing.T) {
	fake := &fakeSES{err: errors.New("throttled")}
	m := newSESMailer(fake, "noreply@soundbay.test", "", "")

	err := m.SendPasswordReset(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestLogMailerNeverFails(t *testing.T) {
	m := NewLogMailer("http://localhost")
	assert.NoError(t, m.SendPasswordReset(context.Background(), "a@b.c", "x"))
	assert.NoError(t, m.SendModerationResult(context.Background(), "a@b.c", &models.Track{Title: "x"}))
}
