package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSMTPSender_Send(t *testing.T) {
	d := &fakeDialer{}
	s := &SMTPSender{dialer: d, from: "noreply@giftlist.test", logger: discardLogger()}

	err := s.Send(context.Background(), PasswordResetMessage("a@example.com", "http://x/reset/abc/tok"))
	require.NoError(t, err)

	require.Len(t, d.sent, 1)
	m := d.sent[0]
	assert.Equal(t, []string{"noreply@giftlist.test"}, m.GetHeader("From"))
	assert.Equal(t, []string{"a@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Reset your password"}, m.GetHeader("Subject"))
}

func TestSMTPSender_SendError(t *testing.T) {
	s := &SMTPSender{dialer: &fakeDialer{err: errors.New("connection refused")}, logger: discardLogger()}

	err := s.Send(context.Background(), &Message{To: "a@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send mail")
}

func TestNewSMTPSender(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 1025, From: "noreply@giftlist.test"}, discardLogger())
	assert.NotNil(t, s.dialer)
	assert.Equal(t, "noreply@giftlist.test", s.from)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(discardLogger()).Send(context.Background(), &Message{To: "a@example.com"}))
}

func TestPasswordResetMessage(t *testing.T) {
	msg := PasswordResetMessage("a@example.com", "http://host/api/v1/auth/password-reset/dWlk/tok")
	assert.Equal(t, "a@example.com", msg.To)
	assert.Contains(t, msg.Body, "http://host/api/v1/auth/password-reset/dWlk/tok")
}
