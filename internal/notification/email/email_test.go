package email

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMail struct {
	to, subject, body string
}

type fakeGateway struct {
	sent []sentMail
	err  error
}

func (g *fakeGateway) Send(_ context.Context, to, subject, htmlBody string) error {
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

func TestSender_ActivationLink(t *testing.T) {
	gw := &fakeGateway{}
	s := NewSender(gw, "http://localhost:3000/auth/confirmEmail/", nil)

	require.NoError(t, s.SendActivationEmail(context.Background(), "alice@x.com", "alice", "abc123"))

	require.Len(t, gw.sent, 1)
	require.Equal(t, "alice@x.com", gw.sent[0].to)
	require.Contains(t, gw.sent[0].body, `href="http://localhost:3000/auth/confirmEmail/abc123"`)
	require.Contains(t, gw.sent[0].body, "Welcome, alice!")
}

func TestSender_EscapesUserName(t *testing.T) {
	gw := &fakeGateway{}
	s := NewSender(gw, "http://x", nil)

	require.NoError(t, s.SendActivationEmail(context.Background(), "a@x.com", "<script>", "c"))
	require.NotContains(t, gw.sent[0].body, "<script>")
}

func TestSender_RecoveryCode(t *testing.T) {
	gw := &fakeGateway{}
	s := NewSender(gw, "http://x", nil)

	require.NoError(t, s.SendRecoveryCodeEmail(context.Background(), "alice@x.com", "04217"))
	require.Contains(t, gw.sent[0].body, "04217")

	require.NoError(t, s.SendPasswordChangedEmail(context.Background(), "alice@x.com"))
	require.Contains(t, gw.sent[1].body, "password was changed")
}

func TestSender_PropagatesGatewayError(t *testing.T) {
	boom := errors.New("relay refused")
	s := NewSender(&fakeGateway{err: boom}, "http://x", nil)

	require.ErrorIs(t, s.SendRecoveryCodeEmail(context.Background(), "a@x.com", "11111"), boom)
}

func TestBreakerGateway_OpensAfterFailures(t *testing.T) {
	inner := &fakeGateway{err: errors.New("timeout")}
	gw := WithBreaker(inner, zap.NewNop())

	for i := 0; i < 5; i++ {
		require.Error(t, gw.Send(context.Background(), "a@x.com", "s", "b"))
	}

	err := gw.Send(context.Background(), "a@x.com", "s", "b")
	require.Error(t, err)
	require.Contains(t, err.Error(), "circuit open")
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("no-reply@x.com", "a@x.com", "Hello", "<p>hi</p>"))

	require.True(t, strings.HasPrefix(msg, "From: no-reply@x.com\r\n"))
	require.Contains(t, msg, "Subject: Hello\r\n")
	require.Contains(t, msg, "Content-Type: text/html")
	require.True(t, strings.HasSuffix(msg, "\r\n\r\n<p>hi</p>"))
}
