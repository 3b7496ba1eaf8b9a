package email

import (
	"context"
	"net/url"
	"strings"

	"github.com/fastplat/auth/internal/metrics"
)

const (
	TemplateActivation      = "activation"
	TemplateRecovery        = "recovery"
	TemplatePasswordChanged = "password_changed"
)

type Sender interface {
	SendActivationEmail(ctx context.Context, to, userName, code string) error
	SendRecoveryCodeEmail(ctx context.Context, to, code string) error
	SendPasswordChangedEmail(ctx context.Context, to string) error
}

type sender struct {
	gateway           Gateway
	activationBaseURL string
	metrics           *metrics.Metrics
}

// NewSender builds activation links as <activationBaseURL>/<code>.
func NewSender(gateway Gateway, activationBaseURL string, m *metrics.Metrics) Sender {
	return &sender{
		gateway:           gateway,
		activationBaseURL: strings.TrimRight(activationBaseURL, "/"),
		metrics:           m,
	}
}

func (s *sender) SendActivationEmail(ctx context.Context, to, userName, code string) error {
	link := s.activationBaseURL + "/" + url.PathEscape(code)

	return s.send(ctx, to, "Activate your account", TemplateActivation, struct {
		UserName string
		Link     string
	}{UserName: userName, Link: link})
}

func (s *sender) SendRecoveryCodeEmail(ctx context.Context, to, code string) error {
	return s.send(ctx, to, "Your password recovery code", TemplateRecovery, struct {
		Code string
	}{Code: code})
}

func (s *sender) SendPasswordChangedEmail(ctx context.Context, to string) error {
	return s.send(ctx, to, "Your password was changed", TemplatePasswordChanged, nil)
}

func (s *sender) send(ctx context.Context, to, subject, tmpl string, data any) error {
	body, err := render(tmpl, data)
	if err != nil {
		return err
	}

	err = s.gateway.Send(ctx, to, subject, body)
	s.metrics.Email(tmpl, err)

	return err
}
