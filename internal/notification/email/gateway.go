// Package email delivers account emails. Gateway is the transport; Sender
// renders the messages the auth flows need and pushes them through it.
package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/fastplat/auth/pkg/mylogger"
	"github.com/fastplat/auth/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Gateway sends one HTML email synchronously. A nil error means the relay
// accepted the message.
type Gateway interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	Timeout  time.Duration
}

type smtpGateway struct {
	cfg    SMTPConfig
	logger *zap.Logger
	tracer trace.Tracer
}

func NewSMTPGateway(cfg SMTPConfig, logger *zap.Logger) Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &smtpGateway{
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("notification/email"),
	}
}

func (g *smtpGateway) Send(ctx context.Context, to, subject, htmlBody string) error {
	ctx, span := g.tracer.Start(ctx, "smtp.Send")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(g.cfg.Host, g.cfg.Port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error dialing smtp %s: %w", addr, err)
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return fmt.Errorf("error setting smtp deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, g.cfg.Host)
	if err != nil {
		_ = conn.Close()
		span.RecordError(err)
		return fmt.Errorf("error starting smtp session: %w", err)
	}
	defer client.Close()

	if err := g.deliver(client, to, buildMessage(g.cfg.From, to, subject, htmlBody)); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			g.logger,
			"Error sending email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err),
		)

		return fmt.Errorf("failed to send mail: %w", err)
	}

	mylogger.Info(
		ctx,
		g.logger,
		"Email sent",
		zap.String("to", to),
		zap.String("subject", subject),
	)

	return nil
}

func (g *smtpGateway) deliver(client *smtp.Client, to string, msg []byte) error {
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(nil); err != nil {
			return err
		}
	}

	if g.cfg.User != "" {
		if err := client.Auth(smtp.PlainAuth("", g.cfg.User, g.cfg.Password, g.cfg.Host)); err != nil {
			return err
		}
	}

	if err := client.Mail(g.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	sb.WriteString(htmlBody)
	return []byte(sb.String())
}

type breakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker fails fast once the relay has been failing, instead of letting
// every request wait for the smtp timeout.
func WithBreaker(next Gateway, logger *zap.Logger) Gateway {
	return &breakerGateway{next: next, cb: utils.NewBreaker("smtp", logger)}
}

func (g *breakerGateway) Send(ctx context.Context, to, subject, htmlBody string) error {
	_, err := utils.ExecuteWithBreaker(g.cb, func() (struct{}, error) {
		return struct{}{}, g.next.Send(ctx, to, subject, htmlBody)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("smtp circuit open: %w", err)
	}
	return err
}
