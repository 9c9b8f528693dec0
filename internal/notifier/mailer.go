// Package notifier delivers classification results by email.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/example/mri-check/internal/logging"
	"github.com/example/mri-check/internal/session"
)

const (
	subject      = "Brain Tumor Classification Result"
	bodyTemplate = "Hello,\n\nThe result of your MRI scan is: **%s**.\n\nStay healthy!"
)

var validate = validator.New()

// Config describes the outbound SMTP account.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Sender is the part of *mail.Client used to deliver messages.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer sends results over SMTP with STARTTLS and PLAIN auth.
type Mailer struct {
	from   string
	sender Sender
	logger *zap.Logger
}

// NewMailer builds a Mailer from cfg.
func NewMailer(cfg Config, logger *zap.Logger) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return NewMailerWithSender(from, client, logger), nil
}

// NewMailerWithSender builds a Mailer around an existing Sender.
func NewMailerWithSender(from string, sender Sender, logger *zap.Logger) *Mailer {
	return &Mailer{from: from, sender: sender, logger: logger.Named("notifier")}
}

// ValidateAddress rejects empty and malformed addresses.
func ValidateAddress(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("%w: please enter a valid email address", session.ErrValidation)
	}
	if err := validate.Var(address, "email"); err != nil {
		return fmt.Errorf("%w: %q is not a valid email address", session.ErrValidation, address)
	}
	return nil
}

// ValidateAddress satisfies session.Notifier.
func (m *Mailer) ValidateAddress(address string) error {
	return ValidateAddress(address)
}

// SendResult mails label to address. Any failure is reported as session.ErrDelivery with the
// transport's reason attached.
func (m *Mailer) SendResult(ctx context.Context, address, label string) error {
	msg, err := m.buildMessage(address, label)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrDelivery, err)
	}

	start := time.Now()
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		wrapped := logging.NewOperationError("notifier.send_result", "", fmt.Errorf("%w: %v", session.ErrDelivery, err))
		m.logger.Error("failed to send result", zap.Error(wrapped), zap.Bool("auth_failure", IsAuthFailure(err)))
		return wrapped
	}
	m.logger.Info("result sent", zap.Duration("took", time.Since(start)))
	return nil
}

func (m *Mailer) buildMessage(address, label string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	if err := msg.To(address); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(bodyTemplate, label))
	return msg, nil
}

// IsAuthFailure reports whether a delivery error came from SMTP authentication.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	reason := strings.ToLower(err.Error())
	return strings.Contains(reason, "auth") || strings.Contains(reason, "535")
}
