package mail

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/core/port"
	"github.com/courtbook/identity-service/internal/infra/config"
	"github.com/courtbook/identity-service/internal/infra/logger"
)

// SMTPNotifier delivers transactional mail over SMTP using go-mail.
// SMS delivery has no provider wired yet, so codes addressed to a phone
// number are logged for pickup by an out-of-band bridge.
type SMTPNotifier struct {
	cfg    config.SMTPSettings
	logger *zap.Logger
}

// NewSMTPNotifier validates the SMTP settings and builds a notifier.
func NewSMTPNotifier(cfg config.SMTPSettings, log *zap.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &SMTPNotifier{cfg: cfg, logger: log}, nil
}

// SendOTP delivers a verification code to the destination on the given channel.
func (n *SMTPNotifier) SendOTP(ctx context.Context, channel domain.OTPChannel, destination string, code string) error {
	if channel == domain.OTPChannelSMS {
		n.logger.Info("sms delivery bridge not configured, logging code event",
			zap.String("destination", logger.MaskPhone(destination)),
		)
		return nil
	}

	subject := "Your verification code"
	body := fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.\n\nIf you did not request this code, you can ignore this message.\n", code)

	return n.send(ctx, destination, subject, body)
}

// SendPasswordReset delivers a password recovery link.
func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, email string, resetLink string) error {
	subject := "Reset your password"
	body := fmt.Sprintf("A password reset was requested for your account.\n\nOpen the link below to choose a new password. The link expires in 1 hour and can be used once.\n\n%s\n\nIf you did not request a reset, no action is needed.\n", resetLink)

	return n.send(ctx, email, subject, body)
}

// SendPasswordChanged notifies the account owner that the password changed.
func (n *SMTPNotifier) SendPasswordChanged(ctx context.Context, email string) error {
	subject := "Your password was changed"
	body := "The password for your account was just changed. All active sessions have been signed out.\n\nIf this was not you, reset your password immediately.\n"

	return n.send(ctx, email, subject, body)
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()

	if err := msg.From(n.cfg.From); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
	}

	if n.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if n.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if n.cfg.Username != "" && n.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}

	client, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	n.logger.Debug("mail sent",
		zap.String("to", logger.MaskEmail(to)),
		zap.String("subject", subject),
	)

	return nil
}

var _ port.NotificationGateway = (*SMTPNotifier)(nil)

// LogNotifier writes notifications to the log instead of delivering them.
// Used in development environments without an SMTP relay.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a logging notification gateway.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) SendOTP(_ context.Context, channel domain.OTPChannel, destination string, code string) error {
	masked := logger.MaskEmail(destination)
	if channel == domain.OTPChannelSMS {
		masked = logger.MaskPhone(destination)
	}
	n.logger.Info("otp notification",
		zap.String("channel", string(channel)),
		zap.String("destination", masked),
		zap.String("code", code),
	)
	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, email string, resetLink string) error {
	n.logger.Info("password reset notification",
		zap.String("destination", logger.MaskEmail(email)),
		zap.String("reset_link", resetLink),
	)
	return nil
}

func (n *LogNotifier) SendPasswordChanged(_ context.Context, email string) error {
	n.logger.Info("password changed notification",
		zap.String("destination", logger.MaskEmail(email)),
	)
	return nil
}

var _ port.NotificationGateway = (*LogNotifier)(nil)
