package report

import (
	"context"
	"log/slog"
	"strings"

	"github.com/goliatone/go-errors"
	"gopkg.in/gomail.v2"

	"github.com/goliatone/go-ledger-cache/internal/logging"
)

// MailConfig holds the SMTP settings of the mail notifier.
type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

func DefaultMailConfig() MailConfig {
	return MailConfig{
		Port: 587,
		From: "noreply@financialapp.com",
	}
}

// Enabled reports whether an SMTP host is configured.
func (c MailConfig) Enabled() bool {
	return c.Host != ""
}

func (c MailConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	var problems []string
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, "port must be between 1 and 65535")
	}
	if c.From == "" {
		problems = append(problems, "from is required")
	}
	if len(problems) > 0 {
		return errors.New("invalid mail config: "+strings.Join(problems, "; "), errors.CategoryValidation).
			WithTextCode("INVALID_MAIL_CONFIG")
	}
	return nil
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailNotifier sends reports as plain text email.
type MailNotifier struct {
	sender sender
	from   string
}

func NewMailNotifier(cfg MailConfig) *MailNotifier {
	return &MailNotifier{
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (n *MailNotifier) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return errors.New("report recipient has no email address", errors.CategoryValidation).
			WithTextCode("MISSING_RECIPIENT")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	return n.sender.DialAndSend(m)
}

// LogNotifier writes reports to the log. Used when no SMTP host is set.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.Component(logger, logging.ComponentReport)}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "report", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
