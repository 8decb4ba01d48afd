// Package mailer delivers transactional auth email: verification links,
// password resets. Senders implement the parent package's Mailer interface
// so the handlers never know which transport is behind them.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	auth "github.com/nidohq/nido-auth"
)

// Config exposes the SMTP settings a sender needs.
type Config interface {
	GetSMTPHost() string
	GetSMTPPort() string
	GetSMTPAccount() string
	GetSMTPPassword() string
	GetSMTPSender() string
}

// SMTPMailer sends through a plain authenticated SMTP relay.
type SMTPMailer struct {
	host     string
	port     string
	account  string
	password string
	sender   string
	logger   auth.Logger
}

var _ auth.Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(cfg Config) (*SMTPMailer, error) {
	if cfg.GetSMTPHost() == "" {
		return nil, goerrors.New("smtp host cannot be empty", goerrors.CategoryBadInput)
	}

	return &SMTPMailer{
		host:     cfg.GetSMTPHost(),
		port:     cfg.GetSMTPPort(),
		account:  cfg.GetSMTPAccount(),
		password: cfg.GetSMTPPassword(),
		sender:   cfg.GetSMTPSender(),
		logger:   auth.DefaultLogger(),
	}, nil
}

func (m *SMTPMailer) WithLogger(logger auth.Logger) *SMTPMailer {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Send delivers one message. The context deadline is honored up front only;
// net/smtp does not thread contexts through the dialog.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled before email dispatch")
	}

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", m.sender),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%s", m.host, m.port)
	authn := smtp.PlainAuth("", m.account, m.password, m.host)

	if err := smtp.SendMail(addr, authn, m.sender, []string{to}, []byte(msg)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send email")
	}

	m.logger.Debug("email dispatched", "to", to, "subject", subject)
	return nil
}

// LogMailer writes messages to the log, for development and tests.
type LogMailer struct {
	logger auth.Logger
}

var _ auth.Mailer = (*LogMailer)(nil)

func NewLogMailer(logger auth.Logger) *LogMailer {
	if logger == nil {
		logger = auth.DefaultLogger()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info("email (log transport) to=%s subject=%q body=%q", to, subject, body)
	return nil
}
