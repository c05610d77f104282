package mailer

import (
	"context"
	"strings"

	"github.com/openshelf/circulation-backend/pkg/config"
	apperrors "github.com/openshelf/circulation-backend/pkg/errors"
	"github.com/openshelf/circulation-backend/pkg/logger"
)

// Mailer delivers patron-facing notifications.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// New returns the mailer selected by config. Only the log transport is
// implemented; anything else is a configuration error.
func New(cfg config.MailerConfig, log *logger.Logger) (Mailer, error) {
	switch strings.ToLower(cfg.Transport) {
	case "", "log":
		return NewLogMailer(cfg.FromAddress, log), nil
	default:
		return nil, apperrors.New(apperrors.CodeValidation, "unknown mailer transport: "+cfg.Transport)
	}
}

// LogMailer writes outgoing mail to the structured log instead of
// delivering it. Used in dev and in the test suites.
type LogMailer struct {
	from string
	log  *logger.Logger
}

func NewLogMailer(from string, log *logger.Logger) *LogMailer {
	return &LogMailer{from: from, log: log}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return apperrors.New(apperrors.CodeValidation, "recipient is required")
	}
	ctx = m.log.WithFields(ctx, map[string]any{
		"from":    m.from,
		"to":      to,
		"subject": subject,
	})
	m.log.Info(ctx, "mail: "+body)
	return nil
}
