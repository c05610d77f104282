package mailer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openshelf/circulation-backend/pkg/config"
	apperrors "github.com/openshelf/circulation-backend/pkg/errors"
	"github.com/openshelf/circulation-backend/pkg/logger"
)

func testLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "mailer-test",
		Level:       zerolog.InfoLevel,
		Output:      buf,
	})
}

func TestNewSelectsTransport(t *testing.T) {
	log := testLogger(&bytes.Buffer{})

	m, err := New(config.MailerConfig{Transport: "log", FromAddress: "library@example.org"}, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.(*LogMailer); !ok {
		t.Fatalf("expected LogMailer, got %T", m)
	}

	if _, err := New(config.MailerConfig{Transport: "smtp"}, log); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLogMailerSend(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer("library@example.org", testLogger(&buf))

	err := m.Send(context.Background(), "patron@example.org", "Reserved work available", "Your copy is ready for pickup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"patron@example.org", "Reserved work available", "ready for pickup"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestLogMailerSendRequiresRecipient(t *testing.T) {
	m := NewLogMailer("library@example.org", testLogger(&bytes.Buffer{}))
	if err := m.Send(context.Background(), "", "s", "b"); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
