package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

func TestErrorCarriesContextFieldsAndCode(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithCaller(ctx, "user-9", "CUSTOMER")

	log.Error(ctx, "checkout failed", pkgerrors.Wrap(pkgerrors.CodeTransactionAborted, errors.New("deadlock"), "checkout aborted"))

	for _, want := range []string{
		`"request_id":"req-123"`,
		`"user_id":"user-9"`,
		`"actor_role":"CUSTOMER"`,
		`"error_code":"TRANSACTION_ABORTED"`,
		`"stack"`,
		`"service":"test"`,
	} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Fatalf("expected %s in entry=%s", want, buf.String())
		}
	}
}

func TestSensitiveFieldsAreRedacted(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	ctx := log.WithFields(context.Background(), map[string]any{
		"vnp_SecureHash": "abcdef0123",
		"order_id":       "ord-1",
	})
	ctx = log.WithField(ctx, "Authorization", "Bearer xyz")
	log.Info(ctx, "callback received")

	if bytes.Contains(buf.Bytes(), []byte("abcdef0123")) || bytes.Contains(buf.Bytes(), []byte("xyz")) {
		t.Fatalf("secret leaked: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"order_id":"ord-1"`)) {
		t.Fatalf("expected plain field kept: %s", buf.String())
	}
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack when warn stack enabled; entry=%s", buf.String())
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf})
	quiet.Warn(context.Background(), "warny")
	if bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected no stack when warn stack disabled; entry=%s", buf.String())
	}
}

func TestForAppAppliesSettings(t *testing.T) {
	log := ForApp("api", config.AppConfig{Env: "dev", LogLevel: "warn"})
	if got := log.base.GetLevel(); got != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", got)
	}
}

func TestStaticFieldsAndConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Fields: map[string]string{"instance": "cron-1"}})
	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hello")
	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Fatalf("debug entry written at info level: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"instance":"cron-1"`)) {
		t.Fatalf("expected static field: %s", buf.String())
	}

	buf.Reset()
	console := New(Options{ServiceName: "test", Format: "console", Output: buf})
	console.Info(context.Background(), "hello")
	if bytes.HasPrefix(buf.Bytes(), []byte("{")) || !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Fatalf("expected console output, got %s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", lvl)
	}
}
