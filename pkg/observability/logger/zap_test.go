package logger

import (
	"context"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{input: "debug", want: DebugLevel},
		{input: "info", want: InfoLevel},
		{input: "warn", want: WarnLevel},
		{input: "warning", want: WarnLevel},
		{input: "error", want: ErrorLevel},
		{input: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("level = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	if got, err := ParseLogFormat("console"); err != nil || got != TextFormat {
		t.Fatalf("console: got %q err %v", got, err)
	}
	if got, err := ParseLogFormat("json"); err != nil || got != JSONFormat {
		t.Fatalf("json: got %q err %v", got, err)
	}
	if _, err := ParseLogFormat("xml"); err == nil {
		t.Fatalf("expected error for xml")
	}
}

func TestNewZapLogger_DefaultsOnUnknownLevel(t *testing.T) {
	l, err := NewZapLogger(Config{Level: "bogus", Format: TextFormat})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Must not panic with odd configurations.
	l.Info("test message", "key", "value")
	child := l.With("component", "test")
	child.Debug("suppressed at info level")
}

func TestZapLogger_WithContext(t *testing.T) {
	l, err := NewZapLogger(DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	//nolint:staticcheck // string key matches the transport layer's convention
	ctx := context.WithValue(context.Background(), "request_id", "req-123")
	child := l.WithContext(ctx)
	if child == nil {
		t.Fatalf("WithContext returned nil")
	}

	// No request ID present returns the logger unchanged.
	same := l.WithContext(context.Background())
	if same != Logger(l) {
		t.Fatalf("WithContext without request_id should return the same logger")
	}
}

func TestNoopLogger(t *testing.T) {
	var l Logger = Noop{}
	l.Debug("a")
	l.Info("b", "k", 1)
	l.Warn("c")
	l.Error("d")
	if l.With("x", "y") == nil || l.WithContext(context.Background()) == nil {
		t.Fatalf("noop child loggers must not be nil")
	}
}
