package app

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIlpHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "20240615T143045Z",
			level:   slog.LevelInfo,
			message: "course created",
			want:    "2024-06-15T14:30:45Z\tINFO\t20240615T143045Z\tcourse created\n",
		},
		{
			name:    "debug level",
			runID:   "20240615T143046Z",
			level:   slog.LevelDebug,
			message: "request received",
			want:    "2024-06-15T14:30:45Z\tDEBUG\t20240615T143046Z\trequest received\n",
		},
		{
			name:    "with record attrs",
			runID:   "20240615T143047Z",
			level:   slog.LevelInfo,
			message: "meta link added",
			attrs:   []slog.Attr{slog.String("parent", "COURSE-1"), slog.Int("child", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\t20240615T143047Z\tmeta link added\tparent=COURSE-1\tchild=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &ilpHandler{w: &buf, runID: tt.runID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestIlpHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &ilpHandler{w: &buf, runID: "20240101T000000Z"}

	// Add pre-set attrs
	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "reconciler")}).(*ilpHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "unlinked", 0)
	r.AddAttrs(slog.String("key", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=reconciler") {
		t.Errorf("expected pre-set attr component=reconciler, got: %q", got)
	}
	if !strings.Contains(got, "key=abc") {
		t.Errorf("expected record attr key=abc, got: %q", got)
	}
}

func TestIlpHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &ilpHandler{w: &buf, runID: "20240101T000000Z", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*ilpHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestIlpHandler_Enabled(t *testing.T) {
	h := &ilpHandler{level: slog.LevelInfo}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(DEBUG) = true at info level")
	}
	for _, level := range []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want slog.Level
	}{
		{env: "", want: slog.LevelInfo},
		{env: "debug", want: slog.LevelDebug},
		{env: "WARN", want: slog.LevelWarn},
		{env: "chatty", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("ILP_LOG_LEVEL", tt.env)
			if got := logLevel(); got != tt.want {
				t.Errorf("logLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-run")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}
	if f.Name() != filepath.Join(dir, "ilp.log") {
		t.Errorf("log file = %q, want ilp.log in %s", f.Name(), dir)
	}
}
