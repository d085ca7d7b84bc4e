package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(level Level, f Formatter) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewLogger(WithLevel(level), WithFormatter(f), WithOutput(NewWriterOutput(buf))), buf
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(WarnLevel, &TextFormatter{DisableTimestamp: true})
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered: %q", out)
	}
	if !strings.Contains(out, "WARN  shown") {
		t.Fatalf("expected warn line, got %q", out)
	}

	l.SetLevel(DebugLevel)
	l.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("debug should pass after SetLevel")
	}
}

func TestTextFieldsSortedAndQuoted(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})
	l.With(Component("lazy-stream")).Info("opened", Int64("stream_id", 7), Str("name", "a b"))
	got := strings.TrimSpace(buf.String())
	want := `INFO  opened component=lazy-stream name="a b" stream_id=7`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestJSONFormatter(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &JSONFormatter{})
	l.Error("boom", Err(errors.New("disk gone")))
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if m["level"] != "ERROR" || m["msg"] != "boom" || m["error"] != "disk gone" {
		t.Fatalf("unexpected entry: %v", m)
	}
}

func TestChildDoesNotLeakFieldsToParent(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})
	_ = l.With(Str("k", "v"))
	l.Info("parent")
	if strings.Contains(buf.String(), "k=v") {
		t.Fatalf("parent picked up child field: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"", InfoLevel, true},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q)=%v want %v", tt.in, got, tt.want)
		}
	}
}

func TestApplyConfigRedactsAndSamples(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := ApplyConfig(&Config{Level: "info", Format: "text", RedactKeys: []string{"secret"}, SampleInitial: 0, SampleThereafter: 100, Output: buf})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	l.Info("login", Str("secret", "hunter2"))
	l.Info("login", Str("secret", "hunter2"))
	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("secret not redacted: %q", out)
	}
	if n := strings.Count(out, "login"); n != 1 {
		t.Fatalf("expected 1 sampled line, got %d", n)
	}

	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestToStdLogger(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})
	std := ToStdLogger(l, WarnLevel)
	std.Printf("pebble: %s", "compaction")
	if !strings.Contains(buf.String(), "WARN  pebble: compaction") {
		t.Fatalf("unexpected: %q", buf.String())
	}
}
