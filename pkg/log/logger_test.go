package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New("test")
	l.SetWriter(&buf)
	l.SetColorize(false)
	l.SetLevel(WARN)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below WARN were not filtered: %q", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("WARN/ERROR messages missing: %q", out)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New("sched")
	l.SetWriter(&buf)
	l.SetColorize(false)

	l.Info("queued %d events", 3)

	out := buf.String()
	if !strings.Contains(out, "[INFO ]") {
		t.Errorf("missing level tag: %q", out)
	}
	if !strings.Contains(out, "sched: queued 3 events") {
		t.Errorf("missing prefix or message: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New("planner")
	l.SetWriter(&buf)
	l.SetFormat(FormatJSON)

	l.WithFields(ERROR, Fields{"axis": 2}, "unreachable target")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "ERROR" || entry["logger"] != "planner" {
		t.Errorf("unexpected entry: %v", entry)
	}
	fields, _ := entry["fields"].(map[string]interface{})
	if fields["axis"] != float64(2) {
		t.Errorf("missing field axis: %v", entry)
	}
}

func TestWithPrefixSharesSettings(t *testing.T) {
	var buf bytes.Buffer
	l := New("root")
	l.SetWriter(&buf)
	l.SetColorize(false)
	l.SetLevel(ERROR)

	child := l.WithPrefix("child")
	child.Warn("should be filtered")
	child.Error("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Errorf("child logger did not inherit level: %q", out)
	}
	if !strings.Contains(out, "child: should appear") {
		t.Errorf("child prefix missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"Warning": WARN,
		"error":   ERROR,
		"bogus":   INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
