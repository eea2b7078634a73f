package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("log output is not JSON: %q", buf.String())
	}
	return out
}

func TestLogger_MasksDefaultSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	logger.Info(context.Background(), "login", "password", "hunter2-long-enough", "user", "alice")

	line := logLine(t, &buf)
	if line["password"] != "[REDACTED]" {
		t.Errorf("password = %v, want [REDACTED]", line["password"])
	}
	if line["user"] != "alice" {
		t.Errorf("user = %v, want alice", line["user"])
	}
}

func TestLogger_MasksConfiguredKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{
		Output:     &buf,
		RedactKeys: []string{"session-id", "INTERNAL_REF"},
	})

	logger.Info(context.Background(), "request",
		"session_id", "abc123",
		"internal_ref", "ref-9",
		"path", "/chat",
	)

	line := logLine(t, &buf)
	if line["session_id"] != "[REDACTED]" {
		t.Errorf("session_id = %v, want [REDACTED]", line["session_id"])
	}
	if line["internal_ref"] != "[REDACTED]" {
		t.Errorf("internal_ref = %v, want [REDACTED]", line["internal_ref"])
	}
	if line["path"] != "/chat" {
		t.Errorf("path = %v, want /chat", line["path"])
	}
}

func TestLogger_RedactsPatternsInValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	logger.Info(context.Background(), "signup", "detail", "contact bob@example.com for access")

	line := logLine(t, &buf)
	detail, _ := line["detail"].(string)
	if strings.Contains(detail, "bob@example.com") {
		t.Errorf("email leaked: %q", detail)
	}
	if !strings.Contains(detail, "[REDACTED]") {
		t.Errorf("detail = %q, want redaction marker", detail)
	}
}

func TestLogger_RedactsNestedMaps(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	logger.Info(context.Background(), "payload", "body", map[string]any{
		"token": "tok-abcdefghijklmnop",
		"name":  "quarterly order",
	})

	line := logLine(t, &buf)
	body, ok := line["body"].(map[string]any)
	if !ok {
		t.Fatalf("body = %#v", line["body"])
	}
	if body["token"] != "[REDACTED]" {
		t.Errorf("token = %v, want [REDACTED]", body["token"])
	}
	if body["name"] != "quarterly order" {
		t.Errorf("name = %v", body["name"])
	}
}
