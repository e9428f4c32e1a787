package discovery

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestAuditLogNilSafe(t *testing.T) {
	var a *AuditLog

	a.TokenIssued("203.0.113.9", 12345)
	a.TokenRejected("203.0.113.9")
	a.EchoSuppressed("abcd", "203.0.113.9")
	a.TokenAnnounceAccepted("abcd", "203.0.113.9", 4000)
	a.WhoamiInconsistent(2)
}

func TestAuditLogTokenIssued(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	a := NewAuditLog(handler)

	a.TokenIssued("203.0.113.9", 12345)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}

	if entry["msg"] != "token_issued" {
		t.Errorf("msg = %q, want %q", entry["msg"], "token_issued")
	}

	audit, ok := entry["audit"].(map[string]any)
	if !ok {
		t.Fatal("missing audit group in log entry")
	}
	if audit["host"] != "203.0.113.9" {
		t.Errorf("host = %q, want %q", audit["host"], "203.0.113.9")
	}
	if audit["port"] != float64(12345) {
		t.Errorf("port = %v, want %v", audit["port"], 12345)
	}
}

func TestAuditLogTokenRejected(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	a := NewAuditLog(handler)

	a.TokenRejected("203.0.113.9")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}
	if entry["msg"] != "token_rejected" {
		t.Errorf("msg = %q, want %q", entry["msg"], "token_rejected")
	}
}

func TestAuditLogTokenAnnounceAccepted(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	a := NewAuditLog(handler)

	a.TokenAnnounceAccepted("abcd", "203.0.113.9", 4000)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}

	audit, ok := entry["audit"].(map[string]any)
	if !ok {
		t.Fatal("missing audit group in log entry")
	}
	if audit["topic"] != "abcd" {
		t.Errorf("topic = %q, want %q", audit["topic"], "abcd")
	}
	if audit["port"] != float64(4000) {
		t.Errorf("port = %v, want %v", audit["port"], 4000)
	}
}

func TestAuditLogWhoamiInconsistent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	a := NewAuditLog(handler)

	a.WhoamiInconsistent(3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}
	if entry["msg"] != "whoami_inconsistent" {
		t.Errorf("msg = %q, want %q", entry["msg"], "whoami_inconsistent")
	}
}
