package obs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogRequestStampsDefaults(t *testing.T) {
	logger := Logger()
	origWriter := logger.Writer()

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(origWriter)

	LogRequest(map[string]any{"msg": "request_complete", "status": 200})

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	if entry["level"] != "info" {
		t.Fatalf("level = %v", entry["level"])
	}
	if ts, _ := entry["ts"].(string); ts == "" {
		t.Fatal("expected ts to be stamped")
	}

	buf.Reset()
	LogRequest(map[string]any{"msg": "probe", "level": "warn"})
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	if entry["level"] != "warn" {
		t.Fatalf("caller level overridden: %v", entry["level"])
	}
}
