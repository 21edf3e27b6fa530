package obs

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestLogRequestStampsServiceFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	LogRequest(map[string]any{"method": "GET", "path": "/v1/users/me", "status": 200})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "worklane-api" || entry["type"] != "request" {
		t.Fatalf("missing service stamp: %v", entry)
	}
	if entry["method"] != "GET" || entry["path"] != "/v1/users/me" {
		t.Fatalf("missing request fields: %v", entry)
	}
	if ts, _ := entry["ts"].(string); ts == "" {
		t.Fatalf("missing timestamp: %v", entry)
	}
}
