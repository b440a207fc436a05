package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ljbeal/MCP-remotemanager/config"
)

func TestNewLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remoterun.log")
	logger, closer, err := NewLogger("remoterun", config.LogConfig{File: path})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	dispatchLog := Component(logger, "dispatcher")
	dispatchLog.Debug().Str("run", "add_box_1").Msg("run staged")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	for key, want := range map[string]string{
		"app":       "remoterun",
		"component": "dispatcher",
		"level":     "debug",
		"run":       "add_box_1",
		"message":   "run staged",
	} {
		if entry[key] != want {
			t.Fatalf("%s: got %v, want %q", key, entry[key], want)
		}
	}
}

func TestNewLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remoterun.log")
	for i := 0; i < 2; i++ {
		logger, closer, err := NewLogger("remoterun", config.LogConfig{File: path})
		if err != nil {
			t.Fatalf("new logger: %v", err)
		}
		logger.Info().Msg("started")
		closer.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Fatalf("log must be appended to, got %d lines", n)
	}
}

func TestNewLoggerBadPath(t *testing.T) {
	if _, _, err := NewLogger("remoterun", config.LogConfig{File: filepath.Join(t.TempDir(), "missing", "x.log")}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRecordRunRegisters(t *testing.T) {
	RecordRun("shell", "success", 0)
	RecordHTTPRequest("POST", "/api/run_code", 200)
	RegisterMetrics()
}
