package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/radio-control/mavbridge/internal/auth"
	"github.com/radio-control/mavbridge/internal/command"
	"github.com/radio-control/mavbridge/internal/config"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	cfg := config.Defaults().Audit
	cfg.Dir = t.TempDir()

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

func readEntries(t *testing.T, path string) []AuditEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open audit log: %v", err)
	}
	defer func() { _ = f.Close() }()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("Invalid JSON line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	cfg := config.Defaults().Audit
	cfg.Dir = dir

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	expectedPath := filepath.Join(dir, "audit.jsonl")
	if logger.GetFilePath() != expectedPath {
		t.Errorf("Expected file path %s, got %s", expectedPath, logger.GetFilePath())
	}
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Error("Audit log file was not created")
	}
}

func TestNewLoggerUnwritableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults().Audit
	cfg.Dir = filepath.Join(blocker, "logs")

	if _, err := NewLogger(cfg); err == nil {
		t.Error("Expected error when the directory cannot be created")
	}
}

func TestLogAction(t *testing.T) {
	logger := newTestLogger(t)

	ctx := auth.WithClaims(context.Background(), &auth.Claims{Subject: "operator-1"})
	ctx = command.WithSubscriber(ctx, "sub-42")
	logger.LogAction(ctx, "set_mode", map[string]any{"mode": "HOLD"}, command.Success, 1500*time.Microsecond)

	entries := readEntries(t, logger.GetFilePath())
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.User != "operator-1" || e.Subscriber != "sub-42" || e.Action != "set_mode" {
		t.Errorf("Unexpected identity fields: %+v", e)
	}
	if e.Outcome != "SUCCESS" || e.Code != "OK" || e.Message != "OK" {
		t.Errorf("Unexpected outcome fields: %+v", e)
	}
	if e.Params["mode"] != "HOLD" {
		t.Errorf("Expected params preserved, got %v", e.Params)
	}
	if e.LatencyMs != 1.5 {
		t.Errorf("Expected latency 1.5ms, got %v", e.LatencyMs)
	}
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Error("Expected id and timestamp to be set")
	}
}

func TestLogActionFailureCodes(t *testing.T) {
	tests := []struct {
		message string
		code    string
	}{
		{"not connected", "NotConnected"},
		{"UnsupportedMode: mode \"FLIP\" not supported", "UnsupportedMode"},
		{"InvalidParameter: missing params.mode", "InvalidParameter"},
		{"Timeout: arm did not complete within 5s", "Timeout"},
		{"Forbidden: control scope required", "Forbidden"},
		{"Internal: boom", "Internal"},
		{"something odd", "ERROR"},
	}

	logger := newTestLogger(t)
	for _, tt := range tests {
		logger.LogAction(context.Background(), "arm", nil, command.Result{OK: false, Message: tt.message}, 0)
	}

	entries := readEntries(t, logger.GetFilePath())
	if len(entries) != len(tests) {
		t.Fatalf("Expected %d entries, got %d", len(tests), len(entries))
	}
	for i, tt := range tests {
		if entries[i].Code != tt.code || entries[i].Outcome != "ERROR" {
			t.Errorf("%q: expected code %s, got %+v", tt.message, tt.code, entries[i])
		}
		if entries[i].User != "unknown" || entries[i].Params == nil {
			t.Errorf("Expected defaults for anonymous entry, got %+v", entries[i])
		}
	}
}

func TestLogActionConcurrent(t *testing.T) {
	logger := newTestLogger(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.LogAction(context.Background(), "arm", nil, command.Success, time.Millisecond)
		}()
	}
	wg.Wait()

	if entries := readEntries(t, logger.GetFilePath()); len(entries) != 20 {
		t.Errorf("Expected 20 intact lines, got %d", len(entries))
	}
}

func TestCloseAndRotate(t *testing.T) {
	logger := newTestLogger(t)
	logger.LogAction(context.Background(), "arm", nil, command.Success, 0)

	if err := logger.Rotate(); err != nil {
		t.Fatalf("Rotate() failed: %v", err)
	}
	logger.LogAction(context.Background(), "disarm", nil, command.Success, 0)

	entries := readEntries(t, logger.GetFilePath())
	if len(entries) != 1 || entries[0].Action != "disarm" {
		t.Errorf("Expected only the post-rotation entry, got %+v", entries)
	}
	files, _ := filepath.Glob(filepath.Join(filepath.Dir(logger.GetFilePath()), "audit-*.jsonl"))
	if len(files) != 1 {
		t.Errorf("Expected one rotated backup, got %v", files)
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second Close() should be a no-op, got %v", err)
	}

	var stderr bytes.Buffer
	logger.stderr = &stderr
	logger.LogAction(context.Background(), "arm", nil, command.Success, 0)
	if !strings.Contains(stderr.String(), "closed") {
		t.Errorf("Expected closed-log notice, got %q", stderr.String())
	}
	if err := logger.Rotate(); err == nil {
		t.Error("Expected Rotate() on a closed log to fail")
	}
}
