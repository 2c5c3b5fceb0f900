//
//
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radio-control/mavbridge/internal/auth"
	"github.com/radio-control/mavbridge/internal/command"
	"github.com/radio-control/mavbridge/internal/config"
)

// FileName is the audit log inside the configured directory.
const FileName = "audit.jsonl"

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"ts"`
	User       string         `json:"user"`
	Subscriber string         `json:"subscriber,omitempty"`
	Action     string         `json:"action"`
	Params     map[string]any `json:"params"`
	Outcome    string         `json:"outcome"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	LatencyMs  float64        `json:"latencyMs"`
}

// Logger implements the audit logging functionality.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
	stderr   io.Writer
}

// Compile-time assertion that Logger implements command.AuditLogger
var _ command.AuditLogger = (*Logger)(nil)

// NewLogger creates a new audit logger writing to cfg.Dir.
func NewLogger(cfg config.AuditConfig) (*Logger, error) {
	// Ensure log directory exists
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(cfg.Dir, FileName)

	// Open eagerly so permission problems surface at startup
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	_ = f.Close()

	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		},
		stderr: os.Stderr,
	}, nil
}

// LogAction logs an audit record for a command action.
func (l *Logger) LogAction(ctx context.Context, action string, params map[string]any, result command.Result, latency time.Duration) {
	if params == nil {
		params = map[string]any{}
	}

	outcome := "SUCCESS"
	if !result.OK {
		outcome = "ERROR"
	}

	entry := AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		User:       userFromContext(ctx),
		Subscriber: command.SubscriberFrom(ctx),
		Action:     action,
		Params:     params,
		Outcome:    outcome,
		Code:       codeFromResult(result),
		Message:    result.Message,
		LatencyMs:  float64(latency.Microseconds()) / 1000,
	}

	l.writeEntry(entry)
}

// writeEntry writes an audit entry as one JSON line.
func (l *Logger) writeEntry(entry AuditEntry) {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		fmt.Fprintf(l.stderr, "Audit log closed, dropping %s entry\n", entry.Action)
		return
	}
	if _, err := l.out.Write(append(jsonData, '\n')); err != nil {
		fmt.Fprintf(l.stderr, "Failed to write audit entry: %v\n", err)
	}
}

// userFromContext returns the authenticated subject, or "unknown".
func userFromContext(ctx context.Context) string {
	if claims := auth.ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return "unknown"
}

// resultCodes are the message prefixes produced by the executor and session.
var resultCodes = []string{
	"NotConnected", "Transport", "Send", "UnsupportedMode", "InvalidParameter",
	"Timeout", "Canceled", "Forbidden", "Internal",
}

// codeFromResult maps a command result to a standardized code.
func codeFromResult(result command.Result) string {
	if result.OK {
		return "OK"
	}
	if result.Message == "not connected" {
		return "NotConnected"
	}
	prefix, _, found := strings.Cut(result.Message, ":")
	if found {
		for _, code := range resultCodes {
			if prefix == code {
				return code
			}
		}
	}
	return "ERROR"
}

// Close closes the audit logger and its file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out != nil {
		err := l.out.Close()
		l.out = nil
		return err
	}
	return nil
}

// GetFilePath returns the path to the audit log file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

// Rotate starts a new audit file, keeping the previous one as a backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return fmt.Errorf("audit log closed")
	}
	return l.out.Rotate()
}
