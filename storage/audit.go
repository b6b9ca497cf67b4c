package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType classifies an audit log entry.
type AuditEventType string

const (
	AuditRolesChecked  AuditEventType = "roles_checked"
	AuditRoleAssigned  AuditEventType = "role_assigned"
	AuditAssignFailed  AuditEventType = "assign_failed"
	AuditInstancesSeen AuditEventType = "instances_seen"
)

// AuditEntry is one append-only record of a mutating or compliance
// operation.
type AuditEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
	Type      AuditEventType  `json:"type"`
	Scope     string          `json:"scope,omitempty"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
}

// AuditLog is an append-only JSONL log of role reconciliation activity.
// Every role assignment the tool creates leaves a durable trace here.
type AuditLog struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
}

// OpenAuditLog creates or opens the audit log under dir. Each process
// run appends to its own file.
func OpenAuditLog(dir string) (*AuditLog, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	filename := fmt.Sprintf("audit-%s.jsonl", time.Now().Format("20060102-150405"))
	file, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) // #nosec G304 -- dir comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &AuditLog{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Close flushes and closes the log.
func (l *AuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

// Record appends an entry. scope is the ARM resource the event acted on.
func (l *AuditLog) Record(eventType AuditEventType, scope string, data interface{}) error {
	return l.append(eventType, scope, data, nil)
}

// RecordError appends an entry for a failed operation.
func (l *AuditLog) RecordError(eventType AuditEventType, scope string, data interface{}, cause error) error {
	return l.append(eventType, scope, data, cause)
}

func (l *AuditLog) append(eventType AuditEventType, scope string, data interface{}, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence++

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal audit data: %w", err)
	}

	entry := AuditEntry{
		Timestamp: time.Now(),
		Sequence:  l.sequence,
		Type:      eventType,
		Scope:     scope,
		Data:      payload,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	if _, err := l.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	if _, err := l.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush audit log: %w", err)
	}
	return l.file.Sync()
}

// ReplayAudit walks every audit file under dir and invokes handler for
// each entry recorded after since.
func ReplayAudit(dir string, since time.Time, handler func(AuditEntry) error) error {
	files, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	if err != nil {
		return fmt.Errorf("failed to list audit files: %w", err)
	}

	for _, path := range files {
		if err := replayFile(path, since, handler); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(path string, since time.Time, handler func(AuditEntry) error) error {
	file, err := os.Open(path) // #nosec G304 -- paths come from the glob above
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("corrupt audit entry in %s: %w", filepath.Base(path), err)
		}
		if !entry.Timestamp.After(since) {
			continue
		}
		if err := handler(entry); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
