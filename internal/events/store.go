// Package events keeps an append-only JSONL journal of state-changing
// operations (key generation and deletion, host edits, agent changes,
// backups, permission fixes, wizard steps).
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/treykane/sshkit/internal/appconfig"
	"github.com/treykane/sshkit/internal/util"
)

// Outcome values recorded with every event.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Operation names written to the journal.
const (
	OpKeyGenerate    = "key.generate"
	OpKeyDelete      = "key.delete"
	OpKeyPassphrase  = "key.passphrase"
	OpKeyCopy        = "key.copy"
	OpAgentAdd       = "agent.add"
	OpAgentRemove    = "agent.remove"
	OpAgentRemoveAll = "agent.remove-all"
	OpHostAdd        = "host.add"
	OpHostRemove     = "host.remove"
	OpConnectionTest = "connection.test"
	OpBackup         = "backup.create"
	OpRestore        = "backup.restore"
	OpFixPermissions = "security.fix-permissions"
	OpWizardVerify   = "wizard.verify"
)

// Event is one operation record persisted to events.jsonl.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Subject   string    `json:"subject,omitempty"`
	Outcome   string    `json:"outcome"`
	Message   string    `json:"message,omitempty"`
}

// Query controls event filtering and bounded reads.
type Query struct {
	Operation string
	Subject   string
	Outcome   string
	Since     time.Time
	Limit     int
}

// Store provides append/read access to the local event journal.
type Store struct {
	// Path overrides the journal location; empty means the config directory.
	Path string
}

// NewStore returns a store journaling to events.jsonl in the config directory.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) filePath() (string, error) {
	if s != nil && s.Path != "" {
		return s.Path, nil
	}
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "events.jsonl"), nil
}

// Append writes a single event as one JSON line.
func (s *Store) Append(evt Event) error {
	path, err := s.filePath()
	if err != nil {
		return err
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.Outcome == "" {
		evt.Outcome = OutcomeOK
	}
	if err := os.MkdirAll(filepath.Dir(path), util.DirMode); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, util.ConfigMode)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// Record appends an event for op with the outcome derived from err. Journal
// failures are logged, never returned: the operation itself already happened.
func (s *Store) Record(op, subject string, err error) {
	if s == nil {
		return
	}
	evt := Event{Operation: op, Subject: subject, Outcome: OutcomeOK}
	if err != nil {
		evt.Outcome = OutcomeFailed
		evt.Message = err.Error()
	}
	if appendErr := s.Append(evt); appendErr != nil {
		slog.Warn("append event", "operation", op, "error", appendErr)
	}
}

// Read returns events in append order, filtered by query, with optional limit.
func (s *Store) Read(q Query) ([]Event, error) {
	path, err := s.filePath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			continue
		}
		if !matches(evt, q) {
			continue
		}
		out = append(out, evt)
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[len(out)-q.Limit:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

func matches(evt Event, q Query) bool {
	if strings.TrimSpace(q.Operation) != "" && evt.Operation != q.Operation {
		return false
	}
	if strings.TrimSpace(q.Subject) != "" && evt.Subject != q.Subject {
		return false
	}
	if strings.TrimSpace(q.Outcome) != "" && evt.Outcome != q.Outcome {
		return false
	}
	if !q.Since.IsZero() && evt.Timestamp.Before(q.Since) {
		return false
	}
	return true
}
