package events

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreAppendReadAndFilters(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	base := time.Now().Add(-2 * time.Hour).UTC()
	seed := []Event{
		{Timestamp: base, Operation: "key.generate", Subject: "id_ed25519"},
		{Timestamp: base.Add(10 * time.Minute), Operation: "host.add", Subject: "prod"},
		{Timestamp: base.Add(20 * time.Minute), Operation: "host.remove", Subject: "prod", Outcome: OutcomeFailed},
	}
	for _, evt := range seed {
		if err := s.Append(evt); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := s.Read(Query{})
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].Outcome != OutcomeOK {
		t.Fatalf("missing outcome should default to ok, got %q", all[0].Outcome)
	}

	subject, err := s.Read(Query{Subject: "prod"})
	if err != nil {
		t.Fatalf("read subject: %v", err)
	}
	if len(subject) != 2 {
		t.Fatalf("expected 2 prod events, got %d", len(subject))
	}

	failed, err := s.Read(Query{Outcome: OutcomeFailed})
	if err != nil {
		t.Fatalf("read outcome: %v", err)
	}
	if len(failed) != 1 || failed[0].Operation != "host.remove" {
		t.Fatalf("unexpected failed result: %+v", failed)
	}

	limited, err := s.Read(Query{Limit: 1})
	if err != nil {
		t.Fatalf("read limit: %v", err)
	}
	if len(limited) != 1 || limited[0].Operation != "host.remove" {
		t.Fatalf("unexpected limited result: %+v", limited)
	}

	since, err := s.Read(Query{Since: base.Add(15 * time.Minute)})
	if err != nil {
		t.Fatalf("read since: %v", err)
	}
	if len(since) != 1 {
		t.Fatalf("unexpected since result: %+v", since)
	}
}

func TestRecordDerivesOutcome(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "events.jsonl")
	s := &Store{Path: path}
	s.Record("agent.add", "/k/id", nil)
	s.Record("agent.add", "/k/other", errors.New("could not add key to agent"))

	got, err := s.Read(Query{Operation: "agent.add"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Outcome != OutcomeOK || got[1].Outcome != OutcomeFailed {
		t.Fatalf("unexpected events %+v", got)
	}
	if got[1].Message == "" {
		t.Fatal("failure message not recorded")
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("journal mode = %#o, want 0600", st.Mode().Perm())
	}
}

func TestReadMissingJournal(t *testing.T) {
	s := &Store{Path: filepath.Join(t.TempDir(), "none.jsonl")}
	got, err := s.Read(Query{})
	if err != nil || got != nil {
		t.Fatalf("expected empty read, got %v %v", got, err)
	}
}

func TestNilStoreRecordIsNoop(t *testing.T) {
	var s *Store
	s.Record("x", "y", nil)
}
