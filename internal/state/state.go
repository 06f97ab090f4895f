// Package state persists sync progress between runs so that subsequent
// syncs can fetch incrementally instead of re-reading every ticket.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/danielolaszy/obsync/internal/logging"
)

const (
	// schemaVersion tags the state file layout. Bump on breaking changes.
	schemaVersion = "1.0"

	// lockFileName sits beside the state file and coordinates runs.
	lockFileName = ".obsync.lock"

	// lockTimeout bounds how long a run waits for a concurrent run to finish.
	lockTimeout = 30 * time.Second

	// lockPollInterval is how often lock acquisition is retried.
	lockPollInterval = 100 * time.Millisecond
)

// TrackedTicket is the persisted record for one ticket that has been
// successfully written to the vault at least once.
type TrackedTicket struct {
	// Updated is the ticket's tracker-side update timestamp at the time of
	// the last successful write.
	Updated string `json:"updated"`

	// FilePath is the vault path the ticket was last written to.
	FilePath string `json:"file_path"`

	// LastSynced records when this entry was last refreshed.
	LastSynced string `json:"last_synced"`
}

// fileState is the on-disk layout of the state file.
type fileState struct {
	LastSync *string                  `json:"last_sync"`
	Tickets  map[string]TrackedTicket `json:"tickets"`
	Version  string                   `json:"version"`
}

func emptyState() fileState {
	return fileState{
		LastSync: nil,
		Tickets:  make(map[string]TrackedTicket),
		Version:  schemaVersion,
	}
}

// Store manages the persisted sync state. A Store is owned by exactly one
// sync run at a time; use Lock/Unlock to enforce that across processes.
type Store struct {
	path  string
	lock  *flock.Flock
	state fileState
}

// DefaultPath returns the state file location under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(dir, "obsync", "state.json"), nil
}

// Open loads the state file at path, or the default location when path is
// empty. A missing or corrupt file is not an error: the store starts fresh
// and the condition is logged, so a damaged state file can only cause a
// redundant full re-sync, never a failed run.
func Open(path string) (*Store, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	s := &Store{
		path: path,
		lock: flock.New(filepath.Join(filepath.Dir(path), lockFileName)),
	}
	s.state = s.load()
	return s, nil
}

// load reads the state file, falling back to an empty state on any failure.
func (s *Store) load() fileState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Debug("no state file found, starting fresh", "path", s.path)
		} else {
			logging.Warn("failed to read state file, starting fresh",
				"path", s.path,
				"error", err)
		}
		return emptyState()
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		logging.Warn("failed to parse state file, starting fresh",
			"path", s.path,
			"error", err)
		return emptyState()
	}
	if st.Tickets == nil {
		st.Tickets = make(map[string]TrackedTicket)
	}
	if st.Version == "" {
		st.Version = schemaVersion
	}

	logging.Debug("loaded state file",
		"path", s.path,
		"tracked_tickets", len(st.Tickets))
	return st
}

// Save writes the current state to disk. Unlike load, a save failure is
// surfaced: silently losing state causes spurious full re-syncs.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", s.path, err)
	}

	logging.Debug("saved state file", "path", s.path)
	return nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// LastSyncTime returns the watermark of the last fully successful run.
// The second return value is false before the first successful run.
func (s *Store) LastSyncTime() (time.Time, bool) {
	if s.state.LastSync == nil {
		return time.Time{}, false
	}
	t, err := parseTimestamp(*s.state.LastSync)
	if err != nil {
		logging.Warn("invalid last_sync timestamp in state", "value", *s.state.LastSync, "error", err)
		return time.Time{}, false
	}
	return t, true
}

// SetLastSyncTime advances the watermark.
func (s *Store) SetLastSyncTime(t time.Time) {
	formatted := t.UTC().Format(time.RFC3339)
	s.state.LastSync = &formatted
}

// Ticket returns the tracked entry for a ticket key.
func (s *Store) Ticket(key string) (TrackedTicket, bool) {
	t, ok := s.state.Tickets[key]
	return t, ok
}

// UpsertTicket records a successful write of a ticket to the vault.
func (s *Store) UpsertTicket(key, updated, filePath string) {
	s.state.Tickets[key] = TrackedTicket{
		Updated:    updated,
		FilePath:   filePath,
		LastSynced: time.Now().UTC().Format(time.RFC3339),
	}
}

// RemoveTicket drops a ticket from tracking.
func (s *Store) RemoveTicket(key string) {
	delete(s.state.Tickets, key)
}

// IsNewer reports whether a candidate update timestamp is strictly after the
// tracked timestamp for a ticket. Untracked tickets and unparsable timestamps
// are treated as newer: a redundant write is preferable to a missed update.
func (s *Store) IsNewer(key, candidate string) bool {
	tracked, ok := s.state.Tickets[key]
	if !ok {
		return true
	}

	trackedTime, err := parseTimestamp(tracked.Updated)
	if err != nil {
		logging.Warn("unparsable tracked timestamp, assuming updated",
			"ticket", key,
			"value", tracked.Updated)
		return true
	}
	candidateTime, err := parseTimestamp(candidate)
	if err != nil {
		logging.Warn("unparsable candidate timestamp, assuming updated",
			"ticket", key,
			"value", candidate)
		return true
	}

	return candidateTime.After(trackedTime)
}

// TrackedTickets returns a copy of all tracked entries keyed by ticket key.
func (s *Store) TrackedTickets() map[string]TrackedTicket {
	out := make(map[string]TrackedTicket, len(s.state.Tickets))
	for k, v := range s.state.Tickets {
		out[k] = v
	}
	return out
}

// Clear resets the store to an empty state, forcing the next sync to be full.
func (s *Store) Clear() {
	s.state = emptyState()
	logging.Info("cleared sync state")
}

// Lock acquires the run lock next to the state file. Concurrent runs against
// the same state file would race on load/save, so a second run blocks here
// until the first finishes or the timeout elapses.
func (s *Store) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, lockPollInterval)
	if err != nil {
		return fmt.Errorf("failed to acquire sync lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("sync lock %s held by another run", s.lock.Path())
	}
	return nil
}

// Unlock releases the run lock.
func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

// timestampFormats covers the shapes JIRA and our own state file produce.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimestamp parses a timestamp in any of the supported formats.
func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
