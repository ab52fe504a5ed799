package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Log is the append-only per-session event log. Appends are serialized both
// by an exclusive in-process mutex per session id and by an OS-level
// exclusive file lock on a sidecar ".lock" file, then flushed + fsynced
// before returning (§4.3). The in-process mutex alone only protects this
// process's own goroutines; the file lock guards the same durability
// invariant against any other process (a second meridian instance pointed at
// the same storage path, an operator's recovery tool, and so on) that might
// open the same session's log concurrently.
type Log struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLog creates a Log rooted at dir (sessions/{id}.jsonl live directly under it).
func NewLog(dir string) *Log {
	return &Log{dir: dir, locks: map[string]*sync.Mutex{}}
}

func (l *Log) sessionLock(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	return m
}

func (l *Log) path(sessionID string) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s.jsonl", sessionID))
}

func (l *Log) lockPath(sessionID string) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s.lock", sessionID))
}

// Append writes one event as a JSON line and fsyncs before returning (I6:
// the event stream is append-only and never rewritten).
func (l *Log) Append(sessionID string, ev Event) error {
	lock := l.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("creating event log directory: %w", err)
	}

	fl := flock.New(l.lockPath(sessionID))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring file lock for session %s: %w", sessionID, err)
	}
	defer fl.Unlock()

	f, err := os.OpenFile(l.path(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening event log for session %s: %w", sessionID, err)
	}
	defer f.Close()

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending event for session %s: %w", sessionID, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsyncing event log for session %s: %w", sessionID, err)
	}
	return nil
}

// Read returns every event recorded for a session, in append order.
// Malformed lines are skipped and logged rather than aborting the read —
// a single corrupted line must not hide the rest of the session's history.
func (l *Log) Read(sessionID string) ([]Event, error) {
	lock := l.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(l.path(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening event log for session %s: %w", sessionID, err)
	}
	defer f.Close()

	var out []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.Warn("event log: skipping malformed line", "session_id", sessionID, "error", err)
			continue
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("scanning event log for session %s: %w", sessionID, err)
	}
	return out, nil
}

// Delete removes a session's event log file entirely (used by session
// deletion, §6).
func (l *Log) Delete(sessionID string) error {
	lock := l.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return nil
	}

	fl := flock.New(l.lockPath(sessionID))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring file lock for session %s: %w", sessionID, err)
	}
	defer fl.Unlock()

	err := os.Remove(l.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(l.lockPath(sessionID))
	return nil
}
