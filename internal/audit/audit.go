// Package audit keeps a tamper-evident journal of the launchd changes adm
// makes, so a turned-off service can be traced back to the run that did it.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/breeze-rmm/adm/internal/launchd"
	"github.com/breeze-rmm/adm/internal/logging"
)

var log = logging.L("audit")

// Event types.
const (
	EventRunStart   = "run_start"
	EventRunEnd     = "run_end"
	EventTurnOff    = "turn_off"
	EventBootUp     = "boot_up"
	EventBootOut    = "boot_out"
	EventKill       = "kill"
	EventLogRotated = "log_rotated"
)

// Results recorded for target events.
const (
	ResultOK         = "ok"
	ResultNotRunning = "not_running"
	ResultError      = "error"
	ResultSkipped    = "skipped"
)

const genesis = "genesis"

// Run boundaries are synced to disk.
var criticalEvents = map[string]bool{
	EventRunStart: true,
	EventRunEnd:   true,
}

// Entry is one journal record.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Target    string         `json:"target,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prevHash"`
	EntryHash string         `json:"entryHash"`
}

// Logger appends hash-chained JSONL entries. Each entry carries the hash
// of its predecessor; on rotation the new file opens with a sentinel that
// links to the last entry of the old file. Reopening an existing journal
// continues its chain.
type Logger struct {
	mu         sync.Mutex
	file       *os.File
	filePath   string
	maxSize    int64
	maxBackups int
	written    int64
	prevHash   string
	dropped    atomic.Int64
}

// NewLogger opens (or creates) the journal at path. Non-positive limits
// select 10 MB and 3 backups.
func NewLogger(path string, maxSizeMB, maxBackups int) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}

	prev, err := lastHash(path)
	if err != nil {
		return nil, err
	}

	l := &Logger{
		filePath:   path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		prevHash:   prev,
	}
	if err := l.openFile(); err != nil {
		return nil, err
	}
	log.Debug("audit journal opened", "path", path)
	return l, nil
}

// Path returns the journal file.
func (l *Logger) Path() string { return l.filePath }

// Record journals the result of an action on target. A ServiceNotRunning
// error is recorded as its own result rather than as a failure. Safe to
// call on a nil receiver.
func (l *Logger) Record(event, target string, err error, details map[string]any) {
	if l == nil {
		return
	}
	e := Entry{Event: event, Target: target, Result: ResultOK, Details: details}
	switch {
	case err == nil:
	case launchd.IsNotRunning(err):
		e.Result = ResultNotRunning
	default:
		e.Result = ResultError
		e.Error = err.Error()
	}
	l.write(e)
}

// Skip journals a target that was not attempted.
func (l *Logger) Skip(event, target, reason string) {
	if l == nil {
		return
	}
	l.write(Entry{Event: event, Target: target, Result: ResultSkipped, Details: map[string]any{"reason": reason}})
}

// Log journals an event without a target.
func (l *Logger) Log(event string, details map[string]any) {
	if l == nil {
		return
	}
	l.write(Entry{Event: event, Details: details})
}

func (l *Logger) write(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		l.dropped.Add(1)
		return
	}

	entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	entry.PrevHash = l.prevHash

	data, err := seal(&entry)
	if err != nil {
		log.Error("failed to encode audit entry", logging.KeyError, err, "event", entry.Event)
		l.dropped.Add(1)
		return
	}

	if l.written+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			log.Error("audit journal rotation failed", logging.KeyError, err)
			l.dropped.Add(1)
			return
		}
		// the chain now continues from the sentinel
		entry.PrevHash = l.prevHash
		if data, err = seal(&entry); err != nil {
			l.dropped.Add(1)
			return
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		log.Error("failed to write audit entry", logging.KeyError, err, "event", entry.Event)
		l.dropped.Add(1)
		return
	}
	l.written += int64(n)
	l.prevHash = entry.EntryHash

	if criticalEvents[entry.Event] {
		if err := l.file.Sync(); err != nil {
			log.Warn("failed to fsync audit entry", logging.KeyError, err, "event", entry.Event)
		}
	}
}

// Close closes the journal. Safe to call on a nil receiver.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// DroppedCount returns how many entries failed to write, or -1 for a nil
// logger.
func (l *Logger) DroppedCount() int64 {
	if l == nil {
		return -1
	}
	return l.dropped.Load()
}

// seal computes the entry hash and returns the JSON line.
func seal(entry *Entry) ([]byte, error) {
	hash, err := computeHash(*entry)
	if err != nil {
		return nil, err
	}
	entry.EntryHash = hash
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// computeHash hashes the length-prefixed fields of entry, so that no
// field content can be shifted into a neighbour.
func computeHash(entry Entry) (string, error) {
	h := sha256.New()
	for _, field := range []string{entry.Timestamp, entry.Event, entry.Target, entry.Result, entry.Error, entry.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if entry.Details != nil {
		detailBytes, err := json.Marshal(entry.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details for hash: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(detailBytes))
		h.Write(detailBytes)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (l *Logger) openFile() error {
	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit journal: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit journal: %w", err)
	}
	l.file = f
	l.written = info.Size()
	return nil
}

func (l *Logger) rotate() error {
	prevHashBeforeRotation := l.prevHash

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	// .N is dropped, .N-1 becomes .N, ..., the live file becomes .1
	os.Remove(l.backupName(l.maxBackups))
	for i := l.maxBackups; i >= 2; i-- {
		if err := os.Rename(l.backupName(i-1), l.backupName(i)); err != nil && !os.IsNotExist(err) {
			log.Warn("audit rotation: failed to rename backup", "index", i-1, logging.KeyError, err)
		}
	}
	if err := os.Rename(l.filePath, l.backupName(1)); err != nil && !os.IsNotExist(err) {
		log.Warn("audit rotation: failed to rename current journal", logging.KeyError, err)
	}

	if err := l.openFile(); err != nil {
		return err
	}

	sentinel := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Event:     EventLogRotated,
		PrevHash:  prevHashBeforeRotation,
		Details:   map[string]any{"previousFile": l.backupName(1)},
	}
	data, err := seal(&sentinel)
	if err != nil {
		return fmt.Errorf("seal rotation sentinel: %w", err)
	}
	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("write rotation sentinel: %w", err)
	}
	l.written += int64(n)
	l.prevHash = sentinel.EntryHash
	return nil
}

func (l *Logger) backupName(index int) string {
	return fmt.Sprintf("%s.%d", l.filePath, index)
}

// lastHash returns the hash of the last entry in path, or genesis when the
// file is missing or empty.
func lastHash(path string) (string, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return genesis, nil
		}
		return "", err
	}
	if len(entries) == 0 {
		return genesis, nil
	}
	return entries[len(entries)-1].EntryHash, nil
}

// ReadEntries decodes every entry of a journal file.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// Verify recomputes the chain of a journal file and returns the number of
// entries checked. The first entry may link to anything: genesis or the
// last hash of a rotated-away file.
func Verify(path string) (int, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		want, err := computeHash(e)
		if err != nil {
			return i, err
		}
		if want != e.EntryHash {
			return i, fmt.Errorf("entry %d (%s %s): hash mismatch", i+1, e.Event, e.Target)
		}
		if i > 0 && e.PrevHash != entries[i-1].EntryHash {
			return i, fmt.Errorf("entry %d (%s %s): chain broken", i+1, e.Event, e.Target)
		}
	}
	return len(entries), nil
}
