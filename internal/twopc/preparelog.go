package twopc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// PreparedParticipant is one shard's durable footprint within a prepared
// transaction: enough to resolve it again after a restart (its shard,
// the transaction id registered on that shard's tablet, and the prepare
// token returned by that shard).
type PreparedParticipant struct {
	Shard string `json:"shard"`
	TxID  string `json:"txId"`
	Token string `json:"token"`
}

// PrepareLogEntry is one durable record: a transaction reaching the
// prepared phase carries its full participant list; a later committed or
// aborted record for the same gtid needs only the phase, since recovery
// matches entries by gtid in append order.
type PrepareLogEntry struct {
	GTID         string                `json:"gtid"`
	Phase        Phase                 `json:"phase"`
	Participants []PreparedParticipant `json:"participants,omitempty"`
}

// PrepareLog is an append-only, fsync'd-before-reply record of prepare
// decisions, the durability boundary the design note requires: a commit
// decision only becomes binding once its PhasePrepared entry has reached
// disk. There is no compaction; a crash-recovery log for a gateway
// process is expected to stay small relative to its uptime.
type PrepareLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenPrepareLog opens (creating if absent) the append-only log at path.
func OpenPrepareLog(path string) (*PrepareLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("twopc: open prepare log: %w", err)
	}
	return &PrepareLog{path: path, f: f}, nil
}

// Append writes entry as one JSON line and fsyncs before returning, so a
// caller that observes a successful Append knows the record has reached
// stable storage.
func (l *PrepareLog) Append(entry PrepareLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("twopc: marshal prepare log entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := l.f.Write(line); err != nil {
		return fmt.Errorf("twopc: write prepare log entry: %w", err)
	}
	return l.f.Sync()
}

// Close closes the underlying log file.
func (l *PrepareLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// ReadAll replays every record in the log in append order, for recovery.
func (l *PrepareLog) ReadAll() ([]PrepareLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("twopc: seek prepare log: %w", err)
	}
	defer l.f.Seek(0, 2) // restore append position

	var entries []PrepareLogEntry
	scanner := bufio.NewScanner(l.f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e PrepareLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("twopc: decode prepare log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("twopc: scan prepare log: %w", err)
	}
	return entries, nil
}

// pendingFromLog folds the log's append-ordered entries down to the set
// of transactions whose most recent record is PhasePrepared (i.e. never
// reached a terminal committed/aborted record), each with the
// participant list from its prepare entry.
func pendingFromLog(entries []PrepareLogEntry) map[string][]PreparedParticipant {
	pending := map[string][]PreparedParticipant{}
	for _, e := range entries {
		switch e.Phase {
		case PhasePrepared:
			pending[e.GTID] = e.Participants
		case PhaseCommitted, PhaseAborted:
			delete(pending, e.GTID)
		}
	}
	return pending
}
