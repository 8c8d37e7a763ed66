package consensus

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// LogEntry is one ordered, committable unit of replicated state. Entries are
// never reordered or mutated after append, only marked committed.
type LogEntry struct {
	Term      uint64    `json:"term"`
	Index     int       `json:"index"` // zero-based, contiguous
	Command   any       `json:"command"`
	CreatedAt time.Time `json:"created_at"`
	Committed bool      `json:"committed"`
	Checksum  uint64    `json:"checksum"`
}

// newLogEntry creates an entry with its integrity checksum.
func newLogEntry(term uint64, index int, command any) *LogEntry {
	return &LogEntry{
		Term:      term,
		Index:     index,
		Command:   command,
		CreatedAt: time.Now(),
		Checksum:  entryChecksum(term, index, command),
	}
}

// entryChecksum hashes the immutable entry fields.
func entryChecksum(term uint64, index int, command any) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%d:%d:%v", term, index, command))
}

// Verify recomputes the checksum against the stored one.
func (e *LogEntry) Verify() bool {
	return e.Checksum == entryChecksum(e.Term, e.Index, e.Command)
}
