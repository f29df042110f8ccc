// Package logring keeps a bounded in-memory tail of engine lifecycle
// log entries for the operational API.
package logring

import (
	"sync"
	"time"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one immutable lifecycle record.
type Entry struct {
	Time      time.Time `json:"time"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	AccountID string    `json:"account_id,omitempty"`
}

// Ring is a fixed-capacity append-only buffer; the oldest entry is
// evicted first. Safe for concurrent appenders.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 500
	}
	return &Ring{entries: make([]Entry, capacity)}
}

func (r *Ring) Append(level Level, accountID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = Entry{
		Time:      time.Now().UTC(),
		Level:     level,
		Message:   message,
		AccountID: accountID,
	}
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Entries returns a copy of the buffered entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}

	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.full {
		return len(r.entries)
	}
	return r.next
}
