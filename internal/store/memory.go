package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Memory is the in-process record store used when no DATABASE_URL is
// configured, and by tests.
type Memory struct {
	mu      sync.Mutex
	records map[string]json.RawMessage
	runs    []MemoryRun
}

// MemoryRun mirrors a persisted SyncRun without the database types.
type MemoryRun struct {
	AccountID string
	StartedAt time.Time
	Counts    map[string]int
	Error     string
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]json.RawMessage)}
}

func (s *Memory) UpsertRecords(_ context.Context, accountID, endpoint string, items []json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	for i, item := range items {
		externalID := ExternalID(item)
		if externalID == "" {
			externalID = fmt.Sprintf("%s-%d-%d", endpoint, now, i)
		}
		s.records[accountID+"/"+endpoint+"/"+externalID] = item
	}
	return nil
}

func (s *Memory) RecordSyncRun(_ context.Context, accountID string, startedAt time.Time, counts map[string]int, syncErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]int, len(counts))
	for k, v := range counts {
		copied[k] = v
	}
	s.runs = append(s.runs, MemoryRun{
		AccountID: accountID,
		StartedAt: startedAt,
		Counts:    copied,
		Error:     syncErr,
	})
	return nil
}

// RecordCount reports the number of distinct mirrored records.
func (s *Memory) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Runs returns a copy of the recorded sync runs.
func (s *Memory) Runs() []MemoryRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MemoryRun, len(s.runs))
	copy(out, s.runs)
	return out
}
