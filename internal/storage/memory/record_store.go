package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

// RecordStore keeps acquisition entries in memory.
type RecordStore struct {
	mu     sync.RWMutex
	byJob  map[string]cnr.RecordEntry
	latest map[cnr.CaseReference]string
}

var _ cnr.RecordStore = (*RecordStore)(nil)

// NewRecordStore builds an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		byJob:  make(map[string]cnr.RecordEntry),
		latest: make(map[cnr.CaseReference]string),
	}
}

// SaveRecord stores entry, replacing any previous entry for the same job.
func (s *RecordStore) SaveRecord(_ context.Context, entry cnr.RecordEntry) error {
	if entry.JobID == "" {
		return fmt.Errorf("job id is required")
	}
	if entry.Record != nil {
		rec := *entry.Record
		rec.Documents = append([]cnr.DocumentReference(nil), rec.Documents...)
		entry.Record = &rec
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byJob[entry.JobID] = entry
	s.latest[entry.Reference] = entry.JobID
	return nil
}

// Get returns the entry saved for jobID.
func (s *RecordStore) Get(jobID string) (cnr.RecordEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byJob[jobID]
	return entry, ok
}

// Latest returns the most recently saved entry for ref.
func (s *RecordStore) Latest(ref cnr.CaseReference) (cnr.RecordEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobID, ok := s.latest[ref]
	if !ok {
		return cnr.RecordEntry{}, false
	}
	entry, ok := s.byJob[jobID]
	return entry, ok
}

// Close is a no-op.
func (s *RecordStore) Close() error { return nil }
