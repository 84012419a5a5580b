package cnr

import (
	"context"
	"io"
	"time"
)

// Acquirer runs one request to completion.
type Acquirer interface {
	Acquire(ctx context.Context, req Request) (CaseRecord, error)
}

// BlobStore writes document bytes and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RecordStore persists acquisition outcomes.
type RecordStore interface {
	SaveRecord(ctx context.Context, entry RecordEntry) error
	Close() error
}

// RecordEntry is one persisted acquisition.
type RecordEntry struct {
	JobID      string
	Reference  CaseReference
	Cutoff     string
	Outcome    Outcome
	Record     *CaseRecord
	ErrText    string
	FinishedAt time.Time
	Duration   time.Duration
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for acquisition jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests of downloaded documents.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
