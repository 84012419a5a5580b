package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/queue/memory"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/worker"
)

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	w := worker.New(q, &poolAcquirer{}, nil, nil, nil, worker.Config{}, zap.NewNop())
	dispatch := New(q, []*worker.Worker{w}, &seqIDs{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(errorQueue{err: errors.New("queue full")}, nil, &seqIDs{}, nil)
	err := dispatch.Enqueue(context.Background(), cnr.QueueItem{JobID: "job-1"})
	require.EqualError(t, err, "queue enqueue: queue full")

	_, err = dispatch.Submit(context.Background(), cnr.Request{})
	require.EqualError(t, err, "queue enqueue: queue full")
}

func TestDispatcherSubmitWaitsForOwnResult(t *testing.T) {
	t.Parallel()

	dispatch, stop := startPool(t, 2, &poolAcquirer{delay: 5 * time.Millisecond})
	defer stop()

	rec, err := dispatch.Acquire(context.Background(), cnr.Request{Reference: "ABCD1234567890EF"})
	require.NoError(t, err)
	require.Equal(t, cnr.CaseReference("ABCD1234567890EF"), rec.Reference)

	_, err = dispatch.Acquire(context.Background(), cnr.Request{Reference: "NOTFOUND00000000"})
	require.ErrorIs(t, err, cnr.ErrRecordNotFound)
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const (
		poolSize = 3
		items    = 12
	)
	acq := &poolAcquirer{delay: 20 * time.Millisecond}
	dispatch, stop := startPool(t, poolSize, acq)
	defer stop()
	require.Equal(t, poolSize, dispatch.Size())

	var wg sync.WaitGroup
	results := make([]cnr.CaseRecord, items)
	errs := make([]error, items)
	for i := 0; i < items; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := cnr.CaseReference(fmt.Sprintf("ABCD%012d", i))
			results[i], errs[i] = dispatch.Acquire(context.Background(), cnr.Request{Reference: ref})
		}(i)
	}
	wg.Wait()

	for i := 0; i < items; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, cnr.CaseReference(fmt.Sprintf("ABCD%012d", i)), results[i].Reference)
	}
	require.LessOrEqual(t, acq.peak.Load(), int32(poolSize))
	require.Equal(t, int32(items), acq.calls.Load())
}

func TestDispatcherSubmitHonorsCallerContext(t *testing.T) {
	t.Parallel()

	// No workers: the item is queued but never answered.
	q := memory.NewQueue(1)
	dispatch := New(q, nil, &seqIDs{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := dispatch.Submit(ctx, cnr.Request{Reference: "ABCD1234567890EF"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "job-1")
}

func startPool(t *testing.T, size int, acq cnr.Acquirer) (*Dispatcher, func()) {
	t.Helper()
	q := memory.NewQueue(size)
	workers := make([]*worker.Worker, 0, size)
	for i := 0; i < size; i++ {
		workers = append(workers, worker.New(q, acq, nil, nil, nil, worker.Config{}, zap.NewNop()))
	}
	dispatch := New(q, workers, &seqIDs{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()
	return dispatch, func() {
		cancel()
		<-done
	}
}

// --- fakes ---

type poolAcquirer struct {
	delay  time.Duration
	active atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32
}

func (a *poolAcquirer) Acquire(ctx context.Context, req cnr.Request) (cnr.CaseRecord, error) {
	a.calls.Add(1)
	n := a.active.Add(1)
	defer a.active.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-ctx.Done():
		return cnr.CaseRecord{}, ctx.Err()
	case <-time.After(a.delay):
	}
	if req.Reference == "NOTFOUND00000000" {
		return cnr.CaseRecord{}, cnr.ErrRecordNotFound
	}
	return cnr.CaseRecord{Reference: req.Reference, RecordStatus: cnr.RecordStatusComplete}, nil
}

type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("job-%d", s.n.Add(1)), nil
}

type errorQueue struct {
	err error
}

func (q errorQueue) Enqueue(context.Context, cnr.QueueItem) error { return q.err }

func (q errorQueue) Dequeue(ctx context.Context) (cnr.QueueItem, error) {
	<-ctx.Done()
	return cnr.QueueItem{}, ctx.Err()
}
