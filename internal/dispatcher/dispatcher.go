// Package dispatcher manages worker fan-out over the job queue and lets
// callers wait for their own job's result.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   cnr.Queue
	workers []*worker.Worker
	ids     cnr.IDGenerator
	clock   cnr.Clock
}

// New creates a Dispatcher.
func New(queue cnr.Queue, workers []*worker.Worker, ids cnr.IDGenerator, clock cnr.Clock) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		ids:     ids,
		clock:   clock,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Size returns the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item cnr.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Acquire submits req and blocks until a worker posts its result or ctx
// ends. It satisfies cnr.Acquirer so callers need not know about the pool.
func (d *Dispatcher) Acquire(ctx context.Context, req cnr.Request) (cnr.CaseRecord, error) {
	res, err := d.Submit(ctx, req)
	if err != nil {
		return cnr.CaseRecord{}, err
	}
	return res.Record, res.Err
}

// Submit enqueues req under a fresh job ID and waits for its Result.
func (d *Dispatcher) Submit(ctx context.Context, req cnr.Request) (cnr.Result, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return cnr.Result{}, fmt.Errorf("generate job id: %w", err)
	}
	item := cnr.QueueItem{
		JobID:     id,
		Request:   req,
		Submitted: d.now(),
		Reply:     make(chan cnr.Result, 1),
	}
	if err := d.Enqueue(ctx, item); err != nil {
		return cnr.Result{}, err
	}
	select {
	case <-ctx.Done():
		return cnr.Result{}, fmt.Errorf("wait for job %s: %w", id, ctx.Err())
	case res := <-item.Reply:
		return res, nil
	}
}

func (d *Dispatcher) now() time.Time {
	if d.clock == nil {
		return time.Now()
	}
	return d.clock.Now()
}
