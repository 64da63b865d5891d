// Package worker runs background rescore jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	model "github.com/okian/readq/internal/domain/model"
	"github.com/okian/readq/pkg/logger"
	"github.com/okian/readq/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Job is what workers read off the queue.
type Job = model.RescoreJob

// Source supplies jobs. Dequeue returns an error once no more jobs will come.
type Source interface {
	Dequeue(ctx context.Context) (Job, error)
}

// Handler performs one job.
type Handler interface {
	HandleRescore(ctx context.Context, job Job) error
}

// InMemoryWorker pulls jobs from a Source and hands them to a Handler.
type InMemoryWorker struct {
	source  Source
	handler Handler
	name    string
	logger  logger.Logger
	done    chan struct{}
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(source Source, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:  source,
		handler: handler,
		name:    "worker",
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run processes jobs until the source is exhausted or ctx is canceled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		job, err := w.source.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.logger.Debug(ctx, "worker stopping", logger.Error(err))
			}
			return
		}
		if err := w.process(ctx, job); err != nil {
			w.logger.Error(ctx, "rescore job failed",
				logger.String("job_id", job.JobID),
				logger.String("user_id", job.UserID),
				logger.Error(err),
			)
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, job Job) (err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			metrics.RecordErrorByComponent("worker", "rescore_failed")
		}
		metrics.RecordWorkerJob(result, float64(time.Since(start).Microseconds())/1000)
	}()

	if err := w.handler.HandleRescore(ctx, job); err != nil {
		return fmt.Errorf("rescore user %s: %w", job.UserID, err)
	}
	return nil
}

// Pool runs a fixed number of workers over one Source.
type Pool struct {
	workers []*InMemoryWorker
	source  Source
	cancel  context.CancelFunc
	logger  logger.Logger
	mu      sync.Mutex
	started bool
}

// NewPool creates a pool. A workerCount below one uses runtime.NumCPU().
func NewPool(workerCount int, source Source, handler Handler) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		source:  source,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(source, handler, WithName("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, w := range p.workers {
		go w.Run(runCtx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
}

// Shutdown closes the source, if it can be closed, lets workers drain the
// remaining jobs and waits for them. Workers still busy when ctx expires are
// canceled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !started {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-waitCtx.Done():
			if !timedOut {
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				timedOut = true
				p.cancel()
			}
			<-w.Done()
		}
	}
	p.cancel()
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", waitCtx.Err())
	}
	return nil
}
