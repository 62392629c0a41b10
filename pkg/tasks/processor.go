package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ndexbio/ndexgraph/pkg/metrics"
	"github.com/ndexbio/ndexgraph/pkg/ndexdb"
)

// Handler performs one task. Returning an error nacks the task for another
// delivery.
type Handler func(ctx context.Context, t *Task) error

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	// Workers is the number of concurrent claim loops. Default: 1.
	Workers int
	// PollInterval is the wait after finding the queue empty. Default: 1s.
	PollInterval time.Duration
	// MaxAttempts discards a task delivered more often than this. 0 means
	// unlimited.
	MaxAttempts int
}

// Processor runs claimed tasks through their type's handler.
type Processor struct {
	queue Consumer
	opts  ProcessorOptions

	mu       sync.RWMutex
	handlers map[TaskType]Handler
}

// NewProcessor returns a processor with no handlers registered.
func NewProcessor(queue Consumer, opts ProcessorOptions) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Processor{
		queue:    queue,
		opts:     opts,
		handlers: make(map[TaskType]Handler),
	}
}

// Handle registers h for tasks of type t, replacing any previous handler.
func (p *Processor) Handle(t TaskType, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[t] = h
}

// Run starts the workers and blocks until ctx is cancelled or a worker hits a
// queue error. Cancellation is a clean stop and returns nil.
func (p *Processor) Run(ctx context.Context) error {
	log.Printf("[Tasks] Processor started with %d worker(s)", p.opts.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		worker := i
		g.Go(func() error { return p.work(gctx, worker) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	log.Printf("[Tasks] Processor stopped")
	return err
}

func (p *Processor) work(ctx context.Context, worker int) error {
	for {
		processed, err := p.ProcessOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("worker %d: %w", worker, err)
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.opts.PollInterval):
		}
	}
}

// Drain processes tasks until none is visible or a handler fails, and returns
// how many it handled.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		t, err := p.process(ctx)
		if err != nil || t == nil {
			return n, err
		}
		n++
		if t.Status == StatusFailed {
			return n, nil
		}
	}
}

// ProcessOne claims and runs a single task. It reports false when the queue
// had nothing visible. Handler failures are not returned; they nack the
// task. Only queue errors are.
func (p *Processor) ProcessOne(ctx context.Context) (bool, error) {
	t, err := p.process(ctx)
	return t != nil, err
}

// process returns the task it handled, with its final status, or nil.
func (p *Processor) process(ctx context.Context) (*Task, error) {
	t, err := p.queue.Claim(ctx)
	if err != nil || t == nil {
		return nil, err
	}

	if p.opts.MaxAttempts > 0 && t.Attempts > p.opts.MaxAttempts {
		log.Printf("[Tasks] Discarding %s after %d attempts", t, t.Attempts-1)
		metrics.TasksProcessed.WithLabelValues(string(t.Type), "discarded").Inc()
		return t, p.queue.Ack(ctx, t.ID)
	}

	p.mu.RLock()
	h, ok := p.handlers[t.Type]
	p.mu.RUnlock()
	if !ok {
		t.Status = StatusFailed
		log.Printf("[Tasks] %s %s: %v", t, t.Status, ErrUnsupportedTask)
		metrics.TasksProcessed.WithLabelValues(string(t.Type), "unsupported").Inc()
		return t, p.queue.Ack(ctx, t.ID)
	}

	t.Status = StatusProcessing
	log.Printf("[Tasks] %s %s (attempt %d)", t, t.Status, t.Attempts)
	start := time.Now()

	if err := h(ctx, t); err != nil {
		t.Status = StatusFailed
		log.Printf("[Tasks] %s %s: %v", t, t.Status, err)
		metrics.TasksProcessed.WithLabelValues(string(t.Type), "failed").Inc()
		// the task goes back even if ctx is done
		return t, p.queue.Nack(context.Background(), t.ID)
	}

	t.Status = StatusCompleted
	log.Printf("[Tasks] %s %s in %v", t, t.Status, time.Since(start))
	metrics.TasksProcessed.WithLabelValues(string(t.Type), "completed").Inc()
	return t, p.queue.Ack(context.Background(), t.ID)
}

// DeleteNetworkHandler removes the network named by the task resource.
// Unknown networks are already gone, which counts as success. A resource that
// is not a UUID can never succeed and is dropped. A deletion that removed
// anything is followed by value log GC.
func DeleteNetworkHandler(db *ndexdb.DB) Handler {
	return func(ctx context.Context, t *Task) error {
		id, err := uuid.Parse(t.Resource)
		if err != nil {
			log.Printf("[Tasks] Dropping %s: %v: resource is not a UUID", t, ErrInvalidTask)
			return nil
		}
		removed, err := db.DeleteNetwork(ctx, id)
		if err != nil {
			return err
		}
		if removed > 0 {
			if _, err := db.ReclaimSpace(); err != nil {
				log.Printf("[Tasks] Warning: reclaiming space after deleting %s: %v", id, err)
			}
		}
		return nil
	}
}
