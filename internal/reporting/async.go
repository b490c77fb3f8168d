// FilePath: internal/reporting/async.go
package reporting

import (
	"context"
	"sync"
	"time"

	"github.com/itsatony/relayhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// Backend is the blocking side of a collector (redis, disk, ...).
type Backend interface {
	CollectContext(ctx context.Context, email string, dashID int, key models.PinKey, ts time.Time, value string) error
	DeleteContext(ctx context.Context, email string, dashID int, key models.PinKey) error
}

type opKind int

const (
	opCollect opKind = iota
	opDelete
)

type op struct {
	kind   opKind
	email  string
	dashID int
	key    models.PinKey
	ts     time.Time
	value  string
}

const backendTimeout = 5 * time.Second

// AsyncCollector decouples session loops from the blocking backend: every
// store write enqueues, a small worker pool drains. A full queue drops
// the oldest-intent semantics in favor of dropping the new sample — the
// store, not reporting, is authoritative for last-known values.
type AsyncCollector struct {
	backend Backend
	queue   chan op
	wg      sync.WaitGroup
	once    sync.Once
}

// NewAsyncCollector starts workers goroutines draining into backend.
func NewAsyncCollector(backend Backend, queueSize, workers int) *AsyncCollector {
	if queueSize <= 0 {
		queueSize = 4096
	}
	if workers <= 0 {
		workers = 2
	}
	c := &AsyncCollector{
		backend: backend,
		queue:   make(chan op, queueSize),
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

func (c *AsyncCollector) worker() {
	defer c.wg.Done()
	for o := range c.queue {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		var err error
		switch o.kind {
		case opCollect:
			err = c.backend.CollectContext(ctx, o.email, o.dashID, o.key, o.ts, o.value)
		case opDelete:
			err = c.backend.DeleteContext(ctx, o.email, o.dashID, o.key)
		}
		cancel()
		if err != nil {
			nuts.L.Warnf("[Reporting] backend operation failed for %s: %v", o.key, err)
		}
	}
}

func (c *AsyncCollector) enqueue(o op) {
	select {
	case c.queue <- o:
	default:
		nuts.L.Warnf("[Reporting] queue full, dropping sample for %s", o.key)
	}
}

// Collect queues one sample; never blocks the caller.
func (c *AsyncCollector) Collect(email string, dashID int, key models.PinKey, ts time.Time, value string) {
	c.enqueue(op{kind: opCollect, email: email, dashID: dashID, key: key, ts: ts, value: value})
}

// Delete queues a purge of the pin's history; never blocks the caller.
func (c *AsyncCollector) Delete(email string, dashID int, key models.PinKey) {
	c.enqueue(op{kind: opDelete, email: email, dashID: dashID, key: key})
}

// Close drains the queue and stops the workers.
func (c *AsyncCollector) Close() {
	c.once.Do(func() {
		close(c.queue)
	})
	c.wg.Wait()
}
