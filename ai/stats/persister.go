package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/dispatchcore/store"
)

const saveTimeout = 5 * time.Second

// Persister writes usage snapshots to the store in the background, so a
// slow store never delays a turn.
type Persister struct {
	store  store.TokenUsageStore
	queue  chan *store.TokenUsage
	wg     sync.WaitGroup
	logger *slog.Logger
	stopCh chan struct{}
	once   sync.Once
}

// NewPersister creates a new async persister.
func NewPersister(usageStore store.TokenUsageStore, queueSize int, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	p := &Persister{
		store:  usageStore,
		queue:  make(chan *store.TokenUsage, queueSize),
		logger: logger,
		stopCh: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.processQueue()
	return p
}

// Enqueue queues a usage snapshot for persistence.
// Returns false if the queue is full. A dropped snapshot is superseded by the
// tenant's next write, which carries the full record.
func (p *Persister) Enqueue(usage *store.TokenUsage) bool {
	if usage == nil {
		return false
	}
	select {
	case p.queue <- usage:
		p.logger.Debug("Persister: usage enqueued",
			"tenant_id", usage.TenantID,
			"calls", usage.Calls,
			"queue_size", len(p.queue))
		return true
	default:
		p.logger.Warn("Persister: queue full, dropping usage snapshot",
			"tenant_id", usage.TenantID,
			"queue_size", len(p.queue))
		return false
	}
}

func (p *Persister) processQueue() {
	defer p.wg.Done()

	for {
		select {
		case usage := <-p.queue:
			if err := p.save(usage); err != nil {
				p.logger.Error("Persister: failed to save usage",
					"tenant_id", usage.TenantID,
					"error", err)
			}

		case <-p.stopCh:
			p.drainQueue()
			return
		}
	}
}

func (p *Persister) save(usage *store.TokenUsage) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	return p.store.UpsertTokenUsage(ctx, usage)
}

// drainQueue processes any remaining items in the queue during shutdown.
func (p *Persister) drainQueue() {
	p.logger.Info("Persister: draining queue", "remaining", len(p.queue))
	lostCount := 0
	savedCount := 0
	for {
		select {
		case usage := <-p.queue:
			if err := p.save(usage); err != nil {
				lostCount++
				p.logger.Error("Persister: failed to save usage during shutdown",
					"tenant_id", usage.TenantID,
					"error", err)
			} else {
				savedCount++
			}

		default:
			if lostCount > 0 {
				p.logger.Error("Persister: shutdown complete with data loss",
					"saved", savedCount,
					"lost", lostCount)
			}
			return
		}
	}
}

// Close waits for the queue to drain and shuts down the persister.
func (p *Persister) Close(timeout time.Duration) error {
	p.once.Do(func() {
		close(p.stopCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Persister: shutdown complete")
		return nil
	case <-time.After(timeout):
		p.logger.Warn("Persister: shutdown timeout")
		return context.DeadlineExceeded
	}
}

// QueueSize returns the current queue size.
func (p *Persister) QueueSize() int {
	return len(p.queue)
}
