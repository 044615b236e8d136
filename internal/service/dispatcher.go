package service

import (
	"context"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// Notification is a message queued for background delivery.
type Notification struct {
	Phone   string
	Message string
	// Reference identifies the triggering entity in logs, e.g. a receipt.
	Reference string
}

// Notifier accepts fire-and-forget notifications.
type Notifier interface {
	Enqueue(ctx context.Context, n Notification) bool
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Attempts  int
	Backoff   time.Duration
}

// Dispatcher delivers queued notifications on a bounded worker pool. Each
// notification gets Attempts fallback passes with exponential backoff;
// after that the failed records are left for the retry sweep.
type Dispatcher struct {
	pipeline *Pipeline
	cfg      DispatcherConfig
	log      logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func NewDispatcher(pipeline *Pipeline, cfg DispatcherConfig, log logrus.FieldLogger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		pipeline: pipeline,
		cfg:      cfg,
		log:      log,
		queue:    make(chan Notification, cfg.QueueSize),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)

	p := pool.New().WithMaxGoroutines(d.cfg.Workers)
	for n := range d.queue {
		p.Go(func() { d.deliver(n) })
	}
	p.Wait()
}

func (d *Dispatcher) backoff() retry.Backoff {
	return retry.WithMaxRetries(uint64(d.cfg.Attempts-1), retry.NewExponential(d.cfg.Backoff))
}

func (d *Dispatcher) deliver(n Notification) {
	if d.pipeline.SendWithRetry(d.ctx, n.Phone, n.Message, d.backoff()) {
		return
	}
	d.log.WithFields(logrus.Fields{
		"reference": n.Reference,
		"attempts":  d.cfg.Attempts,
	}).Warn("notification left for retry sweep")
}

const (
	reasonQueueFull = "dispatch queue full"
	reasonClosed    = "dispatcher closed"
)

// Enqueue hands n to the workers without blocking. When the queue is full
// or the dispatcher is closed it stores a failed record for the retry
// sweep instead and returns false.
func (d *Dispatcher) Enqueue(ctx context.Context, n Notification) bool {
	reason := d.offer(n)
	if reason == "" {
		return true
	}

	entry := d.log.WithFields(logrus.Fields{
		"reference": n.Reference,
		"reason":    reason,
	})
	if err := d.pipeline.RecordUndelivered(ctx, n.Phone, n.Message, reason); err != nil {
		entry.WithError(err).Error("notification dropped")
		return false
	}
	entry.Warn("notification left for retry sweep")
	return false
}

func (d *Dispatcher) offer(n Notification) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return reasonClosed
	}

	select {
	case d.queue <- n:
		return ""
	default:
		return reasonQueueFull
	}
}

// Close stops accepting work and waits for queued notifications. If ctx
// ends first, in-flight backoffs are cancelled and Close waits for the
// workers to return.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}
