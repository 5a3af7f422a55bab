package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/google/uuid"
)

var (
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrQueueFull        = errors.New("notification queue full")
)

type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
	SendTimeout time.Duration
	// EnqueueTimeout bounds how long Notify waits for room in a full queue.
	EnqueueTimeout time.Duration
}

var DefaultDispatcherOptions = DispatcherOptions{
	Workers:     2,
	QueueSize:   256,
	MaxAttempts:    3,
	Backoff:        time.Second,
	SendTimeout:    30 * time.Second,
	EnqueueTimeout: 2 * time.Second,
}

// Dispatcher decouples request handling from delivery. Notify enqueues and
// returns; workers deliver through next, retrying with linear backoff.
// When the queue stays full for EnqueueTimeout (or ctx ends first) Notify
// gives up with ErrQueueFull and the caller learns the code was not sent.
type Dispatcher struct {
	next   Notifier
	logger logging.Logger
	opts   DispatcherOptions

	queue  chan Message
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(next Notifier, l logging.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultDispatcherOptions.Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultDispatcherOptions.QueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = DefaultDispatcherOptions.EnqueueTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		next:   next,
		logger: l.With("module", "notify-dispatcher"),
		opts:   opts,
		queue:  make(chan Message, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) Notify(ctx context.Context, m Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.QueuedAt.IsZero() {
		m.QueuedAt = time.Now()
	}

	select {
	case d.queue <- m:
		return nil
	default:
	}

	timer := time.NewTimer(d.opts.EnqueueTimeout)
	defer timer.Stop()

	select {
	case d.queue <- m:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	d.logger.Warn(ctx, "queue full, message not accepted", "kind", string(m.Kind), "to", m.To)
	return ErrQueueFull
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for m := range d.queue {
		d.deliver(m)
	}
}

func (d *Dispatcher) deliver(m Message) {
	var err error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		err = d.send(m)
		if err == nil {
			return
		}
		d.logger.Warn(d.ctx, "delivery failed", "kind", string(m.Kind), "attempt", attempt, "error", err)

		if attempt == d.opts.MaxAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * d.opts.Backoff):
		case <-d.ctx.Done():
			return
		}
	}
	d.logger.Error(d.ctx, "message not delivered", "kind", string(m.Kind), "to", m.To, "error", err)
}

func (d *Dispatcher) send(m Message) error {
	ctx := d.ctx
	if d.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.SendTimeout)
		defer cancel()
	}
	return d.next.Notify(ctx, m)
}

// Close stops accepting messages and waits for queued ones to be delivered.
// If ctx ends first, in-flight sends are cancelled and ctx.Err is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
