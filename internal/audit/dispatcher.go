package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config controls dispatcher buffering behavior.
//
// SuppressRepeats, when positive, delivers at most one event per
// (event type, client) pair within the window. Events without a client ID
// are never suppressed.
type Config struct {
	Enabled         bool
	BufferSize      int
	DropIfFull      bool
	SuppressRepeats time.Duration
}

// pruneThreshold bounds the repeat tracker before stale entries are swept.
const pruneThreshold = 4096

type repeatKey struct {
	eventType string
	clientID  string
}

// Dispatcher asynchronously forwards audit events to a sink so guard checks
// never wait on a slow consumer unless DropIfFull is off.
type Dispatcher struct {
	cfg  Config
	sink Sink
	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup

	dropped    atomic.Uint64
	delivered  atomic.Uint64
	suppressed atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once

	// owned by the run goroutine
	lastSeen map[repeatKey]time.Time
}

// NewDispatcher returns nil when auditing is disabled; a nil *Dispatcher
// accepts and discards every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	if cfg.SuppressRepeats < 0 {
		cfg.SuppressRepeats = 0
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}
	if cfg.SuppressRepeats > 0 {
		d.lastSeen = make(map[repeatKey]time.Time)
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	if d.repeated(event) {
		d.suppressed.Add(1)
		return
	}
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// repeated reports whether event duplicates one delivered for the same
// client inside the suppression window, and records it otherwise.
func (d *Dispatcher) repeated(event Event) bool {
	if d.lastSeen == nil || event.ClientID == "" {
		return false
	}
	key := repeatKey{eventType: event.EventType, clientID: event.ClientID}
	window := d.cfg.SuppressRepeats
	if prev, ok := d.lastSeen[key]; ok && event.Timestamp.Sub(prev) < window {
		return true
	}

	if len(d.lastSeen) >= pruneThreshold {
		for k, at := range d.lastSeen {
			if event.Timestamp.Sub(at) >= window {
				delete(d.lastSeen, k)
			}
		}
	}
	d.lastSeen[key] = event.Timestamp
	return false
}

// Emit stamps event and queues it for delivery. With DropIfFull the call
// never blocks; otherwise it waits for buffer space or ctx.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Close drains buffered events into the sink and stops the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// Suppressed counts events withheld as repeats.
func (d *Dispatcher) Suppressed() uint64 {
	if d == nil {
		return 0
	}
	return d.suppressed.Load()
}
