// Package progress carries batch snapshots from many workers to one consumer.
package progress

import "sync"

// DefaultDrainMax is how many queued snapshots a consumer folds per tick.
const DefaultDrainMax = 10

// Snapshot is the absolute state of a batch at one instant. Later snapshots
// supersede earlier ones; nothing is accumulated from deltas.
type Snapshot struct {
	Processed int
	Failed    int
	Total     int
	// Current labels the unit that produced this snapshot.
	Current  string
	Complete bool
	// Err carries a batch-level failure message on the final snapshot.
	Err string
}

// Done is the number of units finished either way.
func (s Snapshot) Done() int {
	return s.Processed + s.Failed
}

// behind reports whether either count of s trails prev.
func (s Snapshot) behind(prev Snapshot) bool {
	return s.Processed < prev.Processed || s.Failed < prev.Failed
}

// Sink receives snapshots. Send must never block the caller.
type Sink interface {
	Send(Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot)

func (f SinkFunc) Send(s Snapshot) { f(s) }

// Discard drops every snapshot.
var Discard Sink = SinkFunc(func(Snapshot) {})

// Channel is an unbounded many-producer, single-consumer queue of snapshots.
// Send never blocks; snapshots sent after Close or Detach are dropped.
type Channel struct {
	mu       sync.Mutex
	queue    []Snapshot
	last     Snapshot
	sent     bool
	closed   bool
	detached bool

	wake chan struct{}
	gone chan struct{}
	out  chan Snapshot
}

func NewChannel() *Channel {
	c := &Channel{
		wake: make(chan struct{}, 1),
		gone: make(chan struct{}),
		out:  make(chan Snapshot),
	}
	go c.pump()
	return c
}

// Send queues s. A snapshot whose processed or failed count is below the
// last queued one is stale and dropped, as is anything after a Complete one.
func (c *Channel) Send(s Snapshot) {
	c.mu.Lock()
	if c.closed || c.detached {
		c.mu.Unlock()
		return
	}
	if c.sent && (c.last.Complete || (!s.Complete && s.behind(c.last))) {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, s)
	c.last = s
	c.sent = true
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting snapshots. Updates is closed once the queue drains.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Detach is called by a consumer that stops reading. Queued and future
// snapshots are discarded.
func (c *Channel) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached {
		return
	}
	c.detached = true
	c.queue = nil
	close(c.gone)
}

// Updates is the consumer side. It is closed after Close once every queued
// snapshot has been delivered, or right away after Detach.
func (c *Channel) Updates() <-chan Snapshot {
	return c.out
}

func (c *Channel) pump() {
	defer close(c.out)
	for {
		c.mu.Lock()
		if c.detached {
			c.mu.Unlock()
			return
		}
		if len(c.queue) == 0 {
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-c.wake:
			case <-c.gone:
			}
			continue
		}
		s := c.queue[0]
		c.queue[0] = Snapshot{}
		c.queue = c.queue[1:]
		c.mu.Unlock()

		select {
		case c.out <- s:
		case <-c.gone:
			return
		}
	}
}

// Drain blocks for one snapshot, then folds up to max-1 more that are
// already waiting and returns the newest. ok is false once ch is closed and
// nothing was read.
func Drain(ch <-chan Snapshot, max int) (latest Snapshot, n int, ok bool) {
	if max < 1 {
		max = DefaultDrainMax
	}
	latest, ok = <-ch
	if !ok {
		return Snapshot{}, 0, false
	}
	n = 1
	for n < max {
		select {
		case s, open := <-ch:
			if !open {
				return latest, n, true
			}
			latest = s
			n++
		default:
			return latest, n, true
		}
	}
	return latest, n, true
}
