package comm

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/matzehuels/sweeptower/pkg/observability"
)

// DefaultEagerLimit is the payload size up to which a World send completes
// as soon as it is queued. Larger sends complete when the receiver takes
// the message.
const DefaultEagerLimit = 32000

// World is an in-process set of ranks. Each rank is meant to be driven by
// its own goroutine; all methods are safe for concurrent use.
type World struct {
	size       int
	eagerLimit int
	rankOf     func(partition int) int
	hooks      observability.TransportHooks

	mu      sync.Mutex
	queues  map[mailbox][]*message
	changed chan struct{}
	rounds  map[int]*gatherRound
}

type mailbox struct {
	src, dst, tag int
}

type message struct {
	payload   []byte
	delivered atomic.Bool
}

type gatherRound struct {
	contrib [][]byte
	joined  int
	read    int
	done    chan struct{}
}

// WorldOption configures a World.
type WorldOption func(*World)

// WithEagerLimit sets the size above which sends wait for the receiver.
func WithEagerLimit(bytes int) WorldOption {
	return func(w *World) { w.eagerLimit = bytes }
}

// WithRankMap installs a partition -> rank mapping. The default is the
// identity.
func WithRankMap(f func(partition int) int) WorldOption {
	return func(w *World) { w.rankOf = f }
}

// WithTransportHooks reports sends to h instead of the registered
// observability.Transport hooks.
func WithTransportHooks(h observability.TransportHooks) WorldOption {
	return func(w *World) { w.hooks = h }
}

func (w *World) transportHooks() observability.TransportHooks {
	if w.hooks != nil {
		return w.hooks
	}
	return observability.Transport()
}

// NewWorld creates a world of size ranks.
func NewWorld(size int, opts ...WorldOption) *World {
	w := &World{
		size:       size,
		eagerLimit: DefaultEagerLimit,
		rankOf:     func(p int) int { return p },
		queues:     make(map[mailbox][]*message),
		changed:    make(chan struct{}),
		rounds:     make(map[int]*gatherRound),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Size returns the number of ranks.
func (w *World) Size() int { return w.size }

// Comm returns the endpoint of rank. Each rank should obtain its endpoint
// once; collective sequencing is tracked per endpoint.
func (w *World) Comm(rank int) Communicator {
	return &localComm{world: w, rank: rank}
}

// Pending returns the number of queued, unreceived messages.
func (w *World) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, q := range w.queues {
		n += len(q)
	}
	return n
}

// broadcast wakes every waiting receiver. Callers hold w.mu.
func (w *World) broadcast() {
	close(w.changed)
	w.changed = make(chan struct{})
}

type localComm struct {
	world *World
	rank  int
	seq   int
}

type localRequest struct{ msg *message }

func (r localRequest) Test() (bool, error) { return r.msg.delivered.Load(), nil }

func (c *localComm) Rank() int                { return c.rank }
func (c *localComm) Size() int                { return c.world.size }
func (c *localComm) RankOf(partition int) int { return c.world.rankOf(partition) }

func (c *localComm) Isend(dest, tag int, payload []byte) (Request, error) {
	if dest < 0 || dest >= c.world.size {
		return nil, fmt.Errorf("comm: destination rank %d out of range [0,%d)", dest, c.world.size)
	}
	msg := &message{payload: slices.Clone(payload)}
	if len(payload) <= c.world.eagerLimit {
		msg.delivered.Store(true)
	}

	w := c.world
	w.mu.Lock()
	key := mailbox{src: c.rank, dst: dest, tag: tag}
	w.queues[key] = append(w.queues[key], msg)
	w.broadcast()
	w.mu.Unlock()
	w.transportHooks().OnSend(context.Background(), c.rank, dest, tag, len(payload))
	return localRequest{msg: msg}, nil
}

func (c *localComm) Iprobe(source, tag int) (Status, bool, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	q := w.queues[mailbox{src: source, dst: c.rank, tag: tag}]
	if len(q) == 0 {
		return Status{}, false, nil
	}
	return Status{Source: source, Tag: tag, Bytes: len(q[0].payload)}, true, nil
}

func (c *localComm) Recv(ctx context.Context, source, tag int) ([]byte, error) {
	w := c.world
	key := mailbox{src: source, dst: c.rank, tag: tag}
	for {
		w.mu.Lock()
		if q := w.queues[key]; len(q) > 0 {
			msg := q[0]
			if len(q) == 1 {
				delete(w.queues, key)
			} else {
				w.queues[key] = q[1:]
			}
			w.mu.Unlock()
			msg.delivered.Store(true)
			return msg.payload, nil
		}
		wait := w.changed
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

func (c *localComm) Barrier(ctx context.Context) error {
	_, err := c.AllGather(ctx, nil)
	return err
}

func (c *localComm) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	w := c.world
	seq := c.seq
	c.seq++

	w.mu.Lock()
	r, ok := w.rounds[seq]
	if !ok {
		r = &gatherRound{contrib: make([][]byte, w.size), done: make(chan struct{})}
		w.rounds[seq] = r
	}
	r.contrib[c.rank] = slices.Clone(payload)
	r.joined++
	if r.joined == w.size {
		close(r.done)
	}
	w.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
	}

	w.mu.Lock()
	out := make([][]byte, w.size)
	for i, b := range r.contrib {
		out[i] = slices.Clone(b)
	}
	r.read++
	if r.read == w.size {
		delete(w.rounds, seq)
	}
	w.mu.Unlock()
	return out, nil
}
