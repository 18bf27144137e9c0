// Package rediscomm implements comm.Communicator on top of Redis lists so
// that partitions can run as separate processes without an MPI runtime.
//
// Every point-to-point mailbox (source, destination, tag) is a Redis list;
// sends RPUSH, probes LINDEX the head and receives LPOP it, so per-key
// ordering matches send order. AllGather writes each rank's contribution
// into a hash per collective round and polls until every rank has written.
// All keys live under "sweeptower:<session>:" so concurrent runs sharing a
// server do not collide.
package rediscomm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/sweeptower/pkg/comm"
	"github.com/matzehuels/sweeptower/pkg/observability"
)

// DefaultPollInterval is how long blocking calls sleep between polls.
const DefaultPollInterval = 2 * time.Millisecond

// defaultOpTimeout bounds the Redis round trips made by non-blocking calls.
const defaultOpTimeout = 5 * time.Second

// Options configures a Comm.
type Options struct {
	// Session namespaces keys. Empty generates a random session, which
	// only works when a single process hosts every rank.
	Session string
	// PollInterval between attempts in Recv and collectives.
	PollInterval time.Duration
	// OpTimeout bounds each Redis command issued by Isend and Iprobe.
	OpTimeout time.Duration
	// RankOf maps partitions to ranks; nil means identity.
	RankOf func(partition int) int
	// Hooks receives send and error events; nil uses the registered
	// observability.Transport hooks.
	Hooks observability.TransportHooks
}

// Comm is a Redis-backed endpoint for one rank.
type Comm struct {
	client  redis.UniversalClient
	session string
	rank    int
	size    int
	poll    time.Duration
	timeout time.Duration
	rankOf  func(int) int
	hooks   observability.TransportHooks

	mu  sync.Mutex
	seq int
}

// NewSession returns a fresh session id.
func NewSession() string { return uuid.NewString() }

// New creates the endpoint for rank out of size ranks.
func New(client redis.UniversalClient, rank, size int, opts Options) (*Comm, error) {
	if client == nil {
		return nil, errors.New("rediscomm: nil client")
	}
	if size <= 0 || rank < 0 || rank >= size {
		return nil, fmt.Errorf("rediscomm: rank %d out of range [0,%d)", rank, size)
	}
	if opts.Session == "" {
		opts.Session = NewSession()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	if opts.RankOf == nil {
		opts.RankOf = func(p int) int { return p }
	}
	return &Comm{
		client:  client,
		session: opts.Session,
		rank:    rank,
		size:    size,
		poll:    opts.PollInterval,
		timeout: opts.OpTimeout,
		rankOf:  opts.RankOf,
		hooks:   opts.Hooks,
	}, nil
}

func (c *Comm) transportHooks() observability.TransportHooks {
	if c.hooks != nil {
		return c.hooks
	}
	return observability.Transport()
}

// Session returns the key namespace in use.
func (c *Comm) Session() string { return c.session }

func (c *Comm) Rank() int                { return c.rank }
func (c *Comm) Size() int                { return c.size }
func (c *Comm) RankOf(partition int) int { return c.rankOf(partition) }

func (c *Comm) mailboxKey(src, dst, tag int) string {
	return fmt.Sprintf("sweeptower:%s:msg:%d:%d:%d", c.session, src, dst, tag)
}

func (c *Comm) gatherKey(seq int) string {
	return fmt.Sprintf("sweeptower:%s:gather:%d", c.session, seq)
}

type request struct {
	done chan struct{}
	err  error
}

func (r *request) Test() (bool, error) {
	select {
	case <-r.done:
		return true, r.err
	default:
		return false, nil
	}
}

// Isend pushes the payload from a background goroutine; the returned
// request completes once Redis acknowledged the push.
func (c *Comm) Isend(dest, tag int, payload []byte) (comm.Request, error) {
	if dest < 0 || dest >= c.size {
		return nil, fmt.Errorf("rediscomm: destination rank %d out of range [0,%d)", dest, c.size)
	}
	data := slices.Clone(payload)
	key := c.mailboxKey(c.rank, dest, tag)
	req := &request{done: make(chan struct{})}
	go func() {
		defer close(req.done)
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if req.err = c.client.RPush(ctx, key, data).Err(); req.err != nil {
			c.transportHooks().OnTransportError(ctx, "isend", req.err)
		}
	}()
	c.transportHooks().OnSend(context.Background(), c.rank, dest, tag, len(data))
	return req, nil
}

func (c *Comm) Iprobe(source, tag int) (comm.Status, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	head, err := c.client.LIndex(ctx, c.mailboxKey(source, c.rank, tag), 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return comm.Status{}, false, nil
	}
	if err != nil {
		c.transportHooks().OnTransportError(ctx, "iprobe", err)
		return comm.Status{}, false, err
	}
	return comm.Status{Source: source, Tag: tag, Bytes: len(head)}, true, nil
}

func (c *Comm) Recv(ctx context.Context, source, tag int) ([]byte, error) {
	key := c.mailboxKey(source, c.rank, tag)
	for {
		data, err := c.client.LPop(ctx, key).Bytes()
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, redis.Nil) {
			c.transportHooks().OnTransportError(ctx, "recv", err)
			return nil, err
		}
		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

func (c *Comm) Barrier(ctx context.Context) error {
	_, err := c.AllGather(ctx, nil)
	return err
}

// AllGather stores this rank's payload in the round's hash, waits for all
// ranks, then reads the hash. The last rank to finish reading deletes it.
func (c *Comm) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	c.mu.Lock()
	seq := c.seq
	c.seq++
	c.mu.Unlock()

	key := c.gatherKey(seq)
	field := strconv.Itoa(c.rank)
	if err := c.client.HSet(ctx, key, field, payload).Err(); err != nil {
		return nil, fmt.Errorf("rediscomm: contribute to gather %d: %w", seq, err)
	}

	for {
		n, err := c.client.HLen(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("rediscomm: gather %d: %w", seq, err)
		}
		if int(n) >= c.size {
			break
		}
		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
	}

	all, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("rediscomm: read gather %d: %w", seq, err)
	}
	out := make([][]byte, c.size)
	for f, v := range all {
		r, err := strconv.Atoi(f)
		if err != nil || r < 0 || r >= c.size {
			return nil, fmt.Errorf("rediscomm: gather %d: unexpected field %q", seq, f)
		}
		out[r] = []byte(v)
	}

	readers, err := c.client.Incr(ctx, key+":read").Result()
	if err != nil {
		return nil, fmt.Errorf("rediscomm: gather %d: %w", seq, err)
	}
	if int(readers) == c.size {
		c.client.Del(ctx, key, key+":read")
	}
	return out, nil
}

func (c *Comm) sleep(ctx context.Context) error {
	t := time.NewTimer(c.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ comm.Communicator = (*Comm)(nil)
