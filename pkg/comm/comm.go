// Package comm defines the message-passing abstraction partitions use to
// exchange angular flux, plus an in-process implementation.
//
// # Model
//
// Each partition is addressed by a rank. Point-to-point messages are keyed
// by (source rank, tag) on the receiving side and delivered in send order
// for a given key. Sends never block: [Communicator.Isend] returns a
// [Request] that the sender polls with [Request.Test] before reusing or
// freeing anything tied to the message. Receivers poll with
// [Communicator.Iprobe] and only call [Communicator.Recv] once a message
// is known to be there, so sweep polling never waits.
//
// Collectives ([Communicator.AllGather], [Communicator.Barrier]) are used
// once per direction while building the sweep structures and do block;
// they take a context so a stuck peer can be abandoned.
//
// # Implementations
//
// [World] connects ranks living in one process (one goroutine each).
// Package rediscomm connects separate processes through Redis lists.
package comm

import "context"

// Status describes a message that is available for receiving.
type Status struct {
	Source int // sending rank
	Tag    int
	Bytes  int // payload size
}

// Request tracks a non-blocking send.
type Request interface {
	// Test reports whether the send has completed. A completed request
	// with a non-nil error failed; the message will not arrive.
	Test() (done bool, err error)
}

// Communicator is the per-rank endpoint.
type Communicator interface {
	// Rank returns this endpoint's rank.
	Rank() int
	// Size returns the number of ranks.
	Size() int
	// RankOf maps a mesh partition id to the rank that owns it.
	RankOf(partition int) int

	// Isend starts sending payload to dest under tag. The payload is not
	// retained after Isend returns.
	Isend(dest, tag int, payload []byte) (Request, error)
	// Iprobe reports whether a message from source with tag is ready.
	Iprobe(source, tag int) (Status, bool, error)
	// Recv returns the next message from source with tag, waiting until
	// one arrives or ctx is done.
	Recv(ctx context.Context, source, tag int) ([]byte, error)

	// Barrier returns once every rank has entered it.
	Barrier(ctx context.Context) error
	// AllGather contributes payload and returns every rank's payload
	// indexed by rank. Every rank must call collectives in the same order.
	AllGather(ctx context.Context, payload []byte) ([][]byte, error)
}
