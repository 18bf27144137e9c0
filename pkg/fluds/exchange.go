package fluds

import (
	"context"
	"encoding/json"
	"runtime"
	"slices"

	"github.com/matzehuels/sweeptower/pkg/comm"
	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/mesh"
)

// boundaryFace describes one face leaving the sender's partition.
type boundaryFace struct {
	Sender   int   `json:"s"` // upwind cell global id
	Receiver int   `json:"r"` // downwind cell global id
	Vertices []int `json:"v"` // in the sender's order
	DOFs     int   `json:"n"`
	Offset   int   `json:"o"` // in the sender's serialized buffer
}

type faceKey struct {
	sender, receiver int
	vertices         string
}

func (b boundaryFace) key() faceKey {
	f := mesh.Face{VertexIDs: b.Vertices}
	return faceKey{sender: b.Sender, receiver: b.Receiver, vertices: f.VertexKey()}
}

// exchange sends every downstream partition the faces it will read and
// receives the same from every upstream partition, regular and delayed.
func exchange(ctx context.Context, c comm.Communicator, tag int, outbound map[int][]boundaryFace, upstream []int) (map[int]map[faceKey]boundaryFace, error) {
	dests := make([]int, 0, len(outbound))
	for p := range outbound {
		dests = append(dests, p)
	}
	slices.Sort(dests)

	var reqs []comm.Request
	for _, p := range dests {
		payload, err := json.Marshal(outbound[p])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode boundary faces for partition %d", p)
		}
		req, err := c.Isend(c.RankOf(p), tag, payload)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCommunication, err, "send boundary faces to partition %d", p)
		}
		reqs = append(reqs, req)
	}

	inbound := make(map[int]map[faceKey]boundaryFace, len(upstream))
	for _, p := range upstream {
		data, err := c.Recv(ctx, c.RankOf(p), tag)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCommunication, err, "receive boundary faces from partition %d", p)
		}
		var faces []boundaryFace
		if err := json.Unmarshal(data, &faces); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCommunication, err, "decode boundary faces from partition %d", p)
		}
		byKey := make(map[faceKey]boundaryFace, len(faces))
		for _, bf := range faces {
			byKey[bf.key()] = bf
		}
		inbound[p] = byKey
	}

	for _, req := range reqs {
		for {
			done, err := req.Test()
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeCommunication, err, "boundary face exchange")
			}
			if done {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			runtime.Gosched()
		}
	}
	return inbound, nil
}
