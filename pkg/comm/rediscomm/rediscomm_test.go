package rediscomm

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/sweeptower/pkg/comm"
)

func newPair(t *testing.T, size int) []*Comm {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	session := NewSession()
	comms := make([]*Comm, size)
	for r := range size {
		c, err := New(client, r, size, Options{Session: session, PollInterval: time.Millisecond})
		require.NoError(t, err)
		comms[r] = c
	}
	return comms
}

func waitDone(t *testing.T, req comm.Request) {
	t.Helper()
	require.Eventually(t, func() bool {
		done, err := req.Test()
		return done && err == nil
	}, time.Second, time.Millisecond)
}

func TestPointToPoint(t *testing.T) {
	cs := newPair(t, 2)

	_, ok, err := cs[1].Iprobe(0, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	req, err := cs[0].Isend(1, 3, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	waitDone(t, req)

	st, ok, err := cs[1].Iprobe(0, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, st.Bytes)

	got, err := cs[1].Recv(context.Background(), 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	_, ok, _ = cs[1].Iprobe(0, 3)
	assert.False(t, ok, "message consumed")
}

func TestAllGather(t *testing.T) {
	cs := newPair(t, 3)
	out := make([][][]byte, len(cs))

	var g errgroup.Group
	for r, c := range cs {
		g.Go(func() error {
			res, err := c.AllGather(context.Background(), []byte{byte('a' + r)})
			out[r] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	for r := range cs {
		assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, out[r])
	}
}

func TestRecvCancelled(t *testing.T) {
	cs := newPair(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := cs[0].Recv(ctx, 0, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, 0, 1, Options{})
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	_, err = New(client, 2, 2, Options{})
	assert.Error(t, err)

	c, err := New(client, 0, 1, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, c.Session())
}
