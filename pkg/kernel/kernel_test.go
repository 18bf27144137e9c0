package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/sweeptower/pkg/comm"
	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/fluds"
	"github.com/matzehuels/sweeptower/pkg/mesh"
	"github.com/matzehuels/sweeptower/pkg/spds"
	"github.com/matzehuels/sweeptower/pkg/sweep"
)

func slabAngleSet(t *testing.T, k *Relaxation, m mesh.Mesh, c comm.Communicator, angles []int, groups int) *sweep.AngleSet {
	t.Helper()
	ctx := context.Background()
	s, err := spds.New(ctx, m, mesh.Vec(1, 0, 0), c, spds.Options{})
	require.NoError(t, err)
	f, err := fluds.New(ctx, s, c, fluds.Options{})
	require.NoError(t, err)
	as, err := sweep.NewAngleSet(0, angles, f, c, k, sweep.Options{Groups: groups})
	require.NoError(t, err)
	return as
}

func TestRelaxationSlab(t *testing.T) {
	g, err := mesh.NewSlab(3, 1)
	require.NoError(t, err)
	m, _ := g.Partition(0)
	c := comm.NewWorld(1).Comm(0)

	k, err := NewRelaxation(m, 1, 1, 1, 0.5)
	require.NoError(t, err)
	k.Inflow = 2
	as := slabAngleSet(t, k, m, c, []int{0}, 1)

	st, err := as.Advance(context.Background(), sweep.ExecuteIfReady)
	require.NoError(t, err)
	require.Equal(t, sweep.Finished, st)
	for c, want := range []float64{2, 2, 2} {
		assert.InDelta(t, want, k.Value(c, 0, 0), 1e-15, "cell %d", c)
	}

	k.Inflow = 0
	as.Reset()
	_, err = as.Advance(context.Background(), sweep.ExecuteIfReady)
	require.NoError(t, err)
	got := k.Values()
	for gid, want := range []float64{1, 1.5, 1.75} {
		assert.InDelta(t, want, got[gid][0], 1e-15, "cell %d", gid)
	}
}

func TestRelaxationGroupMismatch(t *testing.T) {
	g, _ := mesh.NewSlab(2, 1)
	m, _ := g.Partition(0)
	c := comm.NewWorld(1).Comm(0)

	k, err := NewRelaxation(m, 1, 2, 1, 0.5)
	require.NoError(t, err)
	as := slabAngleSet(t, k, m, c, []int{0}, 1)
	_, err = as.Advance(context.Background(), sweep.ExecuteIfReady)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "err = %v", err)
}

func TestRelaxationDirectionOutOfRange(t *testing.T) {
	g, _ := mesh.NewSlab(2, 1)
	m, _ := g.Partition(0)
	c := comm.NewWorld(1).Comm(0)

	k, err := NewRelaxation(m, 1, 1, 1, 0.5)
	require.NoError(t, err)
	as := slabAngleSet(t, k, m, c, []int{3}, 0)
	_, err = as.Advance(context.Background(), sweep.ExecuteIfReady)
	assert.True(t, errors.Is(err, errors.ErrCodeCellOutOfRange), "err = %v", err)
}

func TestNewRelaxationInvalid(t *testing.T) {
	g, _ := mesh.NewSlab(2, 1)
	m, _ := g.Partition(0)
	_, err := NewRelaxation(m, 0, 1, 1, 0.5)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "directions=0: err = %v", err)
	_, err = NewRelaxation(m, 1, 0, 1, 0.5)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "groups=0: err = %v", err)
}
