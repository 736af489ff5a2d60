package pointnet

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCheckpointRoundTrip(t *testing.T) {
	cfg := tinyConfig(3)
	src, err := New(cfg)
	require.NoError(t, err)
	cfg.Seed = 99
	dst, err := New(cfg)
	require.NoError(t, err)

	pc := randomBatch(1, 64, 6, 3)
	want, err := src.Segment(context.Background(), pc)
	require.NoError(t, err)
	before, err := dst.Segment(context.Background(), pc)
	require.NoError(t, err)
	require.False(t, mat.Equal(want[0], before[0]))

	var buf bytes.Buffer
	require.NoError(t, WriteCheckpoint(&buf, src.NewCheckpoint("pointsemantic_folding")))
	ck, err := ReadCheckpoint(&buf)
	require.NoError(t, err)
	assert.Equal(t, "pointsemantic_folding", ck.Arch)
	require.NoError(t, dst.LoadCheckpoint(ck))

	got, err := dst.Segment(context.Background(), pc)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want[0], got[0]))
}

func TestCheckpointFile(t *testing.T) {
	m, err := New(tinyConfig(0))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.ckpt")
	require.NoError(t, SaveCheckpointFile(path, m.NewCheckpoint("PBC_folding")))

	ck, err := LoadCheckpointFile(path)
	require.NoError(t, err)
	assert.Equal(t, len(m.ParameterNames()), len(ck.State))

	_, err = LoadCheckpointFile(filepath.Join(t.TempDir(), "missing.ckpt"))
	assert.Error(t, err)
}

func TestLoadStateDictMismatch(t *testing.T) {
	m, err := New(tinyConfig(0))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(StateDict)
	}{
		{"missing key", func(sd StateDict) { delete(sd, "head.conv2.bias") }},
		{"unexpected key", func(sd StateDict) { sd["extra.weight"] = Tensor{Shape: []int{1}, Data: []float64{0}} }},
		{"wrong shape", func(sd StateDict) {
			sd["sa1.attn.center"] = Tensor{Shape: []int{3}, Data: []float64{1, 2, 3}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := m.StateDict()
			sd := m.StateDict()
			tt.mutate(sd)
			err := m.LoadStateDict(sd)
			assert.ErrorIs(t, err, ErrCheckpointMismatch)
			assert.Equal(t, original, m.StateDict(), "state changed on failed load")
		})
	}
}

func TestLoadCheckpointRejectsOtherConfig(t *testing.T) {
	m, err := New(tinyConfig(0))
	require.NoError(t, err)
	other := tinyConfig(3)
	om, err := New(other)
	require.NoError(t, err)
	assert.ErrorIs(t, m.LoadCheckpoint(om.NewCheckpoint("x")), ErrCheckpointMismatch)

	other = tinyConfig(0)
	other.NumClasses = 9
	om, err = New(other)
	require.NoError(t, err)
	assert.ErrorIs(t, m.LoadCheckpoint(om.NewCheckpoint("x")), ErrCheckpointMismatch)

	other = tinyConfig(0)
	other.HeadWidth = 5
	om, err = New(other)
	require.NoError(t, err)
	ck := om.NewCheckpoint("x")
	assert.ErrorIs(t, m.LoadCheckpoint(ck), ErrCheckpointMismatch)
}

func TestParameterNamesUnique(t *testing.T) {
	m, err := New(DefaultConfig(9, 3))
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, name := range m.ParameterNames() {
		assert.False(t, seen[name], "duplicate %s", name)
		seen[name] = true
	}
	assert.True(t, seen["sa1.mlp.conv.0.weight"])
	assert.True(t, seen["fp4.mlp.bn.1.running_var"])
	assert.True(t, seen["fold.fold2.2.bias"])
}

func TestCheckpointCheckArch(t *testing.T) {
	m, err := New(tinyConfig(0))
	require.NoError(t, err)
	ck := m.NewCheckpoint("PBC_folding")

	assert.NoError(t, ck.CheckArch("PBC_folding"))
	assert.ErrorIs(t, ck.CheckArch("pointsemantic_folding"), ErrCheckpointMismatch)
}
