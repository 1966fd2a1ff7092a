package trainer

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opstrata/outage-cli/internal/model"
)

func TestDefaultSpace(t *testing.T) {
	t.Parallel()

	s := DefaultSpace()
	require.NoError(t, s.Validate())
	assert.Equal(t, 5*6*3*3*3, s.Size())
}

func TestSampleWithoutReplacement(t *testing.T) {
	t.Parallel()

	s := DefaultSpace()
	rng := rand.New(rand.NewPCG(1, 2))
	got := s.Sample(20, rng)
	require.Len(t, got, 20)

	seen := map[model.Hyperparams]bool{}
	for _, hp := range got {
		assert.False(t, seen[hp], "duplicate configuration sampled")
		seen[hp] = true
	}
}

func TestSampleExhaustsGrid(t *testing.T) {
	t.Parallel()

	s := SearchSpace{
		Trees:           []int{10, 20},
		MaxDepth:        []int{0, 5},
		MinSamplesSplit: []int{2},
		MinSamplesLeaf:  []int{1},
		ClassWeight:     []string{model.ClassWeightNone},
	}
	rng := rand.New(rand.NewPCG(3, 4))
	got := s.Sample(100, rng)
	assert.Len(t, got, 4)
}

func TestSampleDeterministic(t *testing.T) {
	t.Parallel()

	s := DefaultSpace()
	a := s.Sample(10, rand.New(rand.NewPCG(9, sampleStream)))
	b := s.Sample(10, rand.New(rand.NewPCG(9, sampleStream)))
	assert.Equal(t, a, b)
}

func TestLoadSpaceOverridesAxes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "space.yaml")
	body := "trees: [50, 150]\nclass_weight: [balanced]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s, err := LoadSpace(path)
	require.NoError(t, err)

	assert.Equal(t, []int{50, 150}, s.Trees)
	assert.Equal(t, []string{model.ClassWeightBalanced}, s.ClassWeight)
	// Untouched axes keep their defaults.
	assert.Equal(t, DefaultSpace().MaxDepth, s.MaxDepth)
	assert.Equal(t, DefaultSpace().MinSamplesSplit, s.MinSamplesSplit)
}

func TestLoadSpaceErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadSpace(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read space file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("trees: {oops"), 0o644))
	_, err = LoadSpace(bad)
	assert.ErrorContains(t, err, "parse space file")

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("min_samples_split: [1]\n"), 0o644))
	_, err = LoadSpace(invalid)
	assert.ErrorContains(t, err, "min samples split 1")
}

func TestValidateRejectsBadAxes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*SearchSpace)
		wantErr string
	}{
		{"empty axis", func(s *SearchSpace) { s.Trees = nil }, "empty axis"},
		{"zero trees", func(s *SearchSpace) { s.Trees = []int{0} }, "trees 0"},
		{"negative depth", func(s *SearchSpace) { s.MaxDepth = []int{-2} }, "max depth -2"},
		{"leaf zero", func(s *SearchSpace) { s.MinSamplesLeaf = []int{0} }, "min samples leaf 0"},
		{"bad weight", func(s *SearchSpace) { s.ClassWeight = []string{"heavy"} }, `unknown class weight "heavy"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := DefaultSpace()
			tt.mutate(&s)
			assert.ErrorContains(t, s.Validate(), tt.wantErr)
		})
	}
}
