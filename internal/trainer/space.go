package trainer

import (
	"math/rand/v2"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/opstrata/outage-cli/internal/model"
)

// SearchSpace declares the hyperparameter grid the randomized search
// samples from. A zero max depth means unbounded trees.
type SearchSpace struct {
	Trees           []int    `yaml:"trees"`
	MaxDepth        []int    `yaml:"max_depth"`
	MinSamplesSplit []int    `yaml:"min_samples_split"`
	MinSamplesLeaf  []int    `yaml:"min_samples_leaf"`
	ClassWeight     []string `yaml:"class_weight"`
}

// DefaultSpace returns the stock grid used when no space file is
// configured.
func DefaultSpace() SearchSpace {
	return SearchSpace{
		Trees:           []int{100, 200, 300, 400, 500},
		MaxDepth:        []int{0, 10, 20, 30, 40, 50},
		MinSamplesSplit: []int{2, 5, 10},
		MinSamplesLeaf:  []int{1, 2, 4},
		ClassWeight: []string{
			model.ClassWeightNone,
			model.ClassWeightBalanced,
			model.ClassWeightBalancedSubsample,
		},
	}
}

// LoadSpace reads a YAML grid file. Axes missing from the file keep
// their defaults.
func LoadSpace(path string) (SearchSpace, error) {
	s := DefaultSpace()
	data, err := os.ReadFile(path)
	if err != nil {
		return SearchSpace{}, eris.Wrapf(err, "trainer: read space file %s", path)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return SearchSpace{}, eris.Wrapf(err, "trainer: parse space file %s", path)
	}
	if err := s.Validate(); err != nil {
		return SearchSpace{}, err
	}
	return s, nil
}

// Validate checks every axis is non-empty and within the classifier's
// accepted ranges.
func (s SearchSpace) Validate() error {
	if len(s.Trees) == 0 || len(s.MaxDepth) == 0 || len(s.MinSamplesSplit) == 0 ||
		len(s.MinSamplesLeaf) == 0 || len(s.ClassWeight) == 0 {
		return eris.New("trainer: search space has an empty axis")
	}
	for _, v := range s.Trees {
		if v < 1 {
			return eris.Errorf("trainer: trees %d, want at least 1", v)
		}
	}
	for _, v := range s.MaxDepth {
		if v < 0 {
			return eris.Errorf("trainer: max depth %d, want 0 or positive", v)
		}
	}
	for _, v := range s.MinSamplesSplit {
		if v < 2 {
			return eris.Errorf("trainer: min samples split %d, want at least 2", v)
		}
	}
	for _, v := range s.MinSamplesLeaf {
		if v < 1 {
			return eris.Errorf("trainer: min samples leaf %d, want at least 1", v)
		}
	}
	for _, v := range s.ClassWeight {
		switch v {
		case model.ClassWeightNone, model.ClassWeightBalanced, model.ClassWeightBalancedSubsample:
		default:
			return eris.Errorf("trainer: unknown class weight %q", v)
		}
	}
	return nil
}

// Size returns the number of distinct configurations in the grid.
func (s SearchSpace) Size() int {
	return len(s.Trees) * len(s.MaxDepth) * len(s.MinSamplesSplit) * len(s.MinSamplesLeaf) * len(s.ClassWeight)
}

// Sample draws n distinct configurations without replacement. When n
// meets or exceeds the grid size the whole grid is returned, still in
// shuffled order.
func (s SearchSpace) Sample(n int, rng *rand.Rand) []model.Hyperparams {
	all := s.enumerate()
	rng.Shuffle(len(all), func(a, b int) { all[a], all[b] = all[b], all[a] })
	if n < len(all) {
		all = all[:n]
	}
	return all
}

func (s SearchSpace) enumerate() []model.Hyperparams {
	out := make([]model.Hyperparams, 0, s.Size())
	for _, trees := range s.Trees {
		for _, depth := range s.MaxDepth {
			for _, split := range s.MinSamplesSplit {
				for _, leaf := range s.MinSamplesLeaf {
					for _, cw := range s.ClassWeight {
						out = append(out, model.Hyperparams{
							Trees:           trees,
							MaxDepth:        depth,
							MinSamplesSplit: split,
							MinSamplesLeaf:  leaf,
							ClassWeight:     cw,
						})
					}
				}
			}
		}
	}
	return out
}
