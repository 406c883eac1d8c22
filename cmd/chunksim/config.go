package main

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/chunkmem/chunkalloc"
	"github.com/vkngwrapper/chunkmem/chunkalloc/hostmem"
	"github.com/vkngwrapper/chunkmem/memutils/metadata"
	"sigs.k8s.io/yaml"
)

// simConfig is the simulator's configuration file. Every section is optional.
type simConfig struct {
	// Strategy is "first-fit" or "best-fit"
	Strategy  string                   `json:"strategy"`
	Allocator chunkalloc.CreateOptions `json:"allocator"`
	Defrag    chunkalloc.DefragOptions `json:"defrag"`
	Backend   hostmem.BackendOptions   `json:"backend"`
	Workload  workloadConfig           `json:"workload"`
}

// workloadConfig describes the randomized sequence of allocations and frees the simulator runs
type workloadConfig struct {
	Seed int64 `json:"seed"`
	// Operations is the number of allocate-or-free steps
	Operations int `json:"operations"`
	MinSize    int `json:"minSize"`
	MaxSize    int `json:"maxSize"`
	// FreeRatio is the chance that a step frees a random live location instead of allocating
	FreeRatio float64 `json:"freeRatio"`
	// StaticRatio is the chance that an allocation is static
	StaticRatio float64 `json:"staticRatio"`
	// DefragEvery starts a defragmentation cycle after this many steps. Zero disables it.
	DefragEvery int `json:"defragEvery"`
}

func defaultConfig() simConfig {
	return simConfig{
		Strategy: "first-fit",
		Allocator: chunkalloc.CreateOptions{
			ChunkSize: 1024 * 1024,
			Alignment: 256,
		},
		Defrag: chunkalloc.DefragOptions{
			Enabled: true,
		},
		Workload: workloadConfig{
			Seed:        1,
			Operations:  10000,
			MinSize:     256,
			MaxSize:     64 * 1024,
			FreeRatio:   0.45,
			StaticRatio: 0.05,
			DefragEvery: 1000,
		},
	}
}

var strategyNames = map[string]metadata.AllocationStrategy{
	"first-fit": metadata.AllocationStrategyFirstFit,
	"best-fit":  metadata.AllocationStrategyBestFit,
}

// loadConfig reads path over the defaults. An empty path returns the defaults.
func loadConfig(path string) (simConfig, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, errors.Wrapf(err, "failed to read configuration file %q", path)
		}

		err = yaml.Unmarshal(data, &config)
		if err != nil {
			return config, errors.Wrapf(err, "failed to parse configuration file %q", path)
		}
	}

	return config, config.resolve()
}

func (c *simConfig) resolve() error {
	strategy, ok := strategyNames[strings.ToLower(c.Strategy)]
	if !ok {
		return errors.Newf("unknown allocation strategy %q", c.Strategy)
	}
	c.Allocator.Strategy = strategy

	w := c.Workload
	if w.Operations < 0 {
		return errors.Newf("workload.operations must not be negative, but was %d", w.Operations)
	}
	if w.MinSize <= 0 || w.MaxSize < w.MinSize {
		return errors.Newf("workload sizes must satisfy 0 < minSize <= maxSize, but were %d and %d", w.MinSize, w.MaxSize)
	}
	if w.FreeRatio < 0 || w.FreeRatio >= 1 {
		return errors.Newf("workload.freeRatio must be in [0, 1), but was %f", w.FreeRatio)
	}
	if w.StaticRatio < 0 || w.StaticRatio > 1 {
		return errors.Newf("workload.staticRatio must be in [0, 1], but was %f", w.StaticRatio)
	}
	if w.DefragEvery < 0 {
		return errors.Newf("workload.defragEvery must not be negative, but was %d", w.DefragEvery)
	}

	return nil
}
