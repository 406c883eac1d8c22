package main

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func testConfig(synchronous bool) simConfig {
	config := defaultConfig()
	config.Allocator.ChunkSize = 16 * 1024
	config.Defrag.Synchronous = synchronous
	config.Workload = workloadConfig{
		Seed:        42,
		Operations:  400,
		MinSize:     256,
		MaxSize:     4096,
		FreeRatio:   0.4,
		StaticRatio: 0.1,
		DefragEvery: 100,
	}
	return config
}

func runSimulator(t *testing.T, config simConfig) report {
	require.NoError(t, config.resolve())

	sim, err := newSimulator(slog.New(slog.NewJSONHandler(io.Discard, nil)), config)
	require.NoError(t, err)

	r, err := sim.run(context.Background())
	require.NoError(t, err)
	require.Zero(t, r.Corrupted)
	require.Equal(t, config.Workload.Operations, r.Allocations+r.Frees+r.Failures)
	require.Equal(t, r.Before.Used, r.After.Used)
	require.Greater(t, r.Defrag.Cycles, 0)

	require.NoError(t, sim.close())
	require.Zero(t, sim.backend.LiveChunks())
	return r
}

func TestSimulator_Synchronous(t *testing.T) {
	first := runSimulator(t, testConfig(true))
	require.Zero(t, first.Failures)

	// The same seed produces the same run
	second := runSimulator(t, testConfig(true))
	require.Equal(t, first, second)
}

func TestSimulator_Background(t *testing.T) {
	runSimulator(t, testConfig(false))
}

func TestSimulator_OutOfMemory(t *testing.T) {
	config := testConfig(true)
	config.Backend.MaxBytes = 32 * 1024
	config.Workload.FreeRatio = 0

	r := runSimulator(t, config)
	require.Greater(t, r.Failures, 0)
}

func TestSimulator_DefragDisabled(t *testing.T) {
	config := testConfig(true)
	config.Defrag.Enabled = false
	require.NoError(t, config.resolve())

	sim, err := newSimulator(slog.New(slog.NewJSONHandler(io.Discard, nil)), config)
	require.NoError(t, err)

	r, err := sim.run(context.Background())
	require.NoError(t, err)
	require.Zero(t, r.Defrag.Cycles)
	require.Equal(t, r.Before, r.After)
	require.NoError(t, sim.close())
}
