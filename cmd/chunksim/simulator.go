package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/vkngwrapper/chunkmem/chunkalloc"
	"github.com/vkngwrapper/chunkmem/chunkalloc/hostmem"
	"github.com/vkngwrapper/chunkmem/memutils"
	"github.com/vkngwrapper/chunkmem/memutils/defrag"
	"golang.org/x/exp/slog"
)

// simulator drives a randomized workload against a host memory allocator with a defragger attached
type simulator struct {
	logger    *slog.Logger
	config    workloadConfig
	backend   *hostmem.Backend[uint64]
	allocator *chunkalloc.Allocator[uint64]
	defragger *chunkalloc.Defragger[uint64]
	rand      *rand.Rand

	synchronous bool

	live []*chunkalloc.Location[uint64]
}

// report summarizes a simulator run
type report struct {
	Allocations int
	Frees       int
	Failures    int
	Corrupted   int
	Before      memutils.MemoryStats
	After       memutils.MemoryStats
	Defrag      defrag.Stats
}

func newSimulator(logger *slog.Logger, config simConfig) (*simulator, error) {
	backend, err := hostmem.NewBackend[uint64](logger, nil, config.Backend)
	if err != nil {
		return nil, err
	}

	allocator, err := chunkalloc.New[uint64](logger, backend, config.Allocator)
	if err != nil {
		backend.Close()
		return nil, err
	}

	defragger, err := chunkalloc.NewDefragger[uint64](logger, allocator, hostmem.Mover[uint64]{}, config.Defrag)
	if err != nil {
		backend.Close()
		return nil, multierror.Append(err, allocator.Destroy()).ErrorOrNil()
	}

	return &simulator{
		logger:    logger,
		config:    config.Workload,
		backend:   backend,
		allocator: allocator,
		defragger: defragger,
		rand:      rand.New(rand.NewSource(config.Workload.Seed)),

		synchronous: config.Defrag.Synchronous,
	}, nil
}

// stamp writes id into the first bytes of location so that relocations can be verified later
func stamp(location *chunkalloc.Location[uint64]) {
	location.SetData(location.ID())

	bytes := hostmem.Bytes(location)
	for i := range bytes {
		bytes[i] = byte(location.ID() + uint64(i))
	}
}

func intact(location *chunkalloc.Location[uint64]) bool {
	if location.Data() != location.ID() {
		return false
	}

	bytes := hostmem.Bytes(location)
	for i := range bytes {
		if bytes[i] != byte(location.ID()+uint64(i)) {
			return false
		}
	}

	return true
}

func (s *simulator) step() (allocated bool, err error) {
	if len(s.live) > 0 && s.rand.Float64() < s.config.FreeRatio {
		index := s.rand.Intn(len(s.live))
		location := s.live[index]
		s.live[index] = s.live[len(s.live)-1]
		s.live = s.live[:len(s.live)-1]

		return false, s.allocator.Free(location)
	}

	size := s.config.MinSize
	if s.config.MaxSize > s.config.MinSize {
		size += s.rand.Intn(s.config.MaxSize - s.config.MinSize + 1)
	}

	var location *chunkalloc.Location[uint64]
	if s.rand.Float64() < s.config.StaticRatio {
		location, err = s.allocator.AllocateStatic(size)
	} else {
		location, err = s.allocator.Allocate(size)
	}
	if err != nil {
		return true, err
	}

	stamp(location)
	s.live = append(s.live, location)
	return true, nil
}

// defragment runs cycles until the defragger goes idle. Synchronous defraggers are stepped
// directly; otherwise the worker goroutine is started and polled.
func (s *simulator) defragment(ctx context.Context) error {
	if !s.defragger.Enabled() {
		return nil
	}

	cycles := s.defragger.Stats().Cycles
	s.defragger.Start()

	if s.synchronous {
		for s.defragger.Step() {
		}
		return nil
	}

	for s.defragger.State() != defrag.StateIdle || s.defragger.Stats().Cycles == cycles {
		select {
		case <-ctx.Done():
			s.defragger.Stop()
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}

	return nil
}

func (s *simulator) run(ctx context.Context) (report, error) {
	var r report

	for i := 0; i < s.config.Operations; i++ {
		if ctx.Err() != nil {
			return r, ctx.Err()
		}

		allocated, err := s.step()
		switch {
		case errors.Is(err, hostmem.OutOfMemoryError):
			r.Failures++
			s.logger.LogAttrs(ctx, slog.LevelDebug, "Allocation failed", slog.Int("step", i), slog.Any("error", err))
		case err != nil:
			return r, err
		case allocated:
			r.Allocations++
		default:
			r.Frees++
		}

		if s.config.DefragEvery > 0 && (i+1)%s.config.DefragEvery == 0 {
			err = s.defragment(ctx)
			if err != nil {
				return r, err
			}
		}
	}

	r.Before = s.allocator.CollectMemoryStats()
	err := s.defragment(ctx)
	if err != nil {
		return r, err
	}
	r.After = s.allocator.CollectMemoryStats()
	r.Defrag = s.defragger.Stats()

	for _, location := range s.live {
		if !intact(location) {
			r.Corrupted++
			s.logger.LogAttrs(ctx, slog.LevelError, "Location contents changed during relocation",
				slog.String("location", location.String()))
		}
	}

	return r, nil
}

// close frees every live location and tears the allocator down
func (s *simulator) close() error {
	s.defragger.Close()

	var err error
	for _, location := range s.live {
		err = multierror.Append(err, s.allocator.Free(location)).ErrorOrNil()
	}
	s.live = nil

	err = multierror.Append(err, s.allocator.Destroy()).ErrorOrNil()
	s.backend.Close()
	return err
}
