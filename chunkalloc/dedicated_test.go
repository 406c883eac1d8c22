package chunkalloc_test

import (
	"sync"
	"testing"
	"time"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/chunkmem/chunkalloc"
	"github.com/vkngwrapper/chunkmem/chunkalloc/hostmem"
	"github.com/vkngwrapper/chunkmem/memutils"
)

func TestDedicatedAllocator(t *testing.T) {
	safe := chunkalloc.NewSafeAllocator()
	backend, err := hostmem.NewBackend[struct{}](testLogger(), safe, hostmem.BackendOptions{Alignment: 256})
	require.NoError(t, err)
	require.Equal(t, 2, safe.References())

	allocator, err := chunkalloc.NewDedicated[struct{}](testLogger(), backend, chunkalloc.CreateOptions{})
	require.NoError(t, err)

	first, err := allocator.Allocate(100)
	require.NoError(t, err)
	second, err := allocator.Allocate(300)
	require.NoError(t, err)

	require.True(t, first.Static())
	require.Equal(t, 0, first.Offset())
	require.NotSame(t, first.Memory(), second.Memory())
	require.Equal(t, 2, allocator.ChunkCount())
	require.Equal(t, memutils.MemoryStats{Total: 768, Used: 768}, allocator.CollectMemoryStats())

	writer := jwriter.NewWriter()
	allocator.BuildStatsString(&writer)
	require.Contains(t, string(writer.Bytes()), `"Size":300`)

	require.NoError(t, allocator.Free(first))
	require.Equal(t, memutils.MemoryStats{Total: 512, Used: 512}, allocator.CollectMemoryStats())
	require.Equal(t, 1, backend.LiveChunks())

	err = allocator.Destroy()
	require.ErrorContains(t, err, "1 dedicated allocations were not freed")
	require.Equal(t, 0, backend.LiveChunks())

	backend.Close()
	require.True(t, safe.Release())
}

func TestDedicatedAllocator_SharedBackend(t *testing.T) {
	safe := chunkalloc.NewSafeAllocator()
	backend, err := hostmem.NewBackend[struct{}](testLogger(), safe, hostmem.BackendOptions{Alignment: 256})
	require.NoError(t, err)

	chunks, err := chunkalloc.New[struct{}](testLogger(), backend, chunkalloc.CreateOptions{ChunkSize: 1024, Alignment: 256})
	require.NoError(t, err)
	dedicated, err := chunkalloc.NewDedicated[struct{}](testLogger(), backend, chunkalloc.CreateOptions{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()

			location, err := dedicated.Allocate(512)
			if err == nil {
				err = dedicated.Free(location)
			}
			errs <- err
		}()
		go func() {
			defer wg.Done()

			location, err := chunks.Allocate(256)
			if err == nil {
				err = chunks.Free(location)
			}
			errs <- err
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "allocations through a shared backend did not complete")
	}

	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, dedicated.Destroy())
	require.NoError(t, chunks.Destroy())
	require.Equal(t, 0, backend.LiveChunks())

	backend.Close()
	require.True(t, safe.Release())
}

func TestDedicatedAllocator_OutOfMemory(t *testing.T) {
	backend, err := hostmem.NewBackend[struct{}](testLogger(), nil, hostmem.BackendOptions{Alignment: 256, MaxBytes: 512})
	require.NoError(t, err)

	allocator, err := chunkalloc.NewDedicated[struct{}](testLogger(), backend, chunkalloc.CreateOptions{})
	require.NoError(t, err)

	_, err = allocator.Allocate(300)
	require.NoError(t, err)

	_, err = allocator.Allocate(300)
	require.ErrorIs(t, err, hostmem.OutOfMemoryError)
	require.Equal(t, 1, allocator.ChunkCount())
}

func TestSafeAllocator(t *testing.T) {
	safe := chunkalloc.NewSafeAllocator()
	require.Equal(t, 1, safe.References())

	require.Same(t, safe, safe.Ref())
	require.False(t, safe.Release())

	var wg sync.WaitGroup
	var inside, maxInside int
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_ = safe.Allocate(func() error {
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				inside--
				return nil
			})
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxInside)

	require.True(t, safe.Release())
	require.Panics(t, func() {
		safe.Release()
	})
}
