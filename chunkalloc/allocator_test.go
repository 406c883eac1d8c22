package chunkalloc_test

import (
	"encoding/json"
	"io"
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/chunkmem/chunkalloc"
	"github.com/vkngwrapper/chunkmem/chunkalloc/hostmem"
	mock_chunkalloc "github.com/vkngwrapper/chunkmem/chunkalloc/mocks"
	"github.com/vkngwrapper/chunkmem/memutils"
	"github.com/vkngwrapper/chunkmem/memutils/metadata"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func readyAllocator(t *testing.T, options chunkalloc.CreateOptions) (*hostmem.Backend[struct{}], *chunkalloc.Allocator[struct{}]) {
	backend, err := hostmem.NewBackend[struct{}](testLogger(), nil, hostmem.BackendOptions{Alignment: 1})
	require.NoError(t, err)

	if options.ChunkSize == 0 {
		options.ChunkSize = 1024
	}

	allocator, err := chunkalloc.New[struct{}](testLogger(), backend, options)
	require.NoError(t, err)

	return backend, allocator
}

func TestAllocator_ReusesChunk(t *testing.T) {
	backend, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	first, err := allocator.Allocate(100)
	require.NoError(t, err)
	second, err := allocator.Allocate(200)
	require.NoError(t, err)

	require.Equal(t, 1, allocator.ChunkCount())
	require.Equal(t, 1, backend.LiveChunks())
	require.Equal(t, 0, first.Offset())
	require.Equal(t, 100, second.Offset())
	require.Same(t, first.Memory(), second.Memory())
	require.Equal(t, memutils.MemoryStats{Total: 1024, Used: 300}, allocator.CollectMemoryStats())

	require.NoError(t, allocator.Free(first))
	require.NoError(t, allocator.Free(second))
	require.NoError(t, allocator.Destroy())
	require.Equal(t, 0, backend.LiveChunks())
}

func TestAllocator_ReusesFreedRange(t *testing.T) {
	backend, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	first, err := allocator.Allocate(300)
	require.NoError(t, err)
	second, err := allocator.Allocate(300)
	require.NoError(t, err)
	require.Equal(t, 0, first.Offset())
	require.Equal(t, 300, second.Offset())

	require.NoError(t, allocator.Free(first))

	third, err := allocator.Allocate(300)
	require.NoError(t, err)
	require.Equal(t, 0, third.Offset())
	require.Same(t, second.Memory(), third.Memory())
	require.Equal(t, 1, allocator.ChunkCount())
	require.Equal(t, 1, backend.LiveChunks())
}

func TestAllocator_FreeInAnyOrderRestoresChunk(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		_, allocator := readyAllocator(t, chunkalloc.CreateOptions{})
		random := rand.New(rand.NewSource(seed))

		locations := make([]*chunkalloc.Location[struct{}], 8)
		for i := range locations {
			var err error
			locations[i], err = allocator.Allocate(1 + random.Intn(128))
			require.NoError(t, err)
		}
		require.Equal(t, 1, allocator.ChunkCount())
		memory := locations[0].Memory()

		random.Shuffle(len(locations), func(i, j int) {
			locations[i], locations[j] = locations[j], locations[i]
		})
		for _, location := range locations {
			require.NoError(t, allocator.Free(location), "seed %d", seed)
		}

		require.Equal(t, 1, allocator.ChunkCount(), "seed %d", seed)
		require.True(t, allocator.MemoryIsFree(memory, metadata.FreeListEntry{Offset: 0, Size: 1024}), "seed %d", seed)
		require.Equal(t, memutils.MemoryStats{Total: 1024}, allocator.CollectMemoryStats(), "seed %d", seed)
	}
}

func TestAllocator_CreatesChunkWhenFull(t *testing.T) {
	_, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	first, err := allocator.Allocate(900)
	require.NoError(t, err)
	second, err := allocator.Allocate(200)
	require.NoError(t, err)

	require.Equal(t, 2, allocator.ChunkCount())
	require.NotSame(t, first.Memory(), second.Memory())
	require.Equal(t, 0, second.Offset())
	require.Equal(t, memutils.MemoryStats{Total: 2048, Used: 1100, Fragmented: 0}, allocator.CollectMemoryStats())
}

func TestAllocator_OversizedRequestGetsOwnChunk(t *testing.T) {
	_, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	location, err := allocator.Allocate(4000)
	require.NoError(t, err)

	require.Equal(t, 4000, location.Memory().Size())
	require.Equal(t, 1, allocator.ChunkCount())
}

func TestAllocator_AdjacentFreesCoalesce(t *testing.T) {
	_, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	first, err := allocator.Allocate(100)
	require.NoError(t, err)
	second, err := allocator.Allocate(100)
	require.NoError(t, err)
	third, err := allocator.Allocate(100)
	require.NoError(t, err)

	memory := first.Memory()

	require.NoError(t, allocator.Free(first))
	require.True(t, allocator.MemoryIsFree(memory, metadata.FreeListEntry{Offset: 0, Size: 100}))
	require.Equal(t, 100, allocator.CollectMemoryStats().Fragmented)

	require.NoError(t, allocator.Free(second))
	require.True(t, allocator.MemoryIsFree(memory, metadata.FreeListEntry{Offset: 0, Size: 200}))
	require.False(t, allocator.MemoryIsFree(memory, metadata.FreeListEntry{Offset: 0, Size: 100}))
	require.False(t, allocator.MemoryIsFree(memory, metadata.FreeListEntry{Offset: 100, Size: 100}))

	require.NoError(t, allocator.Free(third))
	require.True(t, allocator.MemoryIsFree(memory, metadata.FreeListEntry{Offset: 0, Size: 1024}))
	require.Equal(t, memutils.MemoryStats{Total: 1024}, allocator.CollectMemoryStats())
}

func TestAllocator_MemoryIsFreeRequiresExactMatch(t *testing.T) {
	backend, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	location, err := allocator.Allocate(100)
	require.NoError(t, err)
	memory := location.Memory()

	require.True(t, allocator.MemoryIsFree(memory, metadata.FreeListEntry{Offset: 100, Size: 924}))
	require.False(t, allocator.MemoryIsFree(memory, metadata.FreeListEntry{Offset: 100, Size: 100}))
	require.False(t, allocator.MemoryIsFree(memory, metadata.FreeListEntry{Offset: 200, Size: 824}))
	require.False(t, allocator.MemoryIsFree(memory, metadata.FreeListEntry{Offset: 0, Size: 100}))

	other, err := backend.CreateChunk(1024)
	require.NoError(t, err)
	require.False(t, allocator.MemoryIsFree(other, metadata.FreeListEntry{Offset: 0, Size: 1024}))
}

func TestAllocator_RetiresTrailingEmptyChunks(t *testing.T) {
	backend, err := hostmem.NewBackend[struct{}](testLogger(), nil, hostmem.BackendOptions{Alignment: 1})
	require.NoError(t, err)

	var retired []uint64
	allocator, err := chunkalloc.New[struct{}](testLogger(), backend, chunkalloc.CreateOptions{
		ChunkSize: 1024,
		ChunkCallbacks: &chunkalloc.ChunkCallbackOptions{
			Free: func(chunkID uint64, memory chunkalloc.Memory, size int, userData any) {
				retired = append(retired, chunkID)
			},
		},
	})
	require.NoError(t, err)

	first, err := allocator.Allocate(1000)
	require.NoError(t, err)
	second, err := allocator.Allocate(1000)
	require.NoError(t, err)
	third, err := allocator.Allocate(1000)
	require.NoError(t, err)
	require.Equal(t, 3, allocator.ChunkCount())

	require.NoError(t, allocator.Free(third))
	require.Equal(t, 3, allocator.ChunkCount())
	require.Empty(t, retired)

	require.NoError(t, allocator.Free(second))
	require.Equal(t, 2, allocator.ChunkCount())
	require.Equal(t, []uint64{3}, retired)

	require.NoError(t, allocator.Free(first))
	require.Equal(t, 1, allocator.ChunkCount())
	require.Equal(t, []uint64{3, 2}, retired)
	require.Equal(t, 1, backend.LiveChunks())
}

func TestAllocator_Strategies(t *testing.T) {
	testCases := map[string]struct {
		strategy       metadata.AllocationStrategy
		expectedOffset int
	}{
		"FirstFit": {
			strategy:       metadata.AllocationStrategyFirstFit,
			expectedOffset: 100,
		},
		"BestFit": {
			strategy:       metadata.AllocationStrategyBestFit,
			expectedOffset: 400,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			_, allocator := readyAllocator(t, chunkalloc.CreateOptions{Strategy: testCase.strategy})

			sizes := []int{100, 200, 100, 50, 100}
			locations := make([]*chunkalloc.Location[struct{}], len(sizes))
			for i, size := range sizes {
				var err error
				locations[i], err = allocator.Allocate(size)
				require.NoError(t, err)
			}

			require.NoError(t, allocator.Free(locations[1]))
			require.NoError(t, allocator.Free(locations[3]))

			location, err := allocator.Allocate(40)
			require.NoError(t, err)
			require.Equal(t, testCase.expectedOffset, location.Offset())
		})
	}
}

func TestAllocator_AlignsSizes(t *testing.T) {
	_, allocator := readyAllocator(t, chunkalloc.CreateOptions{Alignment: 16})

	first, err := allocator.Allocate(10)
	require.NoError(t, err)
	second, err := allocator.Allocate(10)
	require.NoError(t, err)

	require.Equal(t, 16, first.Size())
	require.Equal(t, 16, second.Offset())
}

func TestAllocator_InvalidOptions(t *testing.T) {
	backend, err := hostmem.NewBackend[struct{}](testLogger(), nil, hostmem.BackendOptions{})
	require.NoError(t, err)

	_, err = chunkalloc.New[struct{}](testLogger(), backend, chunkalloc.CreateOptions{Alignment: 3})
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))

	_, err = chunkalloc.New[struct{}](testLogger(), backend, chunkalloc.CreateOptions{ChunkSize: -1})
	require.Error(t, err)

	_, err = chunkalloc.New[struct{}](testLogger(), nil, chunkalloc.CreateOptions{})
	require.Error(t, err)
}

func TestAllocator_RejectsEmptyRequests(t *testing.T) {
	_, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	_, err := allocator.Allocate(0)
	require.True(t, errors.Is(err, memutils.InvalidSizeError))

	_, err = allocator.Allocate(-5)
	require.True(t, errors.Is(err, memutils.InvalidSizeError))
	require.Equal(t, 0, allocator.ChunkCount())
}

func TestAllocator_BackendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	backend := mock_chunkalloc.NewMockBackend[struct{}](ctrl)
	backend.EXPECT().Alignment().Return(256).AnyTimes()
	backend.EXPECT().CreateChunk(1024).Return(nil, errors.New("out of device memory"))

	allocator, err := chunkalloc.New[struct{}](testLogger(), backend, chunkalloc.CreateOptions{ChunkSize: 1000})
	require.NoError(t, err)

	_, err = allocator.Allocate(10)
	require.ErrorContains(t, err, "failed to create a chunk of 1024 bytes")
	require.ErrorContains(t, err, "out of device memory")
	require.Equal(t, 0, allocator.ChunkCount())
}

func TestAllocator_FreeReleasesData(t *testing.T) {
	ctrl := gomock.NewController(t)

	memory := mock_chunkalloc.NewMockMemory(ctrl)
	memory.EXPECT().Size().Return(1024).AnyTimes()

	backend := mock_chunkalloc.NewMockBackend[string](ctrl)
	backend.EXPECT().Alignment().Return(1).AnyTimes()
	backend.EXPECT().CreateChunk(1024).Return(memory, nil)

	allocator, err := chunkalloc.New[string](testLogger(), backend, chunkalloc.CreateOptions{ChunkSize: 1024})
	require.NoError(t, err)

	location, err := allocator.Allocate(64)
	require.NoError(t, err)
	location.SetData("image")

	backend.EXPECT().ReleaseData(location).DoAndReturn(func(location *chunkalloc.Location[string]) error {
		require.Equal(t, "image", location.Data())
		return errors.New("could not destroy image")
	})

	err = allocator.Free(location)
	require.ErrorContains(t, err, "could not destroy image")
	require.Equal(t, "", location.Data())
	require.Equal(t, memutils.MemoryStats{Total: 1024}, allocator.CollectMemoryStats())

	backend.EXPECT().DestroyChunk(memory).Return(nil)
	require.NoError(t, allocator.Destroy())
}

func TestAllocator_Swap(t *testing.T) {
	backend, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	first, err := allocator.Allocate(100)
	require.NoError(t, err)
	second, err := allocator.Allocate(100)
	require.NoError(t, err)
	copy(hostmem.Bytes(first), []byte("first"))

	require.NoError(t, allocator.Swap(second, first))

	require.Equal(t, 100, first.Offset())
	require.Equal(t, 0, second.Offset())
	require.Equal(t, uint64(1), first.Generation())
	require.Equal(t, uint64(1), second.Generation())
	require.Equal(t, 1, backend.Moves())

	// Swapping moves placement, not contents
	require.Equal(t, []byte("first"), hostmem.Bytes(second)[:5])
	require.Equal(t, memutils.MemoryStats{Total: 1024, Used: 200}, allocator.CollectMemoryStats())

	third, err := allocator.Allocate(50)
	require.NoError(t, err)
	require.Equal(t, 200, third.Offset())
	require.Panics(t, func() {
		_ = allocator.Swap(third, first)
	})
}

func TestAllocator_SwapAcrossChunks(t *testing.T) {
	_, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	locations := make([]*chunkalloc.Location[struct{}], 3)
	for i := range locations {
		var err error
		locations[i], err = allocator.Allocate(300)
		require.NoError(t, err)
	}
	large, err := allocator.Allocate(600)
	require.NoError(t, err)
	last, err := allocator.Allocate(300)
	require.NoError(t, err)

	require.Equal(t, 2, allocator.ChunkCount())
	firstMemory := locations[0].Memory()
	secondMemory := large.Memory()
	require.Equal(t, 600, last.Offset())

	require.NoError(t, allocator.Swap(last, locations[1]))
	require.Same(t, secondMemory, locations[1].Memory())
	require.Equal(t, 600, locations[1].Offset())
	require.Same(t, firstMemory, last.Memory())
	require.Equal(t, 300, last.Offset())

	var parsed struct {
		Chunks map[string]struct {
			Suballocations []struct {
				Offset int
				Type   string
				ID     int
			}
		}
	}
	require.NoError(t, json.Unmarshal([]byte(allocator.BuildStatsString(true)), &parsed))
	require.Len(t, parsed.Chunks, 2)

	for name, chunk := range parsed.Chunks {
		offsets := make([]int, 0, len(chunk.Suballocations))
		for _, entry := range chunk.Suballocations {
			offsets = append(offsets, entry.Offset)
		}
		require.IsIncreasing(t, offsets, "chunk %s", name)
	}
	require.Equal(t, int(last.ID()), parsed.Chunks["1"].Suballocations[1].ID)
	require.Equal(t, int(locations[1].ID()), parsed.Chunks["2"].Suballocations[1].ID)

	// Both locations are found in their new chunks when freed
	require.NoError(t, allocator.Free(last))
	require.True(t, allocator.MemoryIsFree(firstMemory, metadata.FreeListEntry{Offset: 300, Size: 300}))
	require.NoError(t, allocator.Free(locations[1]))
	require.True(t, allocator.MemoryIsFree(secondMemory, metadata.FreeListEntry{Offset: 600, Size: 424}))
}

func TestAllocator_MoveAllocation(t *testing.T) {
	_, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	first, err := allocator.Allocate(100)
	require.NoError(t, err)
	second, err := allocator.Allocate(100)
	require.NoError(t, err)
	memory := first.Memory()

	require.NoError(t, allocator.Free(first))
	target := allocator.ReserveSpace(memory, metadata.FreeListEntry{Offset: 0, Size: 100}, 100)
	require.Equal(t, 0, target.Offset())
	require.Equal(t, 2, allocator.AllocationCount())

	require.NoError(t, allocator.MoveAllocation(target, second))
	require.Equal(t, 0, second.Offset())
	require.Equal(t, 1, allocator.AllocationCount())
	require.True(t, allocator.MemoryIsFree(memory, metadata.FreeListEntry{Offset: 100, Size: 924}))
	require.Nil(t, target.Memory())
}

func TestAllocator_ReserveSpacePanics(t *testing.T) {
	backend, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	location, err := allocator.Allocate(100)
	require.NoError(t, err)
	memory := location.Memory()

	require.Panics(t, func() {
		allocator.ReserveSpace(memory, metadata.FreeListEntry{Offset: 100, Size: 100}, 100)
	})

	other, err := backend.CreateChunk(1024)
	require.NoError(t, err)
	require.Panics(t, func() {
		allocator.ReserveSpace(other, metadata.FreeListEntry{Offset: 0, Size: 1024}, 100)
	})
}

func TestAllocator_FreeUnknownLocationPanics(t *testing.T) {
	_, allocator := readyAllocator(t, chunkalloc.CreateOptions{})
	_, other := readyAllocator(t, chunkalloc.CreateOptions{})

	location, err := other.Allocate(100)
	require.NoError(t, err)

	require.Panics(t, func() {
		_ = allocator.Free(location)
	})
}

func TestAllocator_DestroyReportsLeaks(t *testing.T) {
	backend, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	location, err := allocator.Allocate(100)
	require.NoError(t, err)
	location.SetName("leaked")

	err = allocator.Destroy()
	require.ErrorContains(t, err, "were not freed")
	require.Equal(t, 0, backend.LiveChunks())

	_, err = allocator.Allocate(100)
	require.True(t, errors.Is(err, memutils.ClosedError))
	require.True(t, errors.Is(allocator.Destroy(), memutils.ClosedError))
}

func TestAllocator_Statistics(t *testing.T) {
	_, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	first, err := allocator.Allocate(100)
	require.NoError(t, err)
	_, err = allocator.Allocate(300)
	require.NoError(t, err)
	_, err = allocator.Allocate(1000)
	require.NoError(t, err)
	require.NoError(t, allocator.Free(first))

	var stats memutils.DetailedStatistics
	allocator.CalculateStatistics(&stats)

	require.Equal(t, 2, stats.ChunkCount)
	require.Equal(t, 2048, stats.ChunkBytes)
	require.Equal(t, 2, stats.AllocationCount)
	require.Equal(t, 1300, stats.AllocationBytes)
	require.Equal(t, 300, stats.AllocationSizeMin)
	require.Equal(t, 1000, stats.AllocationSizeMax)
	require.Equal(t, 3, stats.UnusedRangeCount)
	require.Equal(t, 24, stats.UnusedRangeSizeMin)
	require.Equal(t, 624, stats.UnusedRangeSizeMax)
}

func TestAllocator_BuildStatsString(t *testing.T) {
	_, allocator := readyAllocator(t, chunkalloc.CreateOptions{})

	first, err := allocator.Allocate(100)
	require.NoError(t, err)
	first.SetName("vertices")
	_, err = allocator.Allocate(200)
	require.NoError(t, err)
	require.NoError(t, allocator.Free(first))

	var parsed struct {
		Total struct {
			ChunkCount      int
			AllocationCount int
			FragmentedBytes int
		}
		Chunks map[string]struct {
			TotalBytes     int
			Suballocations []struct {
				Offset int
				Type   string
				Size   int
			}
		}
	}

	statsString := allocator.BuildStatsString(true)
	require.NoError(t, json.Unmarshal([]byte(statsString), &parsed))

	require.Equal(t, 1, parsed.Total.ChunkCount)
	require.Equal(t, 1, parsed.Total.AllocationCount)
	require.Equal(t, 100, parsed.Total.FragmentedBytes)
	require.Len(t, parsed.Chunks, 1)

	chunk := parsed.Chunks["1"]
	require.Equal(t, 1024, chunk.TotalBytes)
	require.Len(t, chunk.Suballocations, 3)
	require.Equal(t, "FREE", chunk.Suballocations[0].Type)
	require.Equal(t, "ALLOCATION", chunk.Suballocations[1].Type)
	require.Equal(t, 100, chunk.Suballocations[1].Offset)
	require.Equal(t, 200, chunk.Suballocations[1].Size)
	require.Equal(t, "FREE", chunk.Suballocations[2].Type)
	require.Equal(t, 300, chunk.Suballocations[2].Offset)

	summary := allocator.BuildStatsString(false)
	require.NotContains(t, summary, "Chunks")
}
