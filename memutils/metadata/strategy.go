package metadata

// AllocationStrategy selects how a FitStrategy chooses a free range inside the chunk it has
// picked. Chunk selection is always first fit: the first chunk whose largest free range can
// hold the request wins.
type AllocationStrategy uint32

const (
	// AllocationStrategyFirstFit selects the first free range in the chosen chunk that is large
	// enough for the request. This is the fastest strategy and the default.
	AllocationStrategyFirstFit AllocationStrategy = iota
	// AllocationStrategyBestFit selects the smallest free range in the chosen chunk that is large
	// enough for the request, leaving larger ranges intact for larger requests at the expense of
	// scanning the whole free list.
	AllocationStrategyBestFit
)

var allocationStrategyMapping = map[AllocationStrategy]string{
	AllocationStrategyFirstFit: "AllocationStrategyFirstFit",
	AllocationStrategyBestFit:  "AllocationStrategyBestFit",
}

func (s AllocationStrategy) String() string {
	return allocationStrategyMapping[s]
}

// FreeSpaceList is an ordered sequence of chunks that a FitStrategy can search
type FreeSpaceList interface {
	ChunkCount() int
	ChunkFreeList(chunkIndex int) *FreeList
}

// FitStrategy chooses the chunk and free range that will satisfy a request. Only chunks with
// an index lower than end are considered. If no chunk can hold size bytes, found is false.
type FitStrategy interface {
	FindRange(chunks FreeSpaceList, end int, size int) (chunkIndex int, entryIndex int, found bool)
}

// NewFitStrategy returns the FitStrategy for the provided AllocationStrategy
func NewFitStrategy(strategy AllocationStrategy) FitStrategy {
	if strategy == AllocationStrategyBestFit {
		return BestFit{}
	}

	return FirstFit{}
}

// FirstFit picks the first sufficiently large free range of the first chunk that can hold the request
type FirstFit struct{}

var _ FitStrategy = FirstFit{}

func (FirstFit) FindRange(chunks FreeSpaceList, end int, size int) (int, int, bool) {
	chunkIndex, freeList := findChunk(chunks, end, size)
	if freeList == nil {
		return -1, -1, false
	}

	for entryIndex := 0; entryIndex < freeList.Len(); entryIndex++ {
		if freeList.Entry(entryIndex).Size >= size {
			return chunkIndex, entryIndex, true
		}
	}

	panic("chunk reported a free range large enough for the request but none was found")
}

// BestFit picks the tightest free range of the first chunk that can hold the request. Among
// equally tight ranges, the lowest offset wins.
type BestFit struct{}

var _ FitStrategy = BestFit{}

func (BestFit) FindRange(chunks FreeSpaceList, end int, size int) (int, int, bool) {
	chunkIndex, freeList := findChunk(chunks, end, size)
	if freeList == nil {
		return -1, -1, false
	}

	bestIndex := -1
	for entryIndex := 0; entryIndex < freeList.Len(); entryIndex++ {
		entrySize := freeList.Entry(entryIndex).Size
		if entrySize < size {
			continue
		}

		if bestIndex < 0 || entrySize < freeList.Entry(bestIndex).Size {
			bestIndex = entryIndex
			if entrySize == size {
				break
			}
		}
	}

	return chunkIndex, bestIndex, true
}

func findChunk(chunks FreeSpaceList, end int, size int) (int, *FreeList) {
	if end > chunks.ChunkCount() {
		end = chunks.ChunkCount()
	}

	for chunkIndex := 0; chunkIndex < end; chunkIndex++ {
		freeList := chunks.ChunkFreeList(chunkIndex)
		if freeList.MaxFreeRange().Size >= size {
			return chunkIndex, freeList
		}
	}

	return -1, nil
}
