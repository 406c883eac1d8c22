package chunkalloc

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/chunkmem/chunkalloc/internal/utils"
	"github.com/vkngwrapper/chunkmem/memutils"
	"github.com/vkngwrapper/chunkmem/memutils/metadata"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// AllocatorCreateExternallySynchronized ensures that this allocator and all objects created from it
	// will not be synchronized internally. The consumer must guarantee they are used from only one
	// goroutine at a time or are synchronized by some other mechanism, but performance may improve because
	// internal mutexes are not used. An allocator created with this flag cannot be used with a Defragger
	// that runs its own goroutine.
	AllocatorCreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	AllocatorCreateExternallySynchronized: "AllocatorCreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	var names []string
	for flag, name := range createFlagsMapping {
		if f&flag != 0 {
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return "None"
	}

	return strings.Join(names, "|")
}

const (
	// DefaultChunkSize is the value that is used as the ChunkSize when none is provided via
	// CreateOptions. It is equal to 64Mb.
	DefaultChunkSize int = 64 * 1024 * 1024
)

// CreateOptions contains optional settings when creating an allocator. The zero value is usable.
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags `json:"flags"`
	// ChunkSize is the size of each chunk obtained from the backend. Requests larger than this get
	// a chunk of their own, sized to fit. Defaults to DefaultChunkSize.
	ChunkSize int `json:"chunkSize"`
	// Alignment is the alignment every allocation size is rounded up to. It must be a power of two
	// and defaults to 1.
	Alignment uint `json:"alignment"`
	// Strategy chooses the free range each request is placed in
	Strategy metadata.AllocationStrategy `json:"strategy"`

	// ChunkCallbacks is an optional set of callbacks that will be executed when chunks are created
	// or destroyed by this allocator
	ChunkCallbacks *ChunkCallbackOptions `json:"-"`
}

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New creates an Allocator that obtains chunks from backend. logger may be nil, in which case
// nothing is logged.
func New[D any](logger *slog.Logger, backend Backend[D], options CreateOptions) (*Allocator[D], error) {
	if backend == nil {
		return nil, errors.New("attempted to create an allocator without a backend")
	}

	if logger == nil {
		logger = newDiscardLogger()
	}

	chunkAlignment := backend.Alignment()
	err := memutils.CheckPow2(chunkAlignment, "backend alignment")
	if err != nil {
		return nil, err
	}

	alignment := options.Alignment
	if alignment == 0 {
		alignment = 1
	}

	err = memutils.CheckPow2(alignment, "CreateOptions.Alignment")
	if err != nil {
		return nil, err
	}

	chunkSize := options.ChunkSize
	if chunkSize < 0 {
		return nil, errors.Newf("CreateOptions.ChunkSize must not be negative, but was %d", chunkSize)
	} else if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	allocator := &Allocator[D]{
		logger:    logger,
		backend:   backend,
		strategy:  metadata.NewFitStrategy(options.Strategy),
		chunkSize: chunkSize,
		alignment: alignment,
		callbacks: chunkCallbacks{Callbacks: options.ChunkCallbacks},

		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&AllocatorCreateExternallySynchronized == 0,
			Mutex:    sync.Mutex{},
		},
		chunksByMemory: swiss.NewMap[Memory, *chunk[D]](8),
		chunksByID:     swiss.NewMap[uint64, *chunk[D]](8),
		locations:      swiss.NewMap[uint64, *Location[D]](64),
		nextChunkID:    1,
		nextLocationID: 1,
	}
	allocator.chunkPool.New = func() any {
		return &chunk[D]{}
	}

	logger.LogAttrs(context.Background(), slog.LevelDebug, "Created chunk allocator",
		slog.Int("chunkSize", chunkSize),
		slog.Int("alignment", int(alignment)),
		slog.String("strategy", options.Strategy.String()),
		slog.String("flags", options.Flags.String()),
	)

	return allocator, nil
}
