package chunkalloc

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/chunkmem/memutils/defrag"
	"golang.org/x/exp/slog"
)

// DefragOptions contains optional settings when creating a Defragger. The zero value creates a
// disabled defragger with the default penalties and no per-cycle limits.
type DefragOptions struct {
	// Enabled controls whether Start is honored. It can be changed later with SetEnabled.
	Enabled bool `json:"enabled"`
	// Penalties weights proposed relocations. Defaults to defrag.DefaultPenalties.
	Penalties *defrag.Penalties `json:"penalties,omitempty"`
	// Synchronous keeps the defragger from starting its own goroutine. Cycles only run when Step
	// is called.
	Synchronous bool `json:"synchronous"`

	defrag.Limits
}

// Defragger compacts an Allocator in the background. Each cycle scans the allocator for movable
// locations that would fit in an earlier free range, then relocates them lightest first: space is
// reserved at the destination, the Mover copies the data across, and the source takes over the
// reserved range while its old range is freed. Cycles repeat until one moves nothing.
//
// The copy runs without the allocator's lock held, so allocations and frees can proceed while a
// relocation is in flight.
type Defragger[D any] struct {
	logger    *slog.Logger
	allocator *Allocator[D]
	mover     Mover[D]
	penalties defrag.Penalties
	limits    defrag.Limits
	worker    *defrag.Worker
}

var _ defrag.Cycle = &Defragger[struct{}]{}
var _ defrag.Handler = &Defragger[struct{}]{}
var _ allocatorListener = &Defragger[struct{}]{}

// NewDefragger creates a Defragger for allocator, which relocates data with mover. Unless
// options.Synchronous is set, the defragger's goroutine is started immediately and runs until
// Close is called. logger may be nil, in which case nothing is logged.
func NewDefragger[D any](logger *slog.Logger, allocator *Allocator[D], mover Mover[D], options DefragOptions) (*Defragger[D], error) {
	if allocator == nil {
		return nil, errors.New("attempted to create a defragger without an allocator")
	}

	if mover == nil {
		return nil, errors.New("attempted to create a defragger without a mover")
	}

	if !options.Synchronous && !allocator.mutex.UseMutex {
		return nil, errors.New("an externally synchronized allocator can only be defragmented synchronously")
	}

	if logger == nil {
		logger = newDiscardLogger()
	}

	penalties := defrag.DefaultPenalties()
	if options.Penalties != nil {
		penalties = *options.Penalties
	}

	d := &Defragger[D]{
		logger:    logger,
		allocator: allocator,
		mover:     mover,
		penalties: penalties,
		limits:    options.Limits,
	}
	d.worker = defrag.NewWorker(logger, d)
	d.worker.SetEnabled(options.Enabled)

	allocator.addListener(d)

	if !options.Synchronous {
		d.worker.Launch()
	}

	return d, nil
}

// Start asks the defragger to begin compacting. It is ignored if the defragger is disabled or
// already running.
func (d *Defragger[D]) Start() {
	d.worker.Start()
}

// Stop asks the defragger to go idle and blocks until it has. A relocation in flight completes
// first.
func (d *Defragger[D]) Stop() {
	d.worker.Stop()
}

// SetEnabled controls whether Start is honored
func (d *Defragger[D]) SetEnabled(enabled bool) {
	d.worker.SetEnabled(enabled)
}

func (d *Defragger[D]) Enabled() bool {
	return d.worker.Enabled()
}

// InvalidateMemory voids pending relocations into memory. The allocator invalidates chunks it
// destroys on its own; this is for memory the consumer knows to be unsuitable.
func (d *Defragger[D]) InvalidateMemory(memory Memory) {
	chunkID, ok := d.allocator.chunkIDForMemory(memory)
	if ok {
		d.worker.InvalidateMemory(chunkID)
	}
}

// InvalidateLocation voids pending relocations of location. The allocator invalidates locations
// that are freed on its own.
func (d *Defragger[D]) InvalidateLocation(location *Location[D]) {
	d.worker.InvalidateLocation(location.ID())
}

// Close stops the defragger for good and detaches it from its allocator
func (d *Defragger[D]) Close() {
	d.worker.Close()
	d.allocator.removeListener(d)
}

// Step handles pending requests and runs at most one cycle on the calling goroutine. It returns
// false if there was nothing to do. It may only be used with a synchronous defragger.
func (d *Defragger[D]) Step() bool {
	return d.worker.Step()
}

// Stats returns totals across every cycle the defragger has run
func (d *Defragger[D]) Stats() defrag.Stats {
	return d.worker.Stats()
}

func (d *Defragger[D]) State() defrag.State {
	return d.worker.State()
}

func (d *Defragger[D]) locationFreed(locationID uint64) {
	d.worker.InvalidateLocation(locationID)
}

func (d *Defragger[D]) chunkRetired(chunkID uint64) {
	d.worker.InvalidateMemory(chunkID)
}

func (d *Defragger[D]) FindOperations(ops *defrag.OperationSet, interrupted func() bool) int {
	d.allocator.mutex.Lock()
	defer d.allocator.mutex.Unlock()

	scanner := defrag.Scanner{
		Strategy:  d.allocator.strategy,
		Penalties: d.penalties,
		Chunks:    d.allocator.freeSpace(),
	}

	return scanner.FindOperations(ops, interrupted)
}

func (d *Defragger[D]) PerformOperations(ops *defrag.OperationSet, interrupted func() bool) defrag.Stats {
	return defrag.PerformOperations(d.logger, ops, d, d.limits, interrupted)
}

func (d *Defragger[D]) CheckTarget(operation defrag.Operation) defrag.TargetStatus {
	d.allocator.mutex.Lock()
	defer d.allocator.mutex.Unlock()

	return d.allocator.checkTarget(operation.TargetChunkID, operation.Target)
}

// reserve claims the operation's destination for its source and marks the source as relocating,
// which keeps its range and data alive until the move is committed or abandoned. It fails if the
// source has been freed or the destination is no longer exactly free.
func (d *Defragger[D]) reserve(operation defrag.Operation) (target, source *Location[D], ok bool) {
	d.allocator.mutex.Lock()
	defer d.allocator.mutex.Unlock()

	source, ok = d.allocator.locations.Get(operation.SourceID)
	if !ok {
		return nil, nil, false
	}

	c, ok := d.allocator.chunksByID.Get(operation.TargetChunkID)
	if !ok || c.freeList.Find(operation.Target) < 0 {
		return nil, nil, false
	}

	target = d.allocator.reserveSpace(c.memory, operation.Target, source.size)
	source.relocating = true
	return target, source, true
}

func (d *Defragger[D]) Execute(operation defrag.Operation) bool {
	target, source, ok := d.reserve(operation)
	if !ok {
		return false
	}

	copied := false
	err := d.mover.Prepare(target, source)
	if err == nil {
		copied, err = d.mover.Copy(target, source)
	}

	if err != nil || !copied {
		d.logger.LogAttrs(context.Background(), slog.LevelWarn, "Relocation abandoned: data could not be copied",
			slog.Uint64("source.id", operation.SourceID),
			slog.Uint64("target.chunk", operation.TargetChunkID),
			slog.Int("target.offset", operation.Target.Offset),
			slog.Any("error", err),
		)

		freeErr := d.allocator.abandonMove(target, source)
		if freeErr != nil {
			d.logger.LogAttrs(context.Background(), slog.LevelError, "Failed to free abandoned relocation target",
				slog.Uint64("target.id", target.ID()),
				slog.Any("error", freeErr),
			)
		}
		return false
	}

	moved, err := d.allocator.commitMove(target, source)
	if err != nil {
		d.logger.LogAttrs(context.Background(), slog.LevelError, "Failed to release resources after relocation",
			slog.Uint64("source.id", operation.SourceID),
			slog.Any("error", err),
		)
	}

	if !moved {
		d.logger.LogAttrs(context.Background(), slog.LevelDebug, "Relocation abandoned: source was freed during the copy",
			slog.Uint64("source.id", operation.SourceID),
		)
	}

	return moved
}
