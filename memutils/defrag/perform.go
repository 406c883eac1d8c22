package defrag

//go:generate mockgen -source perform.go -destination ./mocks/perform.go -package mock_defrag

import (
	"context"

	"golang.org/x/exp/slog"
)

// Handler carries out the operations chosen by PerformOperations
type Handler interface {
	// CheckTarget reports whether an operation's destination is still usable
	CheckTarget(operation Operation) TargetStatus
	// Execute relocates the allocation and reports whether the move was committed
	Execute(operation Operation) bool
}

// Limits caps the work PerformOperations does in a single cycle. A zero value means no limit.
type Limits struct {
	// MaxBytesPerCycle is the maximum number of bytes to relocate in each cycle. An operation that
	// would exceed the budget is discarded and the cycle continues with lighter ones.
	MaxBytesPerCycle int `json:"maxBytesPerCycle"`
	// MaxMovesPerCycle is the maximum number of relocations to perform in each cycle
	MaxMovesPerCycle int `json:"maxMovesPerCycle"`
}

func (l Limits) exceedsBytes(stats *Stats, size int) bool {
	return l.MaxBytesPerCycle > 0 && stats.BytesMoved+size > l.MaxBytesPerCycle
}

func (l Limits) reachedMoves(stats *Stats) bool {
	return l.MaxMovesPerCycle > 0 && stats.AllocationsMoved >= l.MaxMovesPerCycle
}

// PerformOperations pops operations from ops lightest first and executes the ones whose
// destination is still exactly free. Every examined operation is removed from the set whether
// or not it was executed. interrupted is checked before each operation. The returned Stats
// describe this call only; a cycle performed something if AllocationsMoved is greater than 0.
func PerformOperations(logger *slog.Logger, ops *OperationSet, handler Handler, limits Limits, interrupted func() bool) Stats {
	var stats Stats

	for ops.Len() > 0 {
		if interrupted != nil && interrupted() {
			break
		}

		if limits.reachedMoves(&stats) {
			break
		}

		operation, _ := ops.PopFront()

		if limits.exceedsBytes(&stats, operation.SourceSize) {
			stats.OperationsDiscarded++
			continue
		}

		status := handler.CheckTarget(operation)
		if status != TargetFree {
			stats.OperationsDiscarded++

			if status == TargetCovered {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "Discarded relocation whose destination is still available",
					slog.Uint64("source.id", operation.SourceID),
					slog.Uint64("target.chunk", operation.TargetChunkID),
					slog.Int("target.offset", operation.Target.Offset),
					slog.Int("target.size", operation.Target.Size),
				)
			}
			continue
		}

		if !handler.Execute(operation) {
			stats.OperationsDiscarded++
			continue
		}

		stats.AllocationsMoved++
		stats.BytesMoved += operation.SourceSize
	}

	return stats
}
