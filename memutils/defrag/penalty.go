package defrag

import "github.com/vkngwrapper/chunkmem/memutils/metadata"

// Penalties weight the relocations proposed by a Scanner. An operation's weight is the sum of
// the penalties that apply to it and operations are performed lightest first.
type Penalties struct {
	// TargetSmallHole is applied when the move would leave a remainder in the destination range
	// that is smaller than the allocation being moved. It is scaled by how much of the destination
	// range would remain.
	TargetSmallHole float32 `json:"targetSmallHole"`
	// SourceCreateHole is applied when the allocation being moved sits flush against allocations
	// on both sides, so moving it opens an isolated hole
	SourceCreateHole float32 `json:"sourceCreateHole"`
	// SourceNotLastAlloc is applied when the allocation is not the last one in its chunk
	SourceNotLastAlloc float32 `json:"sourceNotLastAlloc"`
	// SourceNotLastChunk is applied when the allocation is not in the last chunk
	SourceNotLastChunk float32 `json:"sourceNotLastChunk"`
	// SameChunk is applied when the destination is in the allocation's own chunk
	SameChunk float32 `json:"sameChunk"`
}

// DefaultPenalties returns the penalty weights used when none are configured
func DefaultPenalties() Penalties {
	return Penalties{
		TargetSmallHole:    100,
		SourceCreateHole:   200,
		SourceNotLastAlloc: 100,
		SourceNotLastChunk: 400,
		SameChunk:          500,
	}
}

// MoveCandidate describes a possible relocation in the terms the penalty model cares about
type MoveCandidate struct {
	Size   int
	Target metadata.FreeListEntry

	SameChunk            bool
	SourceFlanked        bool
	SourceLastAllocation bool
	SourceLastChunk      bool
}

// Weight scores a relocation. Lower is better.
func (p Penalties) Weight(candidate MoveCandidate) float32 {
	var weight float32

	if candidate.SameChunk {
		weight += p.SameChunk
	}

	remainder := candidate.Target.Size - candidate.Size
	if remainder != 0 && remainder < candidate.Size {
		weight += p.TargetSmallHole * (1 - float32(candidate.Size)/float32(candidate.Target.Size))
	}

	if candidate.SourceFlanked {
		weight += p.SourceCreateHole
	}

	if !candidate.SourceLastAllocation {
		weight += p.SourceNotLastAlloc
	}

	if !candidate.SourceLastChunk {
		weight += p.SourceNotLastChunk
	}

	return weight
}
