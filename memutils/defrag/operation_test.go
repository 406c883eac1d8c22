package defrag_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/chunkmem/memutils/defrag"
	"github.com/vkngwrapper/chunkmem/memutils/metadata"
)

func sourceIDs(ops []defrag.Operation) []uint64 {
	ids := make([]uint64, 0, len(ops))
	for _, op := range ops {
		ids = append(ids, op.SourceID)
	}
	return ids
}

func TestOperationSetOrdering(t *testing.T) {
	var set defrag.OperationSet
	set.Insert(defrag.Operation{SourceID: 5, Weight: 100})
	set.Insert(defrag.Operation{SourceID: 3, Weight: 500})
	set.Insert(defrag.Operation{SourceID: 9, Weight: 0})
	set.Insert(defrag.Operation{SourceID: 2, Weight: 100})
	set.Insert(defrag.Operation{SourceID: 7, Weight: 100})

	require.Equal(t, 5, set.Len())
	require.Equal(t, []uint64{9, 2, 5, 7, 3}, sourceIDs(set.Operations()))

	front, ok := set.Front()
	require.True(t, ok)
	require.Equal(t, uint64(9), front.SourceID)

	popped, ok := set.PopFront()
	require.True(t, ok)
	require.Equal(t, uint64(9), popped.SourceID)
	require.Equal(t, 4, set.Len())
}

func TestOperationSetRemoval(t *testing.T) {
	var set defrag.OperationSet
	set.Insert(defrag.Operation{SourceID: 1, TargetChunkID: 10, Target: metadata.FreeListEntry{Offset: 0, Size: 100}})
	set.Insert(defrag.Operation{SourceID: 2, TargetChunkID: 11, Weight: 1})
	set.Insert(defrag.Operation{SourceID: 3, TargetChunkID: 10, Weight: 2})

	require.Equal(t, 1, set.RemoveSource(2))
	require.Equal(t, 0, set.RemoveSource(2))
	require.Equal(t, []uint64{1, 3}, sourceIDs(set.Operations()))

	require.Equal(t, 2, set.RemoveTargets(func(chunkID uint64) bool { return chunkID == 10 }))
	require.Equal(t, 0, set.Len())

	_, ok := set.PopFront()
	require.False(t, ok)

	set.Insert(defrag.Operation{SourceID: 4})
	set.Clear()
	require.Equal(t, 0, set.Len())
}
