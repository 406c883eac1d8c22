package defrag

// State is the phase a Worker is in
type State uint32

const (
	// StateIdle indicates that the worker is waiting for a Start message
	StateIdle State = iota
	// StateScanning indicates that the worker is repeatedly scanning for and performing
	// relocations until a full cycle moves nothing
	StateScanning
	// StateShutdown indicates that the worker has stopped for good
	StateShutdown
)

var stateMapping = map[State]string{
	StateIdle:     "StateIdle",
	StateScanning: "StateScanning",
	StateShutdown: "StateShutdown",
}

func (s State) String() string {
	return stateMapping[s]
}

// MessageKind identifies a control message sent to a Worker
type MessageKind uint32

const (
	MessageStart MessageKind = iota
	MessageStop
	MessageInvalidateMemory
	MessageInvalidateLocation
	MessageShutdown
)

var messageKindMapping = map[MessageKind]string{
	MessageStart:              "MessageStart",
	MessageStop:               "MessageStop",
	MessageInvalidateMemory:   "MessageInvalidateMemory",
	MessageInvalidateLocation: "MessageInvalidateLocation",
	MessageShutdown:           "MessageShutdown",
}

func (k MessageKind) String() string {
	return messageKindMapping[k]
}

// TargetStatus is a Handler's verdict on whether an Operation's destination can still be used
type TargetStatus uint32

const (
	// TargetFree indicates that the exact destination range is still listed as free
	TargetFree TargetStatus = iota
	// TargetCovered indicates that the destination range is no longer an exact free range, but
	// lies entirely inside one
	TargetCovered
	// TargetGone indicates that some or all of the destination range has been allocated, or its
	// chunk no longer exists
	TargetGone
)

var targetStatusMapping = map[TargetStatus]string{
	TargetFree:    "TargetFree",
	TargetCovered: "TargetCovered",
	TargetGone:    "TargetGone",
}

func (s TargetStatus) String() string {
	return targetStatusMapping[s]
}

// Stats contains basic metrics for defragmentation over time
type Stats struct {
	// Cycles is the number of scan-and-perform cycles that have run
	Cycles int
	// OperationsFound is the number of relocations proposed by scans
	OperationsFound int
	// OperationsDiscarded is the number of relocations examined but not executed
	OperationsDiscarded int
	// AllocationsMoved is the number of successful relocations
	AllocationsMoved int
	// BytesMoved is the number of bytes that have been successfully relocated
	BytesMoved int
}

func (s *Stats) Add(other Stats) {
	s.Cycles += other.Cycles
	s.OperationsFound += other.OperationsFound
	s.OperationsDiscarded += other.OperationsDiscarded
	s.AllocationsMoved += other.AllocationsMoved
	s.BytesMoved += other.BytesMoved
}
