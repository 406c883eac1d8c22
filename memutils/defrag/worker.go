package defrag

//go:generate mockgen -source worker.go -destination ./mocks/worker.go -package mock_defrag

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

// Cycle is the allocator-specific half of a Worker: it finds relocations in one allocator and
// carries them out
type Cycle interface {
	// FindOperations scans the allocator and adds proposed relocations to ops, returning the number added
	FindOperations(ops *OperationSet, interrupted func() bool) int
	// PerformOperations executes relocations from ops
	PerformOperations(ops *OperationSet, interrupted func() bool) Stats
}

// Message is a control message processed by a Worker
type Message struct {
	Kind MessageKind
	// ID is the chunk ID for MessageInvalidateMemory and the allocation ID for MessageInvalidateLocation
	ID uint64

	ack chan struct{}
}

// Worker runs defragmentation cycles for one allocator. It is driven entirely by control
// messages: Start moves an idle, enabled worker to StateScanning, where it runs cycles until one
// moves nothing; Stop returns it to StateIdle; Shutdown ends it. Messages sent while a cycle is
// running are handled between relocations, never during one.
//
// Launch runs the worker on its own goroutine. Tests can instead call Step, which handles pending
// messages and runs at most one cycle on the calling goroutine.
type Worker struct {
	logger *slog.Logger
	cycle  Cycle

	inboxLock sync.Mutex
	inbox     []Message
	wake      chan struct{}

	enabled  atomic.Bool
	launched atomic.Bool
	done     chan struct{}

	currentState atomic.Uint32
	statsLock    sync.Mutex
	stats        Stats

	// Owned by whichever goroutine is running Step
	state             State
	operations        OperationSet
	invalidatedMemory *swiss.Map[uint64, struct{}]
}

// NewWorker creates an idle, disabled Worker for the provided Cycle
func NewWorker(logger *slog.Logger, cycle Cycle) *Worker {
	return &Worker{
		logger:            logger,
		cycle:             cycle,
		wake:              make(chan struct{}, 1),
		done:              make(chan struct{}),
		invalidatedMemory: swiss.NewMap[uint64, struct{}](8),
	}
}

// Launch starts the worker goroutine. Calling it more than once has no effect.
func (w *Worker) Launch() {
	if !w.launched.CompareAndSwap(false, true) {
		return
	}

	go w.run()
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		if !w.Step() {
			if w.state == StateShutdown {
				return
			}

			<-w.wake
		}
	}
}

func (w *Worker) send(message Message) {
	w.inboxLock.Lock()
	w.inbox = append(w.inbox, message)
	w.inboxLock.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// SetEnabled controls whether Start messages are honored. Disabling the worker does not stop a
// scan in progress.
func (w *Worker) SetEnabled(enabled bool) {
	w.enabled.Store(enabled)
}

// Enabled returns whether Start messages are honored
func (w *Worker) Enabled() bool {
	return w.enabled.Load()
}

// Start asks the worker to begin scanning. It is ignored if the worker is disabled or already scanning.
func (w *Worker) Start() {
	w.send(Message{Kind: MessageStart})
}

// Stop asks the worker to go idle and, if the worker goroutine is running, blocks until the worker
// has observed the request. A relocation that is in flight completes first.
func (w *Worker) Stop() {
	if !w.launched.Load() {
		w.send(Message{Kind: MessageStop})
		return
	}

	ack := make(chan struct{})
	w.send(Message{Kind: MessageStop, ack: ack})

	select {
	case <-ack:
	case <-w.done:
	}
}

// InvalidateMemory voids pending relocations into the chunk chunkID, along with any the current
// cycle proposes into it later. It takes effect the next time the worker handles messages.
func (w *Worker) InvalidateMemory(chunkID uint64) {
	w.send(Message{Kind: MessageInvalidateMemory, ID: chunkID})
}

// InvalidateLocation voids pending relocations of the allocation allocationID. It takes effect the
// next time the worker handles messages.
func (w *Worker) InvalidateLocation(allocationID uint64) {
	w.send(Message{Kind: MessageInvalidateLocation, ID: allocationID})
}

// Close shuts the worker down and waits for its goroutine to exit. It is safe to call on a worker
// that was never launched.
func (w *Worker) Close() {
	w.send(Message{Kind: MessageShutdown})

	if !w.launched.CompareAndSwap(false, true) {
		<-w.done
		return
	}

	w.handleMessages()
	close(w.done)
}

// State returns the worker's current phase
func (w *Worker) State() State {
	return State(w.currentState.Load())
}

// Stats returns totals across every cycle the worker has run
func (w *Worker) Stats() Stats {
	w.statsLock.Lock()
	defer w.statsLock.Unlock()

	return w.stats
}

func (w *Worker) setState(state State) {
	w.state = state
	w.currentState.Store(uint32(state))
}

// Step handles every pending control message and then, if the worker is scanning, runs one cycle.
// It returns false if there was nothing to do. Step must not be called while the worker goroutine
// is running.
func (w *Worker) Step() bool {
	if w.state == StateShutdown {
		return false
	}

	handled := w.handleMessages()
	if w.state != StateScanning {
		return handled
	}

	w.runCycle()
	return true
}

func (w *Worker) handleMessages() bool {
	w.inboxLock.Lock()
	messages := w.inbox
	w.inbox = nil
	w.inboxLock.Unlock()

	for _, message := range messages {
		w.handle(message)
	}

	return len(messages) > 0
}

func (w *Worker) handle(message Message) {
	switch message.Kind {
	case MessageStart:
		if w.state == StateIdle && w.enabled.Load() {
			w.setState(StateScanning)
			w.logger.Debug("Defragmentation started")
		}
	case MessageStop:
		if w.state == StateScanning {
			w.setState(StateIdle)
			w.operations.Clear()
			w.logger.Debug("Defragmentation stopped")
		}
	case MessageInvalidateMemory:
		w.invalidatedMemory.Put(message.ID, struct{}{})
	case MessageInvalidateLocation:
		removed := w.operations.RemoveSource(message.ID)
		if removed > 0 {
			w.logger.LogAttrs(context.Background(), slog.LevelDebug, "Dropped relocations of invalidated allocation",
				slog.Uint64("source.id", message.ID),
				slog.Int("operations", removed),
			)
		}
	case MessageShutdown:
		w.setState(StateShutdown)
		w.operations.Clear()
	}

	if message.ack != nil {
		close(message.ack)
	}
}

func (w *Worker) interrupted() bool {
	w.handleMessages()
	w.applyInvalidations()
	return w.state != StateScanning
}

// applyInvalidations drops pending relocations into any chunk invalidated during the current
// cycle, including ones the scan proposed after the invalidation arrived
func (w *Worker) applyInvalidations() {
	if w.invalidatedMemory.Count() == 0 || w.operations.Len() == 0 {
		return
	}

	removed := w.operations.RemoveTargets(w.invalidatedMemory.Has)

	if removed > 0 {
		w.logger.LogAttrs(context.Background(), slog.LevelDebug, "Dropped relocations into invalidated memory",
			slog.Int("operations", removed),
		)
	}
}

func (w *Worker) runCycle() {
	w.invalidatedMemory.Clear()

	if leftover := w.operations.Len(); leftover > 0 {
		w.logger.LogAttrs(context.Background(), slog.LevelDebug, "Dropped relocations left over from the previous cycle",
			slog.Int("operations", leftover),
		)
		w.operations.Clear()
	}

	found := w.cycle.FindOperations(&w.operations, w.interrupted)

	var stats Stats
	if w.state == StateScanning {
		stats = w.cycle.PerformOperations(&w.operations, w.interrupted)
	}
	stats.Cycles = 1
	stats.OperationsFound = found

	w.statsLock.Lock()
	w.stats.Add(stats)
	w.statsLock.Unlock()

	w.logger.LogAttrs(context.Background(), slog.LevelDebug, "Defragmentation cycle complete",
		slog.Int("operations.found", found),
		slog.Int("allocations.moved", stats.AllocationsMoved),
		slog.Int("bytes.moved", stats.BytesMoved),
	)

	if w.state == StateScanning && stats.AllocationsMoved == 0 {
		w.setState(StateIdle)
		w.operations.Clear()
		w.logger.Debug("Defragmentation finished: no further relocations")
	}
}
