package scxmlgo

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/comalice/scxmlgo/history"
	"github.com/comalice/scxmlgo/ioprocessor"
)

// tracer emits spans around macrostep/microstep/send dispatch
// (SPEC_FULL.md §2.2 DOMAIN STACK). A no-op TracerProvider is installed by
// default by otel itself, so interpreters built without an OpenTelemetry
// SDK wired in incur no cost beyond the span-creation call.
var tracer = otel.Tracer("github.com/comalice/scxmlgo")

// DelayScheduler schedules a delayed <send> fire and returns a cancel
// function (SPEC_FULL.md §5.1). The default implementation lives in the
// realtime subpackage; Interpreter works without one (sends with delay > 0
// simply dispatch inline) so tests that don't care about timing never pay
// for a real timer.
type DelayScheduler interface {
	Schedule(d time.Duration, fire func()) (cancel func())
}

// Interpreter is the runtime core: macrostep/microstep loop, transition
// selection, executable-content dispatch, and the collaborators threaded
// through them (spec.md §4.1, §2).
//
// Interpreter is single-owner mutable during a run (spec.md §5): exported
// methods other than AddEvent/SendEventByName/GetHistory are not safe to
// call concurrently with Execute. mu only guards the bookkeeping a delayed
// send's timer goroutine touches (pendingSends, the event queues) so a
// fired send can safely re-enter via AddEvent from another goroutine.
type Interpreter struct {
	mu sync.Mutex

	index     *Index
	state     *InternalState
	evaluator ExpressionEvaluator
	logger    *slog.Logger

	active []string

	internalQueue *eventQueue
	externalQueue *eventQueue

	ledger     *history.Ledger
	ioRegistry *ioprocessor.Registry
	scheduler  DelayScheduler

	pendingSends map[string]func()

	macroStepCount int
	microStepCount int

	running    bool
	terminated bool

	ctxBase context.Context
}

// Option configures an Interpreter at construction (functional-options
// pattern, per SPEC_FULL.md §9 "make injectable at interpreter
// construction; retain a module-level default only for convenience").
type Option func(*Interpreter)

// WithEvaluator overrides the default no-op ExpressionEvaluator.
func WithEvaluator(e ExpressionEvaluator) Option {
	return func(it *Interpreter) { it.evaluator = e }
}

// WithLogger overrides the default logger (a slog text handler writing to
// stderr).
func WithLogger(l *slog.Logger) Option {
	return func(it *Interpreter) { it.logger = l }
}

// WithIOProcessors installs the Event I/O Processor Registry used by <send>.
func WithIOProcessors(r *ioprocessor.Registry) Option {
	return func(it *Interpreter) { it.ioRegistry = r }
}

// WithScheduler installs the delayed-send scheduler.
func WithScheduler(s DelayScheduler) Option {
	return func(it *Interpreter) { it.scheduler = s }
}

// WithHistoryMaxEntries sets the ledger's FIFO pruning bound (<=0: unbounded).
func WithHistoryMaxEntries(n int) Option {
	return func(it *Interpreter) { it.ledger = history.New(n) }
}

// WithContext sets the base context used for Send dispatch and scheduled
// callbacks; defaults to context.Background().
func WithContext(ctx context.Context) Option {
	return func(it *Interpreter) { it.ctxBase = ctx }
}

// Load parses no XML itself (out of scope, spec.md §1): it takes an
// already-built node tree, builds its path index, and returns a ready
// Interpreter (spec.md §6 "load(document) -> Interpreter").
func Load(root *Node, opts ...Option) (*Interpreter, error) {
	idx, err := BuildIndex(root)
	if err != nil {
		return nil, err
	}
	it := &Interpreter{
		index:         idx,
		evaluator:     noopEvaluator{},
		logger:        slog.New(slog.NewTextHandler(os.Stderr, nil)),
		internalQueue: &eventQueue{},
		externalQueue: &eventQueue{},
		ledger:        history.New(0),
		pendingSends:  make(map[string]func()),
		ctxBase:       context.Background(),
	}
	for _, opt := range opts {
		opt(it)
	}
	return it, nil
}

func (it *Interpreter) ctx() context.Context {
	if it.ctxBase == nil {
		return context.Background()
	}
	return it.ctxBase
}

// ExecuteOptions configures a run (spec.md §6 "execute(initialState,
// options)").
type ExecuteOptions struct {
	Abort   <-chan struct{}
	Timeout <-chan struct{}
}

// Snapshot is the state returned by Execute once the macrostep loop
// stabilizes (spec.md §4.1 step 4).
type Snapshot struct {
	Active         []string
	Data           map[string]any
	MacroStepCount int
	MicroStepCount int
	Terminated     bool
}

// Execute runs spec.md §4.1: registers abort/timeout handlers, initializes
// the data model, enters the initial configuration, and runs the macrostep
// loop to stability.
func (it *Interpreter) Execute(opts ExecuteOptions) Snapshot {
	it.mu.Lock()
	it.running = true
	it.mu.Unlock()
	defer func() {
		it.mu.Lock()
		it.running = false
		it.mu.Unlock()
	}()

	it.state = NewInternalState("", it.index.Root().Datamodel)

	if opts.Abort != nil {
		go func() {
			<-opts.Abort
			it.AddEvent(NewEvent("abort", EventExternal, nil))
		}()
	}
	if opts.Timeout != nil {
		go func() {
			<-opts.Timeout
			it.AddEvent(NewEvent("abort.timeout", EventExternal, nil))
		}()
	}

	it.initDataModel()
	it.enterInitialConfiguration()
	it.macrostep()

	return it.snapshot()
}

// initDataModel implements spec.md §4.1 step 2: walk root children, run
// each <datamodel>'s <data> children in document order, writing resolved
// values at data.<id>.
func (it *Interpreter) initDataModel() {
	for _, c := range it.index.Root().Children {
		if c.Kind != KindDataModel {
			continue
		}
		for _, d := range c.Children {
			if d.Kind != KindData {
				continue
			}
			v, err := it.dataFromTyped(d)
			if err != nil {
				it.raiseNodeError(d, errorEventName(err), "datamodel: data resolution failed", err)
				continue
			}
			_ = it.state.Set(d.ID, v)
		}
	}
}

// enterInitialConfiguration implements spec.md §4.1 step 3.
func (it *Interpreter) enterInitialConfiguration() {
	root := it.index.Root()
	first := it.resolveInitialChild(root)
	if first == nil {
		return
	}
	chain := ancestorPaths(first.Path())
	already := map[string]bool{}
	var entry []string
	for _, p := range chain {
		if !already[p] {
			entry = append(entry, p)
			already[p] = true
		}
	}
	if n, ok := it.index.Lookup(first.Path()); ok {
		for _, d := range it.initialDescendants(n) {
			if !already[d.Path()] {
				entry = append(entry, d.Path())
				already[d.Path()] = true
			}
		}
	}
	it.recordHistory(history.KindInitialState, nil, "")
	for _, p := range entry {
		_ = it.mount(p)
	}
}

// macrostep implements spec.md §4.1's macrostep(state) loop.
func (it *Interpreter) macrostep() {
	_, span := tracer.Start(it.ctx(), "scxmlgo.macrostep")
	defer span.End()

	start := time.Now()
	it.macroStepCount++
	it.ledger.StartContext(it.recordHistory(history.KindMacrostepStart, nil, "").ID)
	defer it.ledger.EndContext()

	it.drainPendingToInternalQueue()

	for {
		if it.terminated {
			break
		}
		// 1. Eventless transitions.
		enabled := it.selectTransitions("", true, it.enqueueCondError)
		enabled = it.resolveConflicts(enabled)
		if len(enabled) > 0 {
			it.microstep(enabled)
			it.drainPendingToInternalQueue()
			continue
		}

		// 2. Internal event.
		if it.internalQueue.len() > 0 {
			e, _ := it.internalQueue.pop()
			it.dispatchEvent(e)
			continue
		}

		// 3. External event.
		if it.externalQueue.len() > 0 {
			e, _ := it.externalQueue.pop()
			if isAbortEvent(e.Name) {
				it.terminated = true
				break
			}
			it.dispatchEvent(e)
			continue
		}

		// 4. Stable.
		break
	}

	dur := time.Since(start)
	it.recordHistory(history.KindMacrostepEnd, nil, "", dur)
}

func isAbortEvent(name string) bool {
	return name == "abort" || (len(name) >= 5 && name[:5] == "abort")
}

func (it *Interpreter) dispatchEvent(e Event) {
	it.state.Event = &e
	defer func() { it.state.Event = nil }()

	enabled := it.selectTransitions(e.Name, false, it.enqueueCondError)
	enabled = it.resolveConflicts(enabled)
	if len(enabled) > 0 {
		it.microstep(enabled)
		it.recordHistory(history.KindEventProcessed, nil, e.Name)
	} else {
		it.recordHistory(history.KindEventSkipped, nil, e.Name)
	}

	if len(e.Name) >= 6 && e.Name[:6] == "error." {
		_ = it.state.Set("error", map[string]any{"name": e.Name, "data": e.Data})
	}

	it.drainPendingToInternalQueue()
}

// drainPendingToInternalQueue merges _pendingInternalEvents into the
// internal queue at a microstep boundary (spec.md §5 ordering law (e)).
func (it *Interpreter) drainPendingToInternalQueue() {
	for _, e := range it.state.DrainPendingInternal() {
		it.internalQueue.push(e)
	}
}

func (it *Interpreter) enqueueCondError(n *Node, err error) {
	it.raiseNodeError(n, "error.execution", "cond evaluation failed", err)
}

// microstep implements spec.md §4.3 given an already-conflict-resolved
// enabled transition set.
func (it *Interpreter) microstep(enabled []enabledTransition) {
	_, span := tracer.Start(it.ctx(), "scxmlgo.microstep",
		trace.WithAttributes(attribute.Int("scxmlgo.enabled_transitions", len(enabled))))
	defer span.End()

	start := time.Now()
	it.microStepCount++
	it.recordHistory(history.KindMicrostepStart, nil, "")

	// 1-2. Exit set, deepest-first.
	exitSet := map[string]bool{}
	for _, et := range enabled {
		for _, p := range it.exitSetFor(et) {
			exitSet[p] = true
		}
	}
	exitOrdered := orderByDepth(it.activePathsOrdered(), exitSet, true)
	for _, p := range exitOrdered {
		_ = it.unmount(p)
	}

	// 3. Transition content, document order.
	for _, et := range enabled {
		it.runExecutableChildren(et.trans)
		it.recordHistory(history.KindTransition, nil, et.trans.Event)
	}

	// 4. Entry set, shallowest-first.
	alreadyActive := map[string]bool{}
	for _, p := range it.active {
		alreadyActive[p] = true
	}
	var entrySet []string
	seen := map[string]bool{}
	for _, et := range enabled {
		for _, p := range it.entrySetFor(et, alreadyActive) {
			if !seen[p] {
				entrySet = append(entrySet, p)
				seen[p] = true
			}
		}
	}
	entryOrdered := orderByDepth(entrySet, nil, false)

	// 5. Mount, shallowest-first.
	for _, p := range entryOrdered {
		_ = it.mount(p)
	}

	// 6.
	dur := time.Since(start)
	it.recordHistory(history.KindMicrostepEnd, nil, "", dur)
}

// orderByDepth sorts paths by dot-depth. If filter is non-nil, only paths
// present in filter are kept. deepestFirst controls sort direction.
func orderByDepth(paths []string, filter map[string]bool, deepestFirst bool) []string {
	var out []string
	for _, p := range paths {
		if filter != nil && !filter[p] {
			continue
		}
		out = append(out, p)
	}
	depth := func(p string) int {
		d := 1
		for _, r := range p {
			if r == '.' {
				d++
			}
		}
		return d
	}
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 {
			less := depth(out[j]) > depth(out[j-1])
			if !deepestFirst {
				less = depth(out[j]) < depth(out[j-1])
			}
			if !less {
				break
			}
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
	return out
}

// AddEvent implements spec.md §6 "addEvent(event): enqueue external event;
// auto-resumes if idle."
func (it *Interpreter) AddEvent(e Event) {
	it.mu.Lock()
	it.externalQueue.push(e)
	idle := !it.running && !it.terminated
	it.mu.Unlock()

	if idle {
		it.mu.Lock()
		it.running = true
		it.mu.Unlock()
		it.macrostep()
		it.mu.Lock()
		it.running = false
		it.mu.Unlock()
	}
}

// SendEventByName implements spec.md §6's convenience wrapper.
func (it *Interpreter) SendEventByName(name string, data map[string]any) {
	it.AddEvent(NewEvent(name, EventExternal, data))
}

// GetHistory implements spec.md §6 "getHistory(): access to ledger."
func (it *Interpreter) GetHistory() *history.Ledger { return it.ledger }

func (it *Interpreter) recordHistory(kind history.Kind, extra map[string]any, eventName string, duration ...time.Duration) history.Entry {
	e := history.Entry{
		Kind:               kind,
		StateConfiguration: append([]string(nil), it.active...),
		EventName:          eventName,
		Metadata:           extra,
	}
	if it.state != nil {
		e.Snapshot = it.state.Snapshot()
	}
	if len(duration) > 0 {
		d := duration[0]
		e.Duration = &d
	}
	return it.ledger.AddEntry(e)
}

func (it *Interpreter) snapshot() Snapshot {
	s := Snapshot{
		Active:         it.activePathsOrdered(),
		MacroStepCount: it.macroStepCount,
		MicroStepCount: it.microStepCount,
		Terminated:     it.terminated,
	}
	if it.state != nil {
		s.Data = it.state.Snapshot()
	}
	return s
}

// raiseErrorEvent converts a Go error into a pending internal error event
// named per errorEventName (spec.md §7 policy: never propagate raw
// failures out of run).
func (it *Interpreter) raiseErrorEvent(err error) {
	it.logger.Warn("scxmlgo: runtime error converted to event", "error", err)
	it.state.PushPendingInternal(NewEvent(errorEventName(err), EventInternal, map[string]any{"message": err.Error()}))
}

// raiseNodeError decorates err with the offending node and enqueues
// eventName as a pending internal event (spec.md §7 policy).
func (it *Interpreter) raiseNodeError(n *Node, eventName, message string, cause error) {
	it.logger.Warn("scxmlgo: node execution error", "node", describeNode(n), "message", message, "error", cause)
	it.state.PushPendingInternal(NewEvent(eventName, EventInternal, map[string]any{
		"node":    describeNode(n),
		"message": message,
	}))
}

func (it *Interpreter) cancelPendingSend(sendID string) {
	it.mu.Lock()
	cancel, ok := it.pendingSends[sendID]
	if ok {
		delete(it.pendingSends, sendID)
	}
	it.mu.Unlock()
	if ok && cancel != nil {
		cancel()
	}
}

func toOutgoing(e Event) ioprocessor.OutgoingEvent {
	return ioprocessor.OutgoingEvent{
		Name:       e.Name,
		Type:       string(e.Type),
		Data:       e.Data,
		SendID:     e.SendID,
		Origin:     e.Origin,
		OriginType: e.OriginType,
		InvokeID:   e.InvokeID,
	}
}
