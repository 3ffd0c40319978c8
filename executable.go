package scxmlgo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// runNode dispatches a single executable Node, threading the shared
// InternalState (spec.md §4.4: "Each executable node's contract is
// run(state) -> state"). Failures never propagate: every branch converts
// an error into a pending internal error event via raiseNodeError or
// raiseErrorEvent.
func (it *Interpreter) runNode(n *Node) {
	switch n.Kind {
	case KindAssign:
		it.runAssign(n)
	case KindRaise:
		it.runRaise(n)
	case KindLog:
		it.runLog(n)
	case KindIf:
		it.runIf(n)
	case KindSend:
		it.runSend(n)
	case KindForeach:
		it.runForeach(n)
	case KindCancel:
		it.runCancel(n)
	case KindScript:
		it.runScript(n)
	}
}

// runChildrenOf runs the Executable direct children of n, skipping If's own
// ElseIf/Else branch markers (those are only ever run by runIf itself).
func (it *Interpreter) runChildrenOf(n *Node) {
	for _, c := range n.Children {
		if c.Kind == KindElseIf || c.Kind == KindElse {
			continue
		}
		if c.Executable {
			it.runNode(c)
		}
	}
}

// runAssign implements spec.md §4.4 Assign.
func (it *Interpreter) runAssign(n *Node) {
	if n.Location == "" {
		it.raiseNodeError(n, "error.assign.parsing_error", "assign: location is required", nil)
		return
	}
	if n.Clear != nil {
		switch *n.Clear {
		case ClearDelete:
			if err := it.state.Delete(n.Location); err != nil {
				it.raiseNodeError(n, "error.execution", "assign: clear delete failed", err)
			}
		case ClearSetNull:
			_ = it.state.Set(n.Location, nil)
		case ClearSetUndef:
			_ = it.state.Set(n.Location, Undefined)
		}
		return
	}

	var value any
	var err error
	if n.Expr != "" {
		value, err = it.evaluator.Eval(n.Expr, it.state.scope())
		if err != nil {
			it.raiseNodeError(n, "error.execution", "assign: expr evaluation failed", err)
			return
		}
	} else {
		value = n.Content
	}
	if err := it.state.Set(n.Location, value); err != nil {
		it.raiseNodeError(n, "error.execution", "assign: set failed", err)
	}
}

// runRaise implements spec.md §4.4 Raise.
func (it *Interpreter) runRaise(n *Node) {
	name := n.Content
	if n.EventExpr != "" {
		v, err := it.evaluator.Eval(n.EventExpr, it.state.scope())
		if err != nil {
			it.raiseNodeError(n, "error.raise.bad-attribute", "raise: eventexpr evaluation failed", err)
			return
		}
		name = fmt.Sprint(v)
	}
	if name == "" {
		it.raiseNodeError(n, "error.raise.bad-attribute", "raise: no event name resolved", nil)
		return
	}
	it.state.PushPendingInternal(NewEvent(name, EventInternal, nil))
}

// runLog implements spec.md §4.4 Log: "[ISO-timestamp] [label] message".
func (it *Interpreter) runLog(n *Node) {
	msg := n.Content
	if n.Expr != "" {
		v, err := it.evaluator.Eval(n.Expr, it.state.scope())
		if err != nil {
			it.raiseNodeError(n, "error.execution", "log: expr evaluation failed", err)
			return
		}
		msg = fmt.Sprint(v)
	}
	label := n.Label
	line := fmt.Sprintf("[%s] [%s] %s", time.Now().UTC().Format(time.RFC3339Nano), label, msg)
	it.logger.Info(line)
}

// runIf implements spec.md §4.4 If/ElseIf/Else branch selection.
func (it *Interpreter) runIf(n *Node) {
	ok, err := it.evalCond(n)
	if err != nil {
		it.raiseErrorEvent(err)
	} else if ok {
		it.runChildrenOf(n)
		return
	}

	var elseBranch *Node
	for _, c := range n.Children {
		switch c.Kind {
		case KindElseIf:
			ok, err := it.evalCond(c)
			if err != nil {
				it.raiseErrorEvent(err)
				continue
			}
			if ok {
				it.runChildrenOf(c)
				return
			}
		case KindElse:
			elseBranch = c
		}
	}
	if elseBranch != nil {
		it.runChildrenOf(elseBranch)
	}
}

// runForeach implements the supplemental <foreach> (SPEC_FULL.md §4.8):
// iterate a data-model array, binding item/index for each executable child.
func (it *Interpreter) runForeach(n *Node) {
	if n.Array == "" || n.Item == "" {
		it.raiseNodeError(n, "error.execution", "foreach: array and item are required", nil)
		return
	}
	v, err := it.evaluator.Eval(n.Array, it.state.scope())
	if err != nil {
		it.raiseNodeError(n, "error.execution", "foreach: array evaluation failed", err)
		return
	}
	items, ok := v.([]any)
	if !ok {
		it.raiseNodeError(n, "error.execution", "foreach: array did not evaluate to a list", nil)
		return
	}
	for i, item := range items {
		_ = it.state.Set(n.Item, item)
		if n.Index != "" {
			_ = it.state.Set(n.Index, i)
		}
		it.runChildrenOf(n)
	}
}

// runCancel implements the supplemental <cancel> (SPEC_FULL.md §4.8):
// cancels a pending delayed <send> by sendid before its timer elapses.
func (it *Interpreter) runCancel(n *Node) {
	sendID := n.CancelSendID
	if n.CancelSendIDExpr != "" {
		v, err := it.evaluator.Eval(n.CancelSendIDExpr, it.state.scope())
		if err != nil {
			it.raiseNodeError(n, "error.execution", "cancel: sendidexpr evaluation failed", err)
			return
		}
		sendID = fmt.Sprint(v)
	}
	if sendID == "" {
		return
	}
	it.cancelPendingSend(sendID)
}

// runScript implements the supplemental <script> (SPEC_FULL.md §4.8):
// evaluates inline script content with a snapshot of the data model in
// scope. The result is discarded, and changes the script makes to that
// snapshot are not written back to the data model.
func (it *Interpreter) runScript(n *Node) {
	if n.Content == "" {
		return
	}
	if _, err := it.evaluator.Eval(n.Content, it.state.scope()); err != nil {
		it.raiseNodeError(n, "error.execution", "script: evaluation failed", err)
	}
}

// runSend implements spec.md §4.4 Send.
func (it *Interpreter) runSend(n *Node) {
	name := n.Content
	if n.EventExpr != "" {
		v, err := it.evaluator.Eval(n.EventExpr, it.state.scope())
		if err != nil {
			it.raiseNodeError(n, "error.communication", "send: eventexpr evaluation failed", err)
			return
		}
		name = fmt.Sprint(v)
	}

	target := n.TargetAttr
	if n.TargetExpr != "" {
		v, err := it.evaluator.Eval(n.TargetExpr, it.state.scope())
		if err == nil {
			target = fmt.Sprint(v)
		}
	}
	typ := n.Type
	if n.TypeExpr != "" {
		v, err := it.evaluator.Eval(n.TypeExpr, it.state.scope())
		if err == nil {
			typ = fmt.Sprint(v)
		}
	}

	sendID := n.SendID
	if sendID == "" {
		sendID = "send_" + strconv.FormatInt(time.Now().UnixNano(), 10) + "_" + NewID()
	}
	if n.IDLocation != "" {
		_ = it.state.Set(n.IDLocation, sendID)
	}

	data := it.collectSendData(n)

	delay, err := parseDelay(n.Delay, n.DelayExpr, it)
	if err != nil {
		it.raiseNodeError(n, "error.communication", "send: invalid delay", err)
		return
	}

	evt := NewEvent(name, EventExternal, data)
	evt.SendID = sendID

	dispatch := func() {
		it.dispatchSend(n, evt, typ, target)
	}
	if delay <= 0 {
		dispatch()
		return
	}
	if it.scheduler == nil {
		dispatch()
		return
	}
	cancel := it.scheduler.Schedule(delay, func() {
		it.mu.Lock()
		delete(it.pendingSends, sendID)
		it.mu.Unlock()
		dispatch()
		it.AddEvent(evt)
	})
	it.mu.Lock()
	it.pendingSends[sendID] = cancel
	it.mu.Unlock()
}

// dispatchSend performs the actual I/O Processor Registry dispatch for a
// resolved send (spec.md §4.5). Delayed sends invoke this from the
// scheduler callback and then re-enqueue evt as an external event
// themselves (see runSend); inline sends only dispatch here.
func (it *Interpreter) dispatchSend(n *Node, evt Event, typ, target string) {
	if it.ioRegistry == nil {
		return
	}
	ctx, span := tracer.Start(it.ctx(), "scxmlgo.send",
		trace.WithAttributes(
			attribute.String("scxmlgo.send.event", evt.Name),
			attribute.String("scxmlgo.send.target", target),
		))
	defer span.End()

	out := toOutgoing(evt)
	res := it.ioRegistry.Dispatch(ctx, typ, target, out, nil)
	if !res.Success {
		span.RecordError(res.Error)
		it.raiseNodeError(n, "error.communication", "send: dispatch failed", res.Error)
	}
}

func (it *Interpreter) collectSendData(n *Node) map[string]any {
	data := map[string]any{}
	for _, c := range n.Children {
		if c.Kind != KindParam {
			continue
		}
		name, value, err := it.evalParam(c)
		if err != nil {
			it.raiseNodeError(c, "error.execution", "send: param evaluation failed", err)
			continue
		}
		data[name] = value
	}
	if n.Namelist != "" {
		for _, name := range strings.Fields(n.Namelist) {
			v, ok := it.state.Get(name)
			if !ok {
				it.logger.Warn("send: namelist entry not found", "name", name)
				continue
			}
			data[name] = v
		}
	}
	return data
}

// evalParam implements spec.md §4.4 Param: passive, evaluated on demand.
func (it *Interpreter) evalParam(n *Node) (string, any, error) {
	if n.Name == "" {
		return "", nil, fmt.Errorf("scxmlgo: param requires a name")
	}
	if n.Expr != "" {
		v, err := it.evaluator.Eval(n.Expr, it.state.scope())
		return n.Name, v, err
	}
	if n.Location != "" {
		v, _ := it.state.Get(n.Location)
		return n.Name, v, nil
	}
	return n.Name, n.Content, nil
}

// parseDelay parses spec.md §4.4's `<num>(s|ms)` delay grammar.
func parseDelay(delay, delayExpr string, it *Interpreter) (time.Duration, error) {
	raw := delay
	if delayExpr != "" {
		v, err := it.evaluator.Eval(delayExpr, it.state.scope())
		if err != nil {
			return 0, err
		}
		raw = fmt.Sprint(v)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	switch {
	case strings.HasSuffix(raw, "ms"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(raw, "ms"), 64)
		if err != nil {
			return 0, fmt.Errorf("scxmlgo: bad delay %q: %w", raw, err)
		}
		return time.Duration(n * float64(time.Millisecond)), nil
	case strings.HasSuffix(raw, "s"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(raw, "s"), 64)
		if err != nil {
			return 0, fmt.Errorf("scxmlgo: bad delay %q: %w", raw, err)
		}
		return time.Duration(n * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("scxmlgo: delay %q missing s/ms unit", raw)
	}
}

// dataFromTyped implements spec.md §4.1 step 2's <data> resolution:
// expr evaluates; otherwise content is parsed per type.
func (it *Interpreter) dataFromTyped(n *Node) (any, error) {
	if n.Expr != "" {
		return it.evaluator.Eval(n.Expr, it.state.scope())
	}
	if n.Src != "" {
		return nil, &ExecutionError{Node: describeNode(n), Message: "error.data.src-not-implemented"}
	}
	switch n.DataType {
	case "json":
		var v any
		if err := json.Unmarshal([]byte(n.Content), &v); err != nil {
			return n.Content, nil
		}
		return v, nil
	default:
		return n.Content, nil
	}
}
