package scxmlgo

import (
	"testing"

	"github.com/comalice/scxmlgo/expr"
)

// S1 Traffic light: green -> yellow -> red -> green, each a single
// event-driven transition on "next".
func TestTrafficLightCycle(t *testing.T) {
	b := NewBuilder("green", DatamodelECMAScript)
	b.State("green").On("next", "yellow", "")
	b.State("yellow").On("next", "red", "")
	b.State("red").On("next", "green", "")
	root, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	it, err := Load(root, WithEvaluator(expr.New()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := it.Execute(ExecuteOptions{})
	if got := snap.Active; len(got) != 1 || got[0] != "green" {
		t.Fatalf("initial active = %v, want [green]", got)
	}

	for _, want := range []string{"yellow", "red", "green"} {
		it.SendEventByName("next", nil)
		snap = it.snapshot()
		if len(snap.Active) != 1 || snap.Active[0] != want {
			t.Fatalf("active after next = %v, want [%s]", snap.Active, want)
		}
	}
}

// S2 Eventless cascade: A -> B -> C chained by eventless transitions with a
// vacuously-true guard; execute ends at C in a single macrostep.
func TestEventlessCascade(t *testing.T) {
	b := NewBuilder("a", DatamodelECMAScript)
	b.State("a").Eventless("b", "")
	b.State("b").Eventless("c", "")
	b.State("c")
	root, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	it, err := Load(root, WithEvaluator(expr.New()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := it.Execute(ExecuteOptions{})
	if len(snap.Active) != 1 || snap.Active[0] != "c" {
		t.Fatalf("active = %v, want [c]", snap.Active)
	}
}

// S3 Parallel regions: entering playing.systems enters all three regions'
// leaves simultaneously; a targeted event changes only one region.
func TestParallelRegions(t *testing.T) {
	b := NewBuilder("playing", DatamodelECMAScript)
	b.State("playing").Initial("systems")
	b.Parallel("playing.systems")
	b.State("playing.systems.health").Initial("healthy")
	b.State("playing.systems.health.healthy").On("damage", "playing.systems.health.injured", "")
	b.State("playing.systems.health.injured")
	b.State("playing.systems.score").Initial("scoring")
	b.State("playing.systems.score.scoring")
	b.State("playing.systems.power").Initial("none")
	b.State("playing.systems.power.none")
	root, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	it, err := Load(root, WithEvaluator(expr.New()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := it.Execute(ExecuteOptions{})
	if len(snap.Active) != 8 {
		t.Fatalf("active len = %d, want 8: %v", len(snap.Active), snap.Active)
	}

	it.SendEventByName("damage", nil)
	snap = it.snapshot()
	found := false
	for _, p := range snap.Active {
		if p == "playing.systems.health.injured" {
			found = true
		}
		if p == "playing.systems.health.healthy" {
			t.Fatalf("healthy should have exited")
		}
	}
	if !found {
		t.Fatalf("expected playing.systems.health.injured active, got %v", snap.Active)
	}
}

// S5 Raise + Done: entering a compound state whose initial child is a Final
// emits done.state.<parent> as an internal event, consumed by a
// sibling-level transition in the same macrostep.
func TestDoneStateTransition(t *testing.T) {
	b := NewBuilder("work", DatamodelECMAScript)
	b.State("work").Initial("task").On("done.state.task", "finished", "")
	b.State("work.task").Initial("running")
	b.State("work.task.running").Eventless("work.task.done", "")
	b.Final("work.task.done")
	b.State("finished")
	root, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	it, err := Load(root, WithEvaluator(expr.New()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := it.Execute(ExecuteOptions{})
	if len(snap.Active) != 1 || snap.Active[0] != "finished" {
		t.Fatalf("active = %v, want [finished]", snap.Active)
	}
}

// A top-level Final terminates the machine: no further macrosteps run once
// it is entered (spec.md §4.7 "Terminal").
func TestTopLevelFinalTerminates(t *testing.T) {
	b := NewBuilder("running", DatamodelECMAScript)
	b.State("running").Eventless("done", "")
	b.Final("done")
	root, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	it, err := Load(root, WithEvaluator(expr.New()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := it.Execute(ExecuteOptions{})
	if !snap.Terminated {
		t.Fatalf("Terminated = false, want true after entering a top-level final")
	}
	if len(snap.Active) != 1 || snap.Active[0] != "done" {
		t.Fatalf("active = %v, want [done]", snap.Active)
	}

	it.SendEventByName("anything", nil)
	snap = it.snapshot()
	if len(snap.Active) != 1 || snap.Active[0] != "done" {
		t.Fatalf("active changed after terminal state: %v", snap.Active)
	}
}

// Step counters must actually advance; a persistence round-trip comparing
// two zero values would pass vacuously (see TestSerializeDeserializeRoundTrip).
func TestStepCountersAdvance(t *testing.T) {
	b := NewBuilder("green", DatamodelECMAScript)
	b.State("green").On("next", "yellow", "")
	b.State("yellow").On("next", "red", "")
	b.State("red").On("next", "green", "")
	root, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	it, err := Load(root, WithEvaluator(expr.New()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := it.Execute(ExecuteOptions{})
	if snap.MacroStepCount == 0 {
		t.Fatalf("MacroStepCount = 0 after Execute, want > 0")
	}

	it.SendEventByName("next", nil)
	snap2 := it.snapshot()
	if snap2.MacroStepCount <= snap.MacroStepCount {
		t.Fatalf("MacroStepCount did not advance: before=%d after=%d", snap.MacroStepCount, snap2.MacroStepCount)
	}
	if snap2.MicroStepCount == 0 {
		t.Fatalf("MicroStepCount = 0 after a transition, want > 0")
	}
}

func TestLCCAIdentityLaws(t *testing.T) {
	if got := LCCA("a.b.c", "a.b.c"); got != "a.b.c" {
		t.Fatalf("LCCA(a,a) = %q, want a.b.c", got)
	}
	if LCCA("a.b.c", "a.b.d") != LCCA("a.b.d", "a.b.c") {
		t.Fatalf("LCCA not symmetric")
	}
	if got := LCCA("a.b.c", "a.b.d"); got != "a.b" {
		t.Fatalf("LCCA(a.b.c,a.b.d) = %q, want a.b", got)
	}
	if got := LCCA("x.y", "z.y"); got != "" {
		t.Fatalf("LCCA with no common ancestor = %q, want empty", got)
	}
}
