package scxmlgo

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/comalice/scxmlgo/expr"
)

// Serialization round-trip law (spec.md §8): deserialize(serialize(I)) ≡ I,
// checked here for the active chain and the macrostep counter.
func TestSerializeDeserializeRoundTrip(t *testing.T) {
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
	it.Execute(ExecuteOptions{})
	it.SendEventByName("next", nil)

	blob, err := it.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	// Rebuild the same document shape fresh, as LoadFromPersistence expects.
	b2 := NewBuilder("green", DatamodelECMAScript)
	b2.State("green").On("next", "yellow", "")
	b2.State("yellow").On("next", "red", "")
	b2.State("red").On("next", "green", "")
	root2, err := b2.Build()
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	restored, err := LoadFromPersistence(root2, blob, WithEvaluator(expr.New()))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	want := it.activePathsOrdered()
	got := restored.activePathsOrdered()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("active chain mismatch (-want +got):\n%s", diff)
	}
	if restored.macroStepCount != it.macroStepCount {
		t.Fatalf("macroStepCount mismatch: got %d want %d", restored.macroStepCount, it.macroStepCount)
	}
}

func TestDeserializeRejectsCorruptChecksum(t *testing.T) {
	b := NewBuilder("a", DatamodelNull)
	b.State("a")
	root, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	it, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	it.Execute(ExecuteOptions{})

	blob, err := it.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	var pb PersistenceBlob
	if err := json.Unmarshal(blob, &pb); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	pb.MacroStepCount++ // invalidates the stored checksum without touching it
	mutated, err := json.Marshal(pb)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if _, err := LoadFromPersistence(root, mutated); err == nil {
		t.Fatalf("expected checksum mismatch error, got nil")
	}
}
