package history

import "testing"

func TestAddEntryAssignsIDAndOrder(t *testing.T) {
	l := New(0)
	e1 := l.AddEntry(Entry{Kind: KindMacrostepStart})
	e2 := l.AddEntry(Entry{Kind: KindStateEntry, EventName: "next"})
	if e1.ID == "" || e2.ID == "" {
		t.Fatalf("expected non-empty IDs, got %q and %q", e1.ID, e2.ID)
	}
	if e1.ID == e2.ID {
		t.Fatalf("expected distinct IDs, got both %q", e1.ID)
	}
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}
}

func TestCausalityLinking(t *testing.T) {
	l := New(0)
	parent := l.AddEntry(Entry{Kind: KindMacrostepStart})
	l.StartContext(parent.ID)
	child := l.AddEntry(Entry{Kind: KindTransition, EventName: "go"})
	l.EndContext()
	unrelated := l.AddEntry(Entry{Kind: KindStateEntry})

	if child.ParentID != parent.ID {
		t.Fatalf("child.ParentID = %q, want %q", child.ParentID, parent.ID)
	}
	if unrelated.ParentID != "" {
		t.Fatalf("unrelated.ParentID = %q, want empty (context already ended)", unrelated.ParentID)
	}

	all := l.All()
	var gotParent Entry
	for _, e := range all {
		if e.ID == parent.ID {
			gotParent = e
		}
	}
	if len(gotParent.ChildIDs) != 1 || gotParent.ChildIDs[0] != child.ID {
		t.Fatalf("parent.ChildIDs = %v, want [%s]", gotParent.ChildIDs, child.ID)
	}
}

func TestFIFOPruning(t *testing.T) {
	l := New(3)
	var ids []string
	for i := 0; i < 5; i++ {
		e := l.AddEntry(Entry{Kind: KindEventProcessed})
		ids = append(ids, e.ID)
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 after pruning", l.Len())
	}
	all := l.All()
	if all[0].ID != ids[2] || all[2].ID != ids[4] {
		t.Fatalf("pruning kept wrong entries: got IDs %v, want last 3 of %v", all, ids)
	}
}

func TestQueryFiltersByKindAndStatePath(t *testing.T) {
	l := New(0)
	l.AddEntry(Entry{Kind: KindStateEntry, StateConfiguration: []string{"a", "a.b"}})
	l.AddEntry(Entry{Kind: KindStateExit, StateConfiguration: []string{"a"}})
	l.AddEntry(Entry{Kind: KindStateEntry, StateConfiguration: []string{"x"}})

	entries := l.Query(Filter{Kind: KindStateEntry})
	if len(entries) != 2 {
		t.Fatalf("Query(Kind=StateEntry) len = %d, want 2", len(entries))
	}

	byPath := l.Query(Filter{StatePath: "a", IncludeDescendants: true})
	if len(byPath) != 2 {
		t.Fatalf("Query(StatePath=a, descendants) len = %d, want 2", len(byPath))
	}
}

func TestImportReplacesContents(t *testing.T) {
	l := New(0)
	l.AddEntry(Entry{Kind: KindMacrostepStart})
	l.Import([]Entry{
		{ID: "imported-1", Kind: KindImported},
		{ID: "imported-2", Kind: KindImported},
	})
	if l.Len() != 2 {
		t.Fatalf("Len() after Import = %d, want 2", l.Len())
	}
	all := l.All()
	if all[0].ID != "imported-1" || all[1].ID != "imported-2" {
		t.Fatalf("Import did not preserve order: got %v", all)
	}
}

func TestClearEmptiesLedger(t *testing.T) {
	l := New(0)
	l.AddEntry(Entry{Kind: KindMacrostepStart})
	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", l.Len())
	}
}
