package ddoccache

import "testing"

func TestLRUIndex_InsertMoveAndFirst(t *testing.T) {
	idx := NewLRUIndex()

	e1, e2 := &entry{}, &entry{}
	k1 := Key{Tag: "t", Arg: "1"}
	k2 := Key{Tag: "t", Arg: "2"}

	idx.Insert(LRUItem{TS: NextTimestamp(), Key: k1, Pid: e1})
	idx.Insert(LRUItem{TS: NextTimestamp(), Key: k2, Pid: e2})

	first, ok := idx.First()
	if !ok || first.Key != k1 {
		t.Fatalf("First() = %+v, want k1 oldest", first)
	}

	// Re-inserting k1 with a fresher timestamp moves it to the back.
	idx.Insert(LRUItem{TS: NextTimestamp(), Key: k1, Pid: e1})
	first, ok = idx.First()
	if !ok || first.Key != k2 {
		t.Fatalf("First() after touch = %+v, want k2 oldest", first)
	}
	if idx.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (touch must not duplicate)", idx.Len())
	}
}

func TestLRUIndex_DeleteExactToleratesAlreadyAbsent(t *testing.T) {
	idx := NewLRUIndex()
	e1 := &entry{}
	k1 := Key{Tag: "t", Arg: "1"}
	item := LRUItem{TS: NextTimestamp(), Key: k1, Pid: e1}

	idx.Insert(item)
	if !idx.DeleteExact(item) {
		t.Fatalf("first DeleteExact should report removal")
	}
	if idx.DeleteExact(item) {
		t.Fatalf("second DeleteExact on an absent item should report false, not panic")
	}
}

func TestLRUIndex_DeleteExactRejectsStaleTimestamp(t *testing.T) {
	idx := NewLRUIndex()
	e1 := &entry{}
	k1 := Key{Tag: "t", Arg: "1"}

	staleTS := NextTimestamp()
	idx.Insert(LRUItem{TS: staleTS, Key: k1, Pid: e1})
	idx.Insert(LRUItem{TS: NextTimestamp(), Key: k1, Pid: e1}) // touch moves it, new TS

	if idx.DeleteExact(LRUItem{TS: staleTS, Key: k1, Pid: e1}) {
		t.Fatalf("DeleteExact with a stale timestamp must not remove the current entry")
	}
	if idx.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (current entry must survive the stale delete attempt)", idx.Len())
	}
}
