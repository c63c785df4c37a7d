package ddoccache

import "testing"

func TestCacheIndex_InsertIfAbsentIsIdempotent(t *testing.T) {
	idx := NewCacheIndex()
	k := Key{Tag: "t", Arg: "1"}

	rec1, inserted1 := idx.InsertIfAbsent(k)
	if !inserted1 {
		t.Fatalf("first InsertIfAbsent should report inserted=true")
	}

	rec2, inserted2 := idx.InsertIfAbsent(k)
	if inserted2 {
		t.Fatalf("second InsertIfAbsent should report inserted=false")
	}
	if rec1 != rec2 {
		t.Fatalf("InsertIfAbsent returned a different row on the second call")
	}
}

func TestCacheIndex_DeleteMatchingRequiresPidMatch(t *testing.T) {
	idx := NewCacheIndex()
	k := Key{Tag: "t", Arg: "1"}
	rec, _ := idx.InsertIfAbsent(k)

	e1, e2 := &entry{}, &entry{}
	idx.SetPid(rec, e1)

	if idx.DeleteMatching(k, e2) {
		t.Fatalf("DeleteMatching with the wrong pid must not remove the row")
	}
	if _, ok := idx.Lookup(k); !ok {
		t.Fatalf("row must still be present after a mismatched delete attempt")
	}
	if !idx.DeleteMatching(k, e1) {
		t.Fatalf("DeleteMatching with the correct pid must remove the row")
	}
	if _, ok := idx.Lookup(k); ok {
		t.Fatalf("row must be gone after a matching delete")
	}
}

func TestCacheIndex_SetValThenLookup(t *testing.T) {
	idx := NewCacheIndex()
	k := Key{Tag: "t", Arg: "1"}
	rec, _ := idx.InsertIfAbsent(k)

	idx.SetVal(rec, "hello", nil)

	got, ok := idx.Lookup(k)
	if !ok {
		t.Fatalf("expected row present")
	}
	v := got.val.Load()
	if v == nil || v.val != "hello" {
		t.Fatalf("unexpected stored value: %+v", v)
	}
}
