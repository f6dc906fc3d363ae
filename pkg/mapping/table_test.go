package mapping

import "testing"

type dummy struct{ v int }

func TestAllocateInstallLoad(t *testing.T) {
	tbl, err := New[dummy](16)
	if err != nil {
		t.Fatal(err)
	}
	id, err := tbl.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	tbl.InstallNew(id, &dummy{v: 42})
	got := tbl.Load(id)
	if got == nil || got.v != 42 {
		t.Fatalf("Load(%d) = %v, want &dummy{42}", id, got)
	}
}

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := New[dummy](3); err == nil {
		t.Fatal("New(3) succeeded, want an error for a non-power-of-two capacity")
	}
}

func TestCASReplace(t *testing.T) {
	tbl, _ := New[dummy](16)
	id, _ := tbl.Allocate()
	first := &dummy{v: 1}
	tbl.InstallNew(id, first)

	second := &dummy{v: 2}
	if !tbl.CASReplace(id, first, second) {
		t.Fatal("CASReplace(first->second) failed unexpectedly")
	}
	if tbl.Load(id) != second {
		t.Fatal("Load after CASReplace did not return second")
	}

	stale := &dummy{v: 3}
	if tbl.CASReplace(id, first, stale) {
		t.Fatal("CASReplace against a stale expected pointer unexpectedly succeeded")
	}
}

func TestRecycleReusesID(t *testing.T) {
	tbl, _ := New[dummy](16)
	id, _ := tbl.Allocate()
	tbl.InstallNew(id, &dummy{v: 1})
	tbl.Recycle(id)

	if got := tbl.Load(id); got != nil {
		t.Fatalf("Load(%d) after Recycle = %v, want nil", id, got)
	}

	reused, err := tbl.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if reused != id {
		t.Fatalf("Allocate after Recycle = %d, want the recycled id %d", reused, id)
	}
}

func TestAllocateExhaustsCapacity(t *testing.T) {
	tbl, _ := New[dummy](2)
	if _, err := tbl.Allocate(); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Allocate(); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Allocate(); err == nil {
		t.Fatal("Allocate beyond capacity succeeded, want an error")
	}
}
