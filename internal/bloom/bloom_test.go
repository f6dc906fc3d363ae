package bloom

import "testing"

func TestInsertedKeysAreFound(t *testing.T) {
	f := New(nil)
	keys := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc"), []byte("dddd")}
	for _, k := range keys {
		f.Insert(k)
	}
	for _, k := range keys {
		if !f.MightContain(k) {
			t.Fatalf("MightContain(%q) = false after Insert, want true", k)
		}
	}
}

func TestResetClearsFilter(t *testing.T) {
	f := New(nil)
	f.Insert([]byte("present"))
	if !f.MightContain([]byte("present")) {
		t.Fatal("MightContain after Insert = false, want true")
	}
	f.Reset()
	if f.MightContain([]byte("present")) {
		t.Fatal("MightContain after Reset = true, want false")
	}
}

func TestFalsePositiveRateIsLow(t *testing.T) {
	f := New(nil)
	for i := 0; i < 200; i++ {
		f.Insert([]byte{byte(i), byte(i >> 8)})
	}
	falsePositives := 0
	const probes = 5000
	for i := 1000; i < 1000+probes; i++ {
		if f.MightContain([]byte{byte(i), byte(i >> 8)}) {
			falsePositives++
		}
	}
	// Not a tight statistical bound - just a sanity check that the
	// filter isn't saturated (every bit set) for a lightly loaded
	// 2048-bit filter.
	if falsePositives > probes/4 {
		t.Fatalf("false positive rate too high: %d/%d", falsePositives, probes)
	}
}
