package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
	if parts := strings.Split(id, "-"); len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if id[14] != '7' {
		t.Fatalf("UUIDv7: version nibble = %q, want '7'", id[14])
	}
}

func TestUUIDv7_Ordered(t *testing.T) {
	gen := UUIDv7()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen()
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatal("UUIDv7: ids generated in sequence are not sorted")
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("run_", Sequence("x"))
	if got := gen(); got != "run_x-1" {
		t.Fatalf("Prefixed: got %q", got)
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("tgt")
	for i, want := range []string{"tgt-1", "tgt-2", "tgt-3"} {
		if got := gen(); got != want {
			t.Fatalf("Sequence[%d] = %q, want %q", i, got, want)
		}
	}
}
