package session

import (
	"math/rand"
	"testing"

	"github.com/eternitynet/server/internal/config"
)

func threeMaps() []config.MapEntrySpec {
	return []config.MapEntrySpec{{Name: "MAP01"}, {Name: "MAP02"}, {Name: "MAP03"}}
}

func TestRotationSequentialWrapsAround(t *testing.T) {
	r := NewRotation(threeMaps(), config.ShuffleNone, rand.New(rand.NewSource(1)))
	got := []string{}
	for i := 0; i < 4; i++ {
		idx := r.Advance()
		m, _ := r.Current()
		got = append(got, m.Name)
		_ = idx
	}
	want := []string{"MAP01", "MAP02", "MAP03", "MAP01"}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("got[%d] = %q, want %q (full: %v)", i, got[i], name, got)
		}
	}
}

func TestRotationCycleVisitsEveryMapBeforeRepeating(t *testing.T) {
	r := NewRotation(threeMaps(), config.ShuffleCycle, rand.New(rand.NewSource(2)))
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		r.Advance()
		m, _ := r.Current()
		if seen[m.Name] {
			t.Fatalf("map %q repeated before a full cycle completed", m.Name)
		}
		seen[m.Name] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected all 3 maps visited, got %v", seen)
	}
}
