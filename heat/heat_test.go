package heat

import (
	"testing"
)

// fakeClock drives the tracker's time without sleeping.
func fakeClock(t *Tracker) *uint64 {
	now := t.now()
	clock := &now
	t.now = func() uint64 { return *clock }
	t.lastDecay = now
	return clock
}

func TestRecordAccessIncrements(t *testing.T) {
	tests := []struct {
		name string
		kind Access
		want uint32
	}{
		{"read", AccessRead, 1},
		{"write", AccessWrite, 2},
		{"delete", AccessDelete, 3},
		{"compact", AccessCompact, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(100)
			tr.RecordAccess([]byte("k"), tt.kind)

			if got := tr.Heat([]byte("k")); got != tt.want {
				t.Fatalf("heat = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHeatAccumulates(t *testing.T) {
	tr := NewTracker(100)

	tr.RecordAccess([]byte("k"), AccessWrite)
	tr.RecordAccess([]byte("k"), AccessRead)
	tr.RecordAccess([]byte("k"), AccessRead)

	if got := tr.Heat([]byte("k")); got != 4 {
		t.Fatalf("heat = %d, want 4", got)
	}
	if tr.Hot([]byte("k")) {
		t.Fatal("key reported hot below threshold")
	}
}

func TestHotThreshold(t *testing.T) {
	tr := NewTracker(100)
	for i := 0; i < 5; i++ {
		tr.RecordAccess([]byte("k"), AccessWrite)
	}

	if !tr.Hot([]byte("k")) {
		t.Fatalf("heat %d should be hot", tr.Heat([]byte("k")))
	}
}

func TestHeatDecaysOverTime(t *testing.T) {
	tr := NewTracker(100)
	clock := fakeClock(tr)

	for i := 0; i < 50; i++ {
		tr.RecordAccess([]byte("k"), AccessWrite) // heat 100
	}

	*clock += 120 // two decay cycles

	// 100 * 0.95^2 = 90.25, truncated.
	if got := tr.Heat([]byte("k")); got != 90 {
		t.Fatalf("decayed heat = %d, want 90", got)
	}
}

func TestUntrackedKeyIsCold(t *testing.T) {
	tr := NewTracker(100)
	if got := tr.Heat([]byte("missing")); got != 0 {
		t.Fatalf("heat = %d, want 0", got)
	}
}

func TestSweepRemovesColdEntries(t *testing.T) {
	tr := NewTracker(100)
	clock := fakeClock(tr)

	tr.RecordAccess([]byte("cold"), AccessRead)
	e := tr.entries["cold"]
	e.Heat = 0 // fully decayed

	*clock += 61
	tr.RecordAccess([]byte("fresh"), AccessRead)

	if tr.Len() != 1 {
		t.Fatalf("tracked entries = %d, want 1", tr.Len())
	}
	if tr.Heat([]byte("cold")) != 0 {
		t.Fatal("cold entry survived the sweep")
	}
}
