package geometry

import "testing"

// triangles returns a non-indexed buffer with n unit triangles.
func triangles(n int) *Buffer {
	buf := &Buffer{Positions: make([]float32, 0, n*9)}
	for i := 0; i < n; i++ {
		x := float32(i)
		buf.Positions = append(buf.Positions,
			x, 0, 0,
			x+1, 0, 0,
			x, 1, 0,
		)
	}
	return buf
}

func TestLODAssemblerAcceptsDecreasingDistances(t *testing.T) {
	a := NewLODAssembler()
	if got := a.CurrentBest(); got != nil {
		t.Fatalf("CurrentBest() on empty assembler = %v, want nil", got)
	}

	coarse, fine := triangles(2), triangles(10)
	if err := a.AddLevel(coarse, 45, 0.02); err != nil {
		t.Fatalf("AddLevel(coarse) error: %v", err)
	}
	if err := a.AddLevel(fine, 20, 0.2); err != nil {
		t.Fatalf("AddLevel(fine) error: %v", err)
	}

	if got := a.LevelCount(); got != 2 {
		t.Fatalf("LevelCount = %d, want 2", got)
	}
	if got := a.CurrentBest(); got != fine {
		t.Fatal("CurrentBest() is not the last inserted level")
	}
}

func TestLODAssemblerRejectsOutOfOrderDistances(t *testing.T) {
	a := NewLODAssembler()
	if err := a.AddLevel(triangles(1), 45, 0.02); err != nil {
		t.Fatalf("AddLevel error: %v", err)
	}

	tests := []struct {
		name     string
		distance float32
	}{
		{name: "equal distance", distance: 45},
		{name: "increasing distance", distance: 50},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := a.AddLevel(triangles(2), tc.distance, 0.2); err == nil {
				t.Fatal("AddLevel accepted a non-decreasing switch distance")
			}
		})
	}
	if got := a.LevelCount(); got != 1 {
		t.Fatalf("LevelCount = %d after rejected inserts, want 1", got)
	}
}

func TestLODAssemblerRejectsNilBuffer(t *testing.T) {
	a := NewLODAssembler()
	if err := a.AddLevel(nil, 45, 0.02); err == nil {
		t.Fatal("AddLevel accepted a nil buffer")
	}
}

func TestLODAssemblerLevelStats(t *testing.T) {
	a := NewLODAssembler()
	if err := a.AddLevel(triangles(3), 45, 0.05); err != nil {
		t.Fatalf("AddLevel error: %v", err)
	}
	if err := a.AddLevel(triangles(12), 20, 0.2); err != nil {
		t.Fatalf("AddLevel error: %v", err)
	}

	stats := a.LevelStats()
	if len(stats) != 2 {
		t.Fatalf("LevelStats length = %d, want 2", len(stats))
	}
	if stats[0].TriangleCount != 3 || stats[1].TriangleCount != 12 {
		t.Fatalf("triangle counts = (%d, %d), want (3, 12)", stats[0].TriangleCount, stats[1].TriangleCount)
	}
	if stats[0].SwitchDistance <= stats[1].SwitchDistance {
		t.Fatalf("switch distances not decreasing: %f then %f", stats[0].SwitchDistance, stats[1].SwitchDistance)
	}
	if stats[0].DecimationFactor != 0.05 {
		t.Fatalf("DecimationFactor = %f, want 0.05", stats[0].DecimationFactor)
	}
}
