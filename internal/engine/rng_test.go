package engine

import "testing"

func TestFloats(t *testing.T) {
	tests := []struct {
		name   string
		seed   string
		salt   string
		heat   uint64
		cursor uint64
		count  int
	}{
		{"single", "strip_seed", "bot", 1, 0, 1},
		{"several", "strip_seed", "bot", 1, 0, 8},
		{"cursor boundary", "strip_seed", "bot", 1, 31, 2},
		{"many rounds", "strip_seed", "bot", 7, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floats := Floats(tt.seed, tt.salt, tt.heat, tt.cursor, tt.count)
			if len(floats) != tt.count {
				t.Fatalf("Floats() returned %d floats, want %d", len(floats), tt.count)
			}
			for i, f := range floats {
				if f < 0 || f >= 1 {
					t.Errorf("float %d out of range [0, 1): %f", i, f)
				}
			}
		})
	}
}

func TestReproducible(t *testing.T) {
	a := Floats("seed", "bot", 42, 0, 16)
	b := Floats("seed", "bot", 42, 0, 16)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("float %d differs: %v vs %v", i, a[i], b[i])
		}
	}

	c := Floats("seed", "bot", 43, 0, 16)
	same := 0
	for i := range a {
		if a[i] == c[i] {
			same++
		}
	}
	if same == len(a) {
		t.Fatalf("different heats produced the same stream")
	}
}

func TestCursorMatchesStreamOffset(t *testing.T) {
	full := Floats("seed", "bot", 1, 0, 10)
	// A cursor of 8 bytes skips exactly two floats.
	tail := Floats("seed", "bot", 1, 8, 8)
	for i := range tail {
		if tail[i] != full[i+2] {
			t.Fatalf("float %d: cursor stream %v, full stream %v", i, tail[i], full[i+2])
		}
	}
}

func TestBetween(t *testing.T) {
	s := NewStream("seed", "bot", 1, 0)
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		v := s.Between(-2, 2)
		if v < -2 || v > 2 {
			t.Fatalf("Between out of range: %d", v)
		}
		seen[v] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected all 5 values, saw %v", seen)
	}
	if s.Drawn() != 2000 {
		t.Errorf("drawn = %d", s.Drawn())
	}
}

func TestFloatsIntoReusesBuffer(t *testing.T) {
	buf := make([]float64, 32)
	out := FloatsInto(buf, "seed", "bot", 1, 0, 4)
	if len(out) != 4 || &out[0] != &buf[0] {
		t.Fatalf("buffer not reused")
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint("a") == Fingerprint("b") {
		t.Fatalf("fingerprints collide")
	}
	if len(Fingerprint("a")) != 12 {
		t.Errorf("fingerprint length = %d", len(Fingerprint("a")))
	}
}
