package estimator

import "testing"

func TestEstimate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                      string
		previous, current, target int
		want                      int
	}{
		{"moving up past target", 50, 70, 50, 100},
		{"moving down past target", 50, 30, 50, 0},
		{"moving up below target", 10, 20, 80, 80},
		{"moving down above target", 90, 80, 20, 20},
		{"unchanged", 40, 40, 40, 40},
		{"equal to target going up", 10, 50, 50, 50},
		{"equal to previous", 30, 30, 10, 10},
		{"already at top", 99, 100, 100, 100},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Estimate(tc.previous, tc.current, tc.target); got != tc.want {
				t.Fatalf("Estimate(%d,%d,%d) = %d, want %d", tc.previous, tc.current, tc.target, got, tc.want)
			}
		})
	}
}

func TestEstimate_AllInputs(t *testing.T) {
	for p := 0; p <= 100; p++ {
		for c := 0; c <= 100; c++ {
			for tg := 0; tg <= 100; tg++ {
				got := Estimate(p, c, tg)
				want := tg
				if c > p && c > tg {
					want = 100
				} else if c < p && c < tg {
					want = 0
				}
				if got != want {
					t.Fatalf("Estimate(%d,%d,%d) = %d, want %d", p, c, tg, got, want)
				}
				if got < 0 || got > 100 {
					t.Fatalf("Estimate(%d,%d,%d) out of range: %d", p, c, tg, got)
				}
			}
		}
	}
}

func TestEstimate_RisingSequence(t *testing.T) {
	// Reports of 50, 70, 90 starting from a resting blind at 50.
	previous, target := 50, 50
	var targets []int
	for _, current := range []int{50, 70, 90} {
		target = Estimate(previous, current, target)
		targets = append(targets, target)
		previous = current
	}

	want := []int{50, 100, 100}
	for i := range want {
		if targets[i] != want[i] {
			t.Fatalf("step %d: target = %d, want %d (all %v)", i, targets[i], want[i], targets)
		}
	}
}

func TestDirectionOf(t *testing.T) {
	if d := DirectionOf(20, 80); d != Increasing {
		t.Errorf("20->80: got %s", d)
	}
	if d := DirectionOf(80, 20); d != Decreasing {
		t.Errorf("80->20: got %s", d)
	}
	if d := DirectionOf(50, 50); d != Stopped {
		t.Errorf("50->50: got %s", d)
	}
}
