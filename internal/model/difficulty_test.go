package model

import (
	"math"
	"testing"
)

func TestDistributionSet(t *testing.T) {
	tests := []struct {
		name  string
		start Distribution
		dim   Difficulty
		value int
		want  Distribution
	}{
		{"keeps ratio", Distribution{30, 50, 20}, DifficultyEasy, 50, Distribution{50, 36, 14}},
		{"medium to zero", Distribution{30, 50, 20}, DifficultyMedium, 0, Distribution{60, 0, 40}},
		{"hard to full", Distribution{30, 50, 20}, DifficultyHard, 100, Distribution{0, 0, 100}},
		{"others zero splits evenly", Distribution{100, 0, 0}, DifficultyEasy, 40, Distribution{40, 30, 30}},
		{"clamps above 100", Distribution{30, 50, 20}, DifficultyEasy, 150, Distribution{100, 0, 0}},
		{"clamps below 0", Distribution{30, 50, 20}, DifficultyEasy, -5, Distribution{0, 71, 29}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.start
			if err := d.Set(tt.dim, tt.value); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if d != tt.want {
				t.Errorf("Set(%s, %d) = %+v, want %+v", tt.dim, tt.value, d, tt.want)
			}
		})
	}
}

func TestDistributionSetUnknownDimension(t *testing.T) {
	d := DefaultDistribution()
	if err := d.Set("extreme", 10); err == nil {
		t.Fatal("expected error for unknown dimension")
	}
	if d != DefaultDistribution() {
		t.Errorf("distribution changed on error: %+v", d)
	}
}

// Every adjustment keeps the sum within 100±2 and the untouched pair's ratio.
func TestDistributionSetKeepsSumAndRatio(t *testing.T) {
	starts := []Distribution{
		{30, 50, 20}, {33, 33, 34}, {0, 0, 100}, {10, 80, 10}, {1, 98, 1},
	}
	for _, start := range starts {
		for _, dim := range Difficulties {
			for v := 0; v <= 100; v += 7 {
				d := start
				if err := d.Set(dim, v); err != nil {
					t.Fatalf("Set: %v", err)
				}
				if s := d.Sum(); s < 98 || s > 102 {
					t.Fatalf("start %+v Set(%s,%d) = %+v, sum %d", start, dim, v, d, s)
				}

				var others []Difficulty
				for _, o := range Difficulties {
					if o != dim {
						others = append(others, o)
					}
				}
				a0, b0 := start.Get(others[0]), start.Get(others[1])
				a1, b1 := d.Get(others[0]), d.Get(others[1])
				if a0+b0 == 0 {
					if a1 != b1 {
						t.Errorf("start %+v Set(%s,%d): expected even split, got %d/%d", start, dim, v, a1, b1)
					}
					continue
				}
				// Each side is rounded independently, so allow one unit of error scaled up.
				wantA := float64(a0) * float64(100-v) / float64(a0+b0)
				if math.Abs(float64(a1)-wantA) > 0.5+1e-9 {
					t.Errorf("start %+v Set(%s,%d): %s = %d, want ~%.2f", start, dim, v, others[0], a1, wantA)
				}
			}
		}
	}
}

func TestDistributionValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Distribution
		wantErr bool
	}{
		{"default", DefaultDistribution(), false},
		{"drift of two", Distribution{33, 33, 32}, false},
		{"too low", Distribution{10, 10, 10}, true},
		{"negative", Distribution{-10, 60, 50}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
