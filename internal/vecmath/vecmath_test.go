package vecmath

import (
	"math"
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]float64
		want map[string]float64
	}{
		{
			name: "already normalized",
			in:   map[string]float64{"a": 0.5, "b": 0.5},
			want: map[string]float64{"a": 0.5, "b": 0.5},
		},
		{
			name: "scales to unit sum",
			in:   map[string]float64{"a": 2, "b": 6},
			want: map[string]float64{"a": 0.25, "b": 0.75},
		},
		{
			name: "negative weights floored",
			in:   map[string]float64{"a": -1, "b": 2},
			want: map[string]float64{"a": 0, "b": 1},
		},
		{
			name: "all zero becomes uniform",
			in:   map[string]float64{"a": 0, "b": 0, "c": 0, "d": 0},
			want: map[string]float64{"a": 0.25, "b": 0.25, "c": 0.25, "d": 0.25},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Normalize(tt.in)
			for k, want := range tt.want {
				if math.Abs(tt.in[k]-want) > 1e-9 {
					t.Errorf("Normalize()[%q] = %v, want %v", k, tt.in[k], want)
				}
			}
		})
	}
}

func TestNormalize_Empty(t *testing.T) {
	m := map[string]float64{}
	Normalize(m)
	if len(m) != 0 {
		t.Errorf("Normalize(empty) grew the map: %v", m)
	}
}

func TestBlendToward(t *testing.T) {
	dst := map[string]float64{"a": 1.0, "b": 0.0}
	target := map[string]float64{"a": 0.0, "b": 1.0}

	BlendToward(dst, target, 0.5)

	if math.Abs(dst["a"]-0.5) > 1e-9 || math.Abs(dst["b"]-0.5) > 1e-9 {
		t.Errorf("BlendToward() = %v, want a=0.5 b=0.5", dst)
	}
}

func TestBlendToward_MissingTargetKeyCountsAsZero(t *testing.T) {
	dst := map[string]float64{"a": 0.8}
	BlendToward(dst, map[string]float64{}, 0.25)
	if math.Abs(dst["a"]-0.6) > 1e-9 {
		t.Errorf("dst[a] = %v, want 0.6", dst["a"])
	}
}

func TestArgMax(t *testing.T) {
	tests := []struct {
		name    string
		in      map[string]float64
		wantKey string
		wantVal float64
	}{
		{
			name:    "single maximum",
			in:      map[string]float64{"a": 0.2, "b": 0.7, "c": 0.1},
			wantKey: "b",
			wantVal: 0.7,
		},
		{
			name:    "tie breaks lexicographically",
			in:      map[string]float64{"z": 0.5, "m": 0.5, "a": 0.5},
			wantKey: "a",
			wantVal: 0.5,
		},
		{
			name:    "empty",
			in:      map[string]float64{},
			wantKey: "",
			wantVal: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, val := ArgMax(tt.in)
			if key != tt.wantKey || val != tt.wantVal {
				t.Errorf("ArgMax() = (%q, %v), want (%q, %v)", key, val, tt.wantKey, tt.wantVal)
			}
		})
	}
}

func TestWeightedIndex(t *testing.T) {
	weights := []float64{1, 3, 6} // cumulative: 0.1, 0.4, 1.0

	tests := []struct {
		r    float64
		want int
	}{
		{r: 0.0, want: 0},
		{r: 0.05, want: 0},
		{r: 0.1, want: 1},
		{r: 0.39, want: 1},
		{r: 0.4, want: 2},
		{r: 0.999, want: 2},
	}

	for _, tt := range tests {
		if got := WeightedIndex(weights, tt.r); got != tt.want {
			t.Errorf("WeightedIndex(r=%v) = %d, want %d", tt.r, got, tt.want)
		}
	}
}

func TestWeightedIndex_Degenerate(t *testing.T) {
	if got := WeightedIndex(nil, 0.5); got != -1 {
		t.Errorf("WeightedIndex(nil) = %d, want -1", got)
	}
	if got := WeightedIndex([]float64{0, 0}, 0.5); got != -1 {
		t.Errorf("WeightedIndex(all zero) = %d, want -1", got)
	}
	// Negative weights are skipped, not counted into the total.
	if got := WeightedIndex([]float64{-5, 1}, 0.99); got != 1 {
		t.Errorf("WeightedIndex(negative skipped) = %d, want 1", got)
	}
}

func TestWeightedKey_DeterministicOrder(t *testing.T) {
	m := map[string]float64{"left": 0.25, "right": 0.25, "center": 0.5}
	// Keys in lexicographic order: center (0.5), left (0.25), right (0.25).
	if got := WeightedKey(m, 0.0); got != "center" {
		t.Errorf("WeightedKey(0.0) = %q, want %q", got, "center")
	}
	if got := WeightedKey(m, 0.6); got != "left" {
		t.Errorf("WeightedKey(0.6) = %q, want %q", got, "left")
	}
	if got := WeightedKey(m, 0.9); got != "right" {
		t.Errorf("WeightedKey(0.9) = %q, want %q", got, "right")
	}
}

func TestSortedKeys(t *testing.T) {
	m := map[string]float64{"c": 1, "a": 2, "b": 3}
	want := []string{"a", "b", "c"}
	if got := SortedKeys(m); !reflect.DeepEqual(got, want) {
		t.Errorf("SortedKeys() = %v, want %v", got, want)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(1.5, 0, 1); got != 1 {
		t.Errorf("Clamp(1.5, 0, 1) = %v, want 1", got)
	}
	if got := Clamp(-0.2, 0, 1); got != 0 {
		t.Errorf("Clamp(-0.2, 0, 1) = %v, want 0", got)
	}
	if got := Clamp(0.4, 0, 1); got != 0.4 {
		t.Errorf("Clamp(0.4, 0, 1) = %v, want 0.4", got)
	}
}
