// Package vecmath provides small helpers for named preference
// distributions: normalization, blending, and deterministic selection.
// The rules, social and outcome packages all operate on distributions of
// the form map[option]weight and share these primitives.
package vecmath

import "sort"

// SortedKeys returns the keys of m in lexicographic order. Every piece of
// engine code that iterates a distribution goes through this: Go map order
// is randomized, and iteration order must not leak into results.
func SortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copy returns a shallow copy of the distribution.
func Copy(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Sum returns the total weight of the distribution.
func Sum(m map[string]float64) float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}

// Normalize scales the distribution in place so its weights sum to 1.
// Negative weights are floored at zero first. A distribution with no
// positive weight becomes uniform: downstream sampling requires a valid
// simplex.
func Normalize(m map[string]float64) {
	if len(m) == 0 {
		return
	}
	var total float64
	for k, v := range m {
		if v < 0 {
			m[k] = 0
			v = 0
		}
		total += v
	}
	if total <= 0 {
		u := 1.0 / float64(len(m))
		for k := range m {
			m[k] = u
		}
		return
	}
	for k := range m {
		m[k] /= total
	}
}

// BlendToward moves dst toward target by fraction w: for every key of dst,
// dst[k] += (target[k]-dst[k])*w. Keys missing from target count as zero.
// Keys present only in target are ignored; the option space is fixed by dst.
func BlendToward(dst, target map[string]float64, w float64) {
	for k, v := range dst {
		dst[k] = v + (target[k]-v)*w
	}
}

// ArgMax returns the key with the largest weight and that weight. Ties break
// lexicographically so the result is deterministic. An empty distribution
// returns ("", 0).
func ArgMax(m map[string]float64) (string, float64) {
	var bestKey string
	var bestVal float64
	first := true
	for _, k := range SortedKeys(m) {
		if first || m[k] > bestVal {
			bestKey, bestVal = k, m[k]
			first = false
		}
	}
	return bestKey, bestVal
}

// WeightedIndex picks an index from weights by cumulative probability, where
// r is a uniform draw in [0, 1). Non-positive weights are skipped. Returns
// -1 when no weight is positive.
func WeightedIndex(weights []float64, r float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	target := r * total
	var cum float64
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cum += w
		last = i
		if target < cum {
			return i
		}
	}
	return last
}

// WeightedKey picks a key from the distribution by cumulative probability
// over lexicographically ordered keys, where r is a uniform draw in [0, 1).
// Returns "" when no weight is positive.
func WeightedKey(m map[string]float64, r float64) string {
	keys := SortedKeys(m)
	weights := make([]float64, len(keys))
	for i, k := range keys {
		weights[i] = m[k]
	}
	idx := WeightedIndex(weights, r)
	if idx < 0 {
		return ""
	}
	return keys[idx]
}

// Clamp limits x to the interval [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
