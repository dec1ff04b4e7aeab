package infer

import "github.com/yourorg/apiscout/pkg/types"

// Pattern is the outcome of DetectPattern.
type Pattern struct {
	Kind types.DomainKind
	Step int64
	Min  int64
	Max  int64
}

// DetectPattern characterizes an ordered sequence of parameter values.
//
// The multiples test walks the successive differences in order and accepts
// the first nonzero d, other than 1 and -1, that divides at least
// multiplesThreshold of all values. The arithmetic test accepts the most
// frequent difference when its share of all differences reaches
// arithmeticThreshold; ties go to the difference seen first. Multiples win
// unless the divisor equals the magnitude of the arithmetic step, in which
// case the progression is the sharper description. A zero step is a
// constant. Fewer than two values are unconstrained.
func DetectPattern(values []int64, multiplesThreshold, arithmeticThreshold float64) Pattern {
	p := Pattern{Kind: types.DomainUnconstrained}
	if len(values) == 0 {
		return p
	}
	p.Min, p.Max = values[0], values[0]
	for _, v := range values[1:] {
		p.Min = min(p.Min, v)
		p.Max = max(p.Max, v)
	}
	if len(values) < 2 {
		return p
	}

	diffs := make([]int64, len(values)-1)
	for i := 1; i < len(values); i++ {
		diffs[i-1] = values[i] - values[i-1]
	}

	divisor, isMultiple := multiplesOf(values, diffs, multiplesThreshold)
	step, isArithmetic := commonStep(diffs, arithmeticThreshold)

	switch {
	case isMultiple && isArithmetic && divisor == abs(step):
		p.Kind, p.Step = types.DomainArithmetic, step
	case isMultiple:
		p.Kind, p.Step = types.DomainMultipleOf, divisor
	case isArithmetic && step == 0:
		p.Kind = types.DomainConstant
	case isArithmetic:
		p.Kind, p.Step = types.DomainArithmetic, step
	}
	return p
}

func multiplesOf(values, diffs []int64, threshold float64) (int64, bool) {
	for _, d := range diffs {
		if d == 0 || d == 1 || d == -1 {
			continue
		}
		divisible := 0
		for _, v := range values {
			if v%d == 0 {
				divisible++
			}
		}
		if float64(divisible)/float64(len(values)) >= threshold {
			return abs(d), true
		}
	}
	return 0, false
}

func commonStep(diffs []int64, threshold float64) (int64, bool) {
	counts := make(map[int64]int, len(diffs))
	var best int64
	bestCount := 0
	for _, d := range diffs {
		counts[d]++
	}
	for _, d := range diffs {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best, float64(bestCount)/float64(len(diffs)) >= threshold
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
