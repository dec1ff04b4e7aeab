package infer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/apiscout/pkg/types"
)

func TestDetectPattern(t *testing.T) {
	tests := []struct {
		name   string
		values []int64
		want   Pattern
	}{
		{"progression", []int64{10, 20, 30, 40}, Pattern{Kind: types.DomainArithmetic, Step: 10, Min: 10, Max: 40}},
		{"mostly multiples", []int64{3, 6, 9, 12, 100}, Pattern{Kind: types.DomainMultipleOf, Step: 3, Min: 3, Max: 100}},
		{"noise", []int64{1, 7, 2, 9}, Pattern{Kind: types.DomainUnconstrained, Min: 1, Max: 9}},
		{"unit step", []int64{1, 2, 3}, Pattern{Kind: types.DomainArithmetic, Step: 1, Min: 1, Max: 3}},
		{"descending", []int64{30, 20, 10}, Pattern{Kind: types.DomainArithmetic, Step: -10, Min: 10, Max: 30}},
		{"constant", []int64{5, 5, 5}, Pattern{Kind: types.DomainConstant, Min: 5, Max: 5}},
		{"single value", []int64{8}, Pattern{Kind: types.DomainUnconstrained, Min: 8, Max: 8}},
		{"empty", nil, Pattern{Kind: types.DomainUnconstrained}},
		// a later difference divides every value
		{"later divisor", []int64{8, 16, 24, 28}, Pattern{Kind: types.DomainMultipleOf, Step: 4, Min: 8, Max: 28}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPattern(tt.values, 0.8, 0.8))
		})
	}
}

func TestDetectPatternThresholds(t *testing.T) {
	values := []int64{3, 6, 9, 12, 100}
	assert.Equal(t, types.DomainUnconstrained, DetectPattern(values, 0.9, 0.9).Kind)
	assert.Equal(t, types.DomainArithmetic, DetectPattern(values, 0.9, 0.75).Kind)
}
