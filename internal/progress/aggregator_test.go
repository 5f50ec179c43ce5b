// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name                                        string
		itemIndex, itemCount, phaseIndex, phaseCount int
		expected                                    int
	}{
		{"start", 0, 3, 0, 6, 0},
		{"second item second phase", 1, 3, 1, 6, 38},
		{"last phase of last item", 2, 3, 6, 6, 100},
		{"single item", 0, 1, 3, 6, 50},
		{"no items", 0, 0, 0, 6, 0},
		{"no phases", 0, 3, 0, 0, 0},
		{"clamped high", 5, 3, 0, 6, 100},
		{"clamped low", -1, 3, 0, 6, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Percent(tt.itemIndex, tt.itemCount, tt.phaseIndex, tt.phaseCount))
		})
	}
}

func TestAggregator_UniformMatchesFormula(t *testing.T) {
	a := NewAggregator(4, []float64{1, 1, 1, 1, 1, 1})

	for i := range 4 {
		for p := 0; p <= 6; p++ {
			assert.Equal(t, Percent(i, 4, p, 6), a.Percent(i, p), "item %d phase %d", i, p)
		}
	}
}

func TestAggregator_Weighted(t *testing.T) {
	a := NewAggregator(1, []float64{1, 3})

	assert.Equal(t, 0, a.Percent(0, 0))
	assert.Equal(t, 25, a.Percent(0, 1))
	assert.Equal(t, 100, a.Percent(0, 2))

	b := NewAggregator(2, []float64{1, 0, -2, 2})
	assert.Equal(t, []float64{1, 1, 1, 2}, b.weights)
	assert.Equal(t, 70, b.Percent(1, 2))
}

func TestAggregator_AdvanceIsMonotonic(t *testing.T) {
	a := NewAggregator(3, []float64{1, 2, 1})

	last := 0
	for i := range 3 {
		for p := 0; p <= 3; p++ {
			pos := a.Advance(i, p)
			assert.GreaterOrEqual(t, pos.Percent, last)
			last = pos.Percent
		}
	}

	// Going backwards never lowers the reported value.
	assert.Equal(t, last, a.Advance(0, 0).Percent)
	assert.Equal(t, 100, a.Complete().Percent)
}

func TestStatus(t *testing.T) {
	pos := Position{ItemIndex: 0, ItemCount: 3, PhaseIndex: 1, PhaseCount: 6, Percent: 42}

	assert.Equal(t, "sub-01: Coregistration | Progress: 42% (File 1/3, Phase 2/6)", Status("sub-01", "Coregistration", pos))
	assert.Equal(t, "sub-01 | Progress: 42% (File 1/3, Phase 2/6)", Status("sub-01", "", pos))

	done := Position{ItemIndex: 3, ItemCount: 3, PhaseIndex: 6, PhaseCount: 6, Percent: 100}
	assert.Equal(t, "Progress: 100% (File 3/3, Phase 6/6)", ProgressLine(done))
}
