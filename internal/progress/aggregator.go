// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"fmt"
	"math"
	"sync"
)

// Percent returns the overall completion of a batch of itemCount items with
// phaseCount phases each, when phaseIndex phases of item itemIndex are done:
//
//	100 * (itemIndex*phaseCount + phaseIndex) / (itemCount*phaseCount)
//
// The result is clamped to [0, 100].
func Percent(itemIndex, itemCount, phaseIndex, phaseCount int) int {
	if itemCount <= 0 || phaseCount <= 0 {
		return 0
	}

	return clamp(100 * (itemIndex*phaseCount + phaseIndex) / (itemCount * phaseCount))
}

func clamp(p int) int {
	return max(0, min(100, p))
}

// Aggregator turns (item, phase) positions into a percentage that never decreases.
// Phases can carry relative weights; uniform weights give the same result as Percent.
type Aggregator struct {
	itemCount int
	weights   []float64
	cum       []float64 // cum[p] is the weight of phases before p
	uniform   bool

	mu   sync.Mutex
	high int
}

// NewAggregator creates an aggregator for itemCount items. weights holds one
// entry per phase; non-positive entries count as 1.
func NewAggregator(itemCount int, weights []float64) *Aggregator {
	a := &Aggregator{
		itemCount: itemCount,
		weights:   make([]float64, len(weights)),
		cum:       make([]float64, len(weights)+1),
		uniform:   true,
	}

	for i, w := range weights {
		if w <= 0 {
			w = 1
		}

		a.weights[i] = w
		a.cum[i+1] = a.cum[i] + w

		if i > 0 && w != a.weights[0] {
			a.uniform = false
		}
	}

	return a
}

// PhaseCount returns the number of phases per item.
func (a *Aggregator) PhaseCount() int {
	return len(a.weights)
}

// Percent returns the completion for the position without touching the high-water mark.
func (a *Aggregator) Percent(itemIndex, phaseIndex int) int {
	phaseCount := len(a.weights)
	if a.itemCount <= 0 || phaseCount == 0 {
		return 0
	}

	if a.uniform {
		return Percent(itemIndex, a.itemCount, phaseIndex, phaseCount)
	}

	phaseIndex = max(0, min(phaseCount, phaseIndex))
	frac := (float64(itemIndex) + a.cum[phaseIndex]/a.cum[phaseCount]) / float64(a.itemCount)

	return clamp(int(math.Floor(100*frac + 1e-9)))
}

// Advance records the position and returns it with a percentage that is at
// least the highest one returned so far.
func (a *Aggregator) Advance(itemIndex, phaseIndex int) Position {
	p := a.Percent(itemIndex, phaseIndex)

	a.mu.Lock()
	if p > a.high {
		a.high = p
	}

	p = a.high
	a.mu.Unlock()

	return Position{
		ItemIndex:  itemIndex,
		ItemCount:  a.itemCount,
		PhaseIndex: phaseIndex,
		PhaseCount: len(a.weights),
		Percent:    p,
	}
}

// Complete moves the aggregator to 100%.
func (a *Aggregator) Complete() Position {
	a.mu.Lock()
	a.high = 100
	a.mu.Unlock()

	return Position{
		ItemIndex:  a.itemCount,
		ItemCount:  a.itemCount,
		PhaseIndex: len(a.weights),
		PhaseCount: len(a.weights),
		Percent:    100,
	}
}

// ProgressLine formats the position as "Progress: 42% (File 1/3, Phase 2/6)".
// Counters are 1-based.
func ProgressLine(pos Position) string {
	file := min(pos.ItemIndex+1, max(pos.ItemCount, 1))
	phase := min(pos.PhaseIndex+1, max(pos.PhaseCount, 1))

	return fmt.Sprintf("Progress: %d%% (File %d/%d, Phase %d/%d)",
		pos.Percent, file, pos.ItemCount, phase, pos.PhaseCount)
}

// Status formats a one line status, e.g.
// "sub-01: Coregistration | Progress: 42% (File 1/3, Phase 2/6)".
func Status(itemLabel, phaseLabel string, pos Position) string {
	if phaseLabel == "" {
		return fmt.Sprintf("%s | %s", itemLabel, ProgressLine(pos))
	}

	return fmt.Sprintf("%s: %s | %s", itemLabel, phaseLabel, ProgressLine(pos))
}
