package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// Property-based range-check coverage, in the style of the retrieval
// pack's rapid.Check usage: instead of enumerating boundary cases by
// hand, draw arbitrary ints and assert SetFrequency/SetSymbolRate only
// ever accept a value inside spec.md §8's closed range and only ever
// reject one outside it.
func TestSetFrequency_AcceptsIffInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		khz := rapid.IntRange(FreqMinKHz-1000, FreqMaxKHz+1000).Draw(t, "khz")

		cfg := New()
		err := cfg.SetFrequency(Tuner1, khz)

		inRange := khz >= FreqMinKHz && khz <= FreqMaxKHz
		assert.Equal(t, inRange, err == nil)
	})
}

func TestSetSymbolRate_AcceptsIffInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ksps := rapid.IntRange(SrMinKsps-100, SrMaxKsps+100).Draw(t, "ksps")

		cfg := New()
		err := cfg.SetSymbolRate(Tuner1, ksps)

		inRange := ksps >= SrMinKsps && ksps <= SrMaxKsps
		assert.Equal(t, inRange, err == nil)
	})
}

func TestSetTsTimeout_AcceptsDisableOrAboveFloor(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ms := rapid.IntRange(TsTimeoutOffVal-10, TsTimeoutMinMs+1000).Draw(t, "ms")

		cfg := New()
		err := cfg.SetTsTimeout(Tuner1, ms)

		accepted := ms == TsTimeoutOffVal || ms > TsTimeoutMinMs
		assert.Equal(t, accepted, err == nil)
	})
}
