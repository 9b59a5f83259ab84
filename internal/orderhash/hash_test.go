package orderhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariants_BaseRoundings(t *testing.T) {
	s := New()
	variants := s.Variants(Order{Contract: "BTC_USDT", TriggerPrice: 100000.456, Size: 2})

	assert.Contains(t, variants, "c:BTC_USDT|t:100000.46|s:2.0000")
	assert.Contains(t, variants, "c:BTC_USDT|t:100000.50|s:2.0000")
	assert.Contains(t, variants, "c:BTC_USDT|t:100000.00|s:2.0000")
}

func TestVariants_OffsetsBothDirections(t *testing.T) {
	s := New()
	variants := s.Variants(Order{Contract: "BTC_USDT", TriggerPrice: 100000, Size: 1})

	for _, off := range []float64{20, 50, 100, 200} {
		assert.Contains(t, variants, keyAt(100000+off))
		assert.Contains(t, variants, keyAt(100000-off))
	}
}

func keyAt(trigger float64) string {
	return New().Primary(Order{Contract: "BTC_USDT", TriggerPrice: trigger, Size: 1})
}

func TestVariants_TPSLVariantOnlyWhenPresent(t *testing.T) {
	s := New()
	plain := s.Variants(Order{Contract: "BTC_USDT", TriggerPrice: 100000, Size: 1})
	withLegs := s.Variants(Order{Contract: "BTC_USDT", TriggerPrice: 100000, Size: 1, TPPrice: 105000, SLPrice: 95000})

	require.Len(t, withLegs, len(plain)+1)
	assert.Contains(t, withLegs, "c:BTC_USDT|t:100000.00|s:1.0000|tp:105000.00|sl:95000.00")
}

func TestVariants_JitterWithinOffsetOverlaps(t *testing.T) {
	s := New()
	// Two renditions of the same intent 50 USD apart must share a variant.
	a := s.Variants(Order{Contract: "BTC_USDT", TriggerPrice: 100000, Size: 1})
	b := s.Variants(Order{Contract: "BTC_USDT", TriggerPrice: 100050, Size: 1})

	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	overlap := false
	for _, v := range b {
		if seen[v] {
			overlap = true
			break
		}
	}
	assert.True(t, overlap)
}

func TestVariants_NegativeSizeNormalized(t *testing.T) {
	s := New()
	assert.Equal(t,
		s.Primary(Order{Contract: "BTC_USDT", TriggerPrice: 100000, Size: -2}),
		s.Primary(Order{Contract: "BTC_USDT", TriggerPrice: 100000, Size: 2}),
	)
}

func TestFractionalOffsets(t *testing.T) {
	s := NewFractional([]float64{0.001})
	variants := s.Variants(Order{Contract: "ETH_USDT", TriggerPrice: 3000, Size: 1})

	// 0.1% of 3000 = 3 USD each way.
	assert.Contains(t, variants, "c:ETH_USDT|t:3003.00|s:1.0000")
	assert.Contains(t, variants, "c:ETH_USDT|t:2997.00|s:1.0000")
}

func TestNewFractional_EmptyFallsBackToAbsolute(t *testing.T) {
	s := NewFractional(nil)
	variants := s.Variants(Order{Contract: "BTC_USDT", TriggerPrice: 100000, Size: 1})
	assert.Contains(t, variants, keyAt(100200))
}
