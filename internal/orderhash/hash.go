// Package orderhash fingerprints trigger orders by their economically
// material fields. Membership of any variant in the hash cache marks two
// orders as the same economic intent, which is what prevents re-mirroring
// across tick-level churn and cross-venue trigger-price jitter.
package orderhash

import (
	"fmt"
	"math"
)

// DefaultOffsets are the absolute USD trigger-price offsets absorbed by
// the variant set. They suit BTC-scale symbols; far from that scale the
// fractional scheme should be configured instead.
var DefaultOffsets = []float64{20, 50, 100, 200}

// Scheme generates canonical hash variants for an order.
type Scheme struct {
	offsets   []float64
	fractions []float64 // when set, offsets become trigger*fraction
}

// New creates a scheme with absolute USD offsets.
func New() *Scheme {
	return &Scheme{offsets: DefaultOffsets}
}

// NewFractional creates a scheme whose offsets are fractions of the
// trigger price.
func NewFractional(fractions []float64) *Scheme {
	if len(fractions) == 0 {
		return New()
	}
	return &Scheme{fractions: fractions}
}

// Order is the subset of trigger-order fields that enter the hash.
type Order struct {
	Contract     string
	TriggerPrice float64
	Size         float64
	TPPrice      float64
	SLPrice      float64
}

// Variants returns every canonical hash for the order: the base tuple at
// 2, 1, and 0 decimals, a TP/SL-aware variant when legs are present, and
// the trigger price shifted by each offset in both directions.
func (s *Scheme) Variants(o Order) []string {
	size := math.Abs(o.Size)
	variants := []string{
		key(o.Contract, round(o.TriggerPrice, 2), size),
		key(o.Contract, round(o.TriggerPrice, 1), size),
		key(o.Contract, round(o.TriggerPrice, 0), size),
	}
	if o.TPPrice > 0 || o.SLPrice > 0 {
		variants = append(variants, fmt.Sprintf("%s|tp:%.2f|sl:%.2f",
			key(o.Contract, round(o.TriggerPrice, 2), size), o.TPPrice, o.SLPrice))
	}
	for _, off := range s.offsetsFor(o.TriggerPrice) {
		variants = append(variants,
			key(o.Contract, round(o.TriggerPrice+off, 0), size),
			key(o.Contract, round(o.TriggerPrice-off, 0), size),
		)
	}
	return variants
}

// Primary returns the exact-price hash, used as the stable identity of a
// placed mirror.
func (s *Scheme) Primary(o Order) string {
	return key(o.Contract, round(o.TriggerPrice, 2), math.Abs(o.Size))
}

func (s *Scheme) offsetsFor(trigger float64) []float64 {
	if len(s.fractions) == 0 {
		return s.offsets
	}
	offsets := make([]float64, len(s.fractions))
	for i, f := range s.fractions {
		offsets[i] = trigger * f
	}
	return offsets
}

func key(contract string, trigger, size float64) string {
	return fmt.Sprintf("c:%s|t:%.2f|s:%.4f", contract, trigger, size)
}

func round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
