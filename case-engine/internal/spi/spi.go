// Package spi computes the Success Probability Index, a weighted composite of
// seven normalized sub-scores with a transparency-driven confidence band.
package spi

import (
	"math"
	"strconv"
	"strings"

	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
)

const (
	StrategicFit       = "strategicFit"
	FinancialHealth    = "financialHealth"
	MarketAccess       = "marketAccess"
	PartnerReliability = "partnerReliability"
	ExecutionCapacity  = "executionCapacity"
	RegulatoryClarity  = "regulatoryClarity"
	Transparency       = "transparency"

	defaultSubScore = 50.0
	maxMargin       = 12.0
)

// Components lists the sub-scores in a fixed order.
var Components = []string{
	StrategicFit,
	FinancialHealth,
	MarketAccess,
	PartnerReliability,
	ExecutionCapacity,
	RegulatoryClarity,
	Transparency,
}

func DefaultWeights() map[string]float64 {
	return map[string]float64{
		StrategicFit:       0.20,
		FinancialHealth:    0.20,
		MarketAccess:       0.15,
		PartnerReliability: 0.15,
		ExecutionCapacity:  0.10,
		RegulatoryClarity:  0.10,
		Transparency:       0.10,
	}
}

// Inputs carries raw, loosely typed sub-scores and an optional weight override.
// Unknown keys are ignored.
type Inputs struct {
	Scores  map[string]interface{}
	Weights map[string]interface{}
}

func InputsFromIntake(in models.Intake) Inputs {
	return Inputs{Scores: in.Scores, Weights: in.Weights}
}

// Compute is pure: the same Inputs always produce the same SPIResult.
func Compute(in Inputs) models.SPIResult {
	breakdown := make(map[string]float64, len(Components))
	for _, name := range Components {
		v, ok := toFloat(in.Scores[name])
		if !ok {
			v = defaultSubScore
		}
		breakdown[name] = clamp(v, 0, 100)
	}

	weights := Normalize(in.Weights)
	total := 0.0
	for _, name := range Components {
		total += breakdown[name] * weights[name]
	}
	score := round2(total)
	margin := maxMargin * (1 - breakdown[Transparency]/100)

	return models.SPIResult{
		SPI:       score,
		CILow:     round2(score - margin),
		CIHigh:    round2(score + margin),
		Breakdown: breakdown,
		Weights:   weights,
	}
}

// Normalize returns a weight vector over Components that sums to 1.0. A
// caller-supplied set replaces the defaults entirely (missing, negative or
// non-numeric entries count as 0); if it sums to 0 the defaults are used.
func Normalize(raw map[string]interface{}) map[string]float64 {
	weights := DefaultWeights()
	if len(raw) > 0 {
		custom := make(map[string]float64, len(Components))
		peak := 0.0
		for _, name := range Components {
			v, ok := toFloat(raw[name])
			if !ok || v < 0 {
				v = 0
			}
			custom[name] = v
			peak = math.Max(peak, v)
		}
		// scale by the largest weight first so the sum below cannot overflow
		if peak > 0 {
			for name, v := range custom {
				custom[name] = v / peak
			}
			weights = custom
		}
	}
	sum := 0.0
	for _, name := range Components {
		sum += weights[name]
	}
	out := make(map[string]float64, len(Components))
	for _, name := range Components {
		out[name] = weights[name] / sum
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
