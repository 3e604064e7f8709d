package ethics

import (
	"context"
	"strings"

	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
)

// LookupResult is the contract every external risk provider answers with.
// Score is in [0,1]; its meaning depends on the provider kind.
type LookupResult struct {
	Matched  bool     `json:"matched"`
	Score    float64  `json:"score"`
	Evidence []string `json:"evidence,omitempty"`
}

// SanctionsProvider screens a named party against sanctions and PEP lists.
// Score is the match confidence.
type SanctionsProvider interface {
	Lookup(ctx context.Context, name string) (LookupResult, error)
}

// CorruptionProvider returns a corruption-perception proxy for a region.
// Score is perception scaled to [0,1]; higher is cleaner.
type CorruptionProvider interface {
	Index(ctx context.Context, region string) (LookupResult, error)
}

// IndustryRiskProvider reports whether an industry is in the high-impact set.
type IndustryRiskProvider interface {
	Assess(ctx context.Context, industry string) (LookupResult, error)
}

// HumanRightsCheck returns a risk in [0,1]. The default is a constant pass.
type HumanRightsCheck func(ctx context.Context, in models.Intake) (risk float64, evidence []string, err error)

func PassHumanRights(ctx context.Context, in models.Intake) (float64, []string, error) {
	return 0, []string{"human rights screening not configured; default pass"}, nil
}

var (
	sanctionedKeywords = []string{"minister", "sanctioned", "oligarch", "warlord"}
	exposedKeywords    = []string{"senator", "governor", "ambassador", "mayor", "official"}
	lowPerception      = []string{"emerging", "offshore", "conflict", "frontier", "high-risk"}
	highImpactIndustry = []string{"mining", "oil", "gas", "defense", "extraction"}
)

const (
	heuristicBlockScore     = 0.95
	heuristicExposedScore   = 0.6
	heuristicLowPerception  = 0.30
	heuristicDefaultRegion  = 0.50
	heuristicIndustryRisk   = 0.8
	heuristicSourceEvidence = "local heuristic"
)

// HeuristicSanctions is the deterministic offline fallback for sanctions screening.
type HeuristicSanctions struct{}

func (HeuristicSanctions) Lookup(ctx context.Context, name string) (LookupResult, error) {
	lower := strings.ToLower(name)
	if kw, ok := containsAny(lower, sanctionedKeywords); ok {
		return LookupResult{Matched: true, Score: heuristicBlockScore, Evidence: []string{heuristicSourceEvidence + ": name matches " + kw}}, nil
	}
	if kw, ok := containsAny(lower, exposedKeywords); ok {
		return LookupResult{Matched: true, Score: heuristicExposedScore, Evidence: []string{heuristicSourceEvidence + ": politically exposed title " + kw}}, nil
	}
	return LookupResult{}, nil
}

// HeuristicCorruption maps well-known low-perception region descriptors to a fixed low index.
type HeuristicCorruption struct{}

func (HeuristicCorruption) Index(ctx context.Context, region string) (LookupResult, error) {
	lower := strings.ToLower(region)
	if kw, ok := containsAny(lower, lowPerception); ok {
		return LookupResult{Matched: true, Score: heuristicLowPerception, Evidence: []string{heuristicSourceEvidence + ": region descriptor " + kw}}, nil
	}
	return LookupResult{Score: heuristicDefaultRegion}, nil
}

// HeuristicIndustry does a case-insensitive substring match on the high-impact set.
type HeuristicIndustry struct{}

func (HeuristicIndustry) Assess(ctx context.Context, industry string) (LookupResult, error) {
	lower := strings.ToLower(industry)
	if kw, ok := containsAny(lower, highImpactIndustry); ok {
		return LookupResult{Matched: true, Score: heuristicIndustryRisk, Evidence: []string{"high-impact industry: " + kw}}, nil
	}
	return LookupResult{}, nil
}

func containsAny(s string, keywords []string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return kw, true
		}
	}
	return "", false
}
