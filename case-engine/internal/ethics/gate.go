// Package ethics implements the compliance gate that runs ahead of scoring.
// Four independent sub-checks (sanctions/PEP, corruption, environmental,
// human rights) run concurrently and are folded into one verdict.
package ethics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
)

const (
	Version = "ethics-gate/1.0"

	sanctionsBlockScore    = 0.8
	pepRisk                = 0.5
	corruptionThreshold    = 40.0
	corruptionRisk         = 0.6
	environmentalRisk      = 0.8
	environmentalBlockRisk = 0.7
	corruptionCautionRisk  = 0.5
)

var mitigationSteps = map[models.Flag][]string{
	models.FlagBlock: {
		"Halt engagement and escalate to the compliance officer for manual review",
		"Obtain documented clearance of sanctions or high-impact industry exposure before any further step",
	},
	models.FlagCaution: {
		"Run enhanced due diligence on the flagged parties and jurisdiction",
		"Attach a mitigation plan with supporting documents before approval",
	},
	models.FlagOK: {
		"Proceed with standard monitoring",
	},
}

// Mitigation returns the fixed next steps for a flag.
func Mitigation(flag models.Flag) []string {
	return append([]string(nil), mitigationSteps[flag]...)
}

type Config struct {
	Sanctions   SanctionsProvider
	Corruption  CorruptionProvider
	Industry    IndustryRiskProvider
	HumanRights HumanRightsCheck
	Now         func() time.Time
}

// Gate evaluates a payload. Missing providers fall back to the local heuristics.
type Gate struct {
	sanctions   SanctionsProvider
	corruption  CorruptionProvider
	industry    IndustryRiskProvider
	humanRights HumanRightsCheck
	now         func() time.Time
}

func NewGate(cfg Config) *Gate {
	g := &Gate{
		sanctions:   cfg.Sanctions,
		corruption:  cfg.Corruption,
		industry:    cfg.Industry,
		humanRights: cfg.HumanRights,
		now:         cfg.Now,
	}
	if g.humanRights == nil {
		g.humanRights = PassHumanRights
	}
	if g.now == nil {
		g.now = func() time.Time { return time.Now().UTC() }
	}
	return g
}

type checkOutcome struct {
	risk     float64
	isBlock  bool
	evidence []string
}

func (o checkOutcome) score() int {
	return riskScore(o.risk)
}

func riskScore(risk float64) int {
	return int(math.Round((1 - risk) * 100))
}

// Evaluate runs the four sub-checks concurrently and aggregates them. Provider
// failures are absorbed into evidence; only cancellation or a panicking check
// fails the call.
func (g *Gate) Evaluate(ctx context.Context, payload json.RawMessage) (models.EthicsReport, error) {
	in := models.ParseIntake(payload)

	var sanctions, corruption, environmental, humanRights checkOutcome
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(guard("sanctions", func() (err error) {
		sanctions, err = g.checkSanctions(egCtx, in)
		return err
	}))
	eg.Go(guard("corruption", func() (err error) {
		corruption, err = g.checkCorruption(egCtx, in)
		return err
	}))
	eg.Go(guard("environmental", func() (err error) {
		environmental, err = g.checkEnvironmental(egCtx, in)
		return err
	}))
	eg.Go(guard("human rights", func() (err error) {
		humanRights, err = g.checkHumanRights(egCtx, in)
		return err
	}))
	if err := eg.Wait(); err != nil {
		return models.EthicsReport{}, fmt.Errorf("ethics gate: %w", err)
	}

	return aggregate(in, sanctions, corruption, environmental, humanRights, g.now()), nil
}

func guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s check panicked: %v", name, r)
			}
		}()
		return fn()
	}
}

func aggregate(in models.Intake, sanctions, corruption, environmental, humanRights checkOutcome, now time.Time) models.EthicsReport {
	flag := models.FlagOK
	var findings []models.Finding

	// TODO: any document indicator lifts the high-risk industry block today; verify the
	// uploaded documents cover the flagged industry before treating them as mitigation.
	if sanctions.isBlock {
		flag = flag.Escalate(models.FlagBlock)
		findings = append(findings, models.Finding{Type: "Sanctions", Severity: models.FlagBlock, Evidence: sanctions.evidence})
	} else if environmental.risk > environmentalBlockRisk && !in.HasDocuments {
		flag = flag.Escalate(models.FlagBlock)
		evidence := append(append([]string(nil), environmental.evidence...), "no mitigation documents on file")
		findings = append(findings, models.Finding{Type: "High-Risk Industry", Severity: models.FlagBlock, Evidence: evidence})
	}

	if flag != models.FlagBlock {
		if corruption.risk > corruptionCautionRisk {
			flag = flag.Escalate(models.FlagCaution)
			findings = append(findings, models.Finding{Type: "Corruption", Severity: models.FlagCaution, Evidence: corruption.evidence})
		}
		if sanctions.risk > 0 && !sanctions.isBlock {
			flag = flag.Escalate(models.FlagCaution)
			findings = append(findings, models.Finding{Type: "PEP", Severity: models.FlagCaution, Evidence: sanctions.evidence})
		}
	}

	sanctionsScore := sanctions.score()
	corruptionScore := corruption.score()
	envScore := environmental.score()
	overall := int(math.Round(0.4*float64(sanctionsScore) + 0.3*float64(corruptionScore) + 0.3*float64(envScore)))

	if findings == nil {
		findings = []models.Finding{}
	}
	return models.EthicsReport{
		OverallScore: overall,
		OverallFlag:  flag,
		Breakdown: models.EthicsBreakdown{
			Sanctions:     sanctionsScore,
			PEP:           sanctionsScore,
			Corruption:    corruptionScore,
			Environmental: envScore,
			HumanRights:   humanRights.score(),
		},
		Flags:      findings,
		Mitigation: Mitigation(flag),
		Timestamp:  now,
		Version:    Version,
	}
}

func (g *Gate) checkSanctions(ctx context.Context, in models.Intake) (checkOutcome, error) {
	var out checkOutcome
	for _, name := range in.Names() {
		res, err := lookupOrFallback[SanctionsProvider](ctx, name, g.sanctions, HeuristicSanctions{}, &out.evidence,
			func(ctx context.Context, p SanctionsProvider, q string) (LookupResult, error) { return p.Lookup(ctx, q) })
		if err != nil {
			return checkOutcome{}, err
		}
		if !res.Matched {
			continue
		}
		out.evidence = append(out.evidence, fmt.Sprintf("%s: match score %.2f", name, res.Score))
		out.evidence = append(out.evidence, res.Evidence...)
		if res.Score > sanctionsBlockScore {
			out.isBlock = true
			out.risk = 1.0
		} else {
			out.risk = math.Max(out.risk, pepRisk)
		}
	}
	return out, nil
}

func (g *Gate) checkCorruption(ctx context.Context, in models.Intake) (checkOutcome, error) {
	var out checkOutcome
	provider := g.corruption
	if in.Region == "" {
		provider = nil
	}
	res, err := lookupOrFallback[CorruptionProvider](ctx, in.Region, provider, HeuristicCorruption{}, &out.evidence,
		func(ctx context.Context, p CorruptionProvider, q string) (LookupResult, error) { return p.Index(ctx, q) })
	if err != nil {
		return checkOutcome{}, err
	}
	// an unmatched region carries no perception score
	if !res.Matched && res.Score == 0 {
		res.Score = heuristicDefaultRegion
		out.evidence = append(out.evidence, "region not indexed by provider; default perception used")
	}
	index := math.Round(clampUnit(res.Score) * 100)
	out.evidence = append(out.evidence, fmt.Sprintf("corruption perception index %.0f", index))
	out.evidence = append(out.evidence, res.Evidence...)
	if index < corruptionThreshold {
		out.risk = corruptionRisk
	}
	return out, nil
}

func (g *Gate) checkEnvironmental(ctx context.Context, in models.Intake) (checkOutcome, error) {
	var out checkOutcome
	res, err := lookupOrFallback[IndustryRiskProvider](ctx, in.Industry, g.industry, HeuristicIndustry{}, &out.evidence,
		func(ctx context.Context, p IndustryRiskProvider, q string) (LookupResult, error) { return p.Assess(ctx, q) })
	if err != nil {
		return checkOutcome{}, err
	}
	if res.Matched {
		out.risk = environmentalRisk
		out.evidence = append(out.evidence, res.Evidence...)
	}
	return out, nil
}

func (g *Gate) checkHumanRights(ctx context.Context, in models.Intake) (checkOutcome, error) {
	risk, evidence, err := g.humanRights(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return checkOutcome{}, ctx.Err()
		}
		return checkOutcome{evidence: []string{"human rights check unavailable: " + err.Error()}}, nil
	}
	return checkOutcome{risk: clampUnit(risk), evidence: evidence}, nil
}

// lookupOrFallback calls the configured provider, degrading to the local
// heuristic when it is absent or fails. Cancellation is the only error returned.
func lookupOrFallback[P any](ctx context.Context, query string, provider P, fallback P, evidence *[]string,
	call func(context.Context, P, string) (LookupResult, error)) (LookupResult, error) {
	if any(provider) == nil {
		return call(ctx, fallback, query)
	}
	res, err := call(ctx, provider, query)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return LookupResult{}, ctx.Err()
	}
	*evidence = append(*evidence, "provider unavailable, used local heuristic: "+err.Error())
	return call(ctx, fallback, query)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
