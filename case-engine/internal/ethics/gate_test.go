package ethics_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/Venture/case-engine/internal/ethics"
	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newGate(cfg ethics.Config) *ethics.Gate {
	cfg.Now = func() time.Time { return fixedNow }
	return ethics.NewGate(cfg)
}

func evaluate(t *testing.T, g *ethics.Gate, payload string) models.EthicsReport {
	t.Helper()
	report, err := g.Evaluate(context.Background(), json.RawMessage(payload))
	require.NoError(t, err)
	return report
}

func findingTypes(r models.EthicsReport) []string {
	out := make([]string, 0, len(r.Flags))
	for _, f := range r.Flags {
		out = append(out, f.Type)
	}
	return out
}

func TestSanctionedTargetBlocks(t *testing.T) {
	r := evaluate(t, newGate(ethics.Config{}), `{"context":{"target":"Minister X"}}`)
	assert.Equal(t, models.FlagBlock, r.OverallFlag)
	assert.Equal(t, []string{"Sanctions"}, findingTypes(r))
	assert.Equal(t, 0, r.Breakdown.Sanctions)
	assert.Equal(t, 0, r.Breakdown.PEP)
	assert.Equal(t, 60, r.OverallScore)
	assert.Len(t, r.Mitigation, 2)
	assert.Equal(t, ethics.Version, r.Version)
	assert.Equal(t, fixedNow, r.Timestamp)
}

func TestCleanPayloadIsOK(t *testing.T) {
	r := evaluate(t, newGate(ethics.Config{}), `{"context":{"project":{"industry":"Software","region":"EU"}}}`)
	assert.Equal(t, models.FlagOK, r.OverallFlag)
	assert.Empty(t, r.Flags)
	assert.Equal(t, 100, r.OverallScore)
	assert.Equal(t, models.EthicsBreakdown{Sanctions: 100, PEP: 100, Corruption: 100, Environmental: 100, HumanRights: 100}, r.Breakdown)
	assert.Equal(t, ethics.Mitigation(models.FlagOK), r.Mitigation)
	assert.Len(t, r.Mitigation, 1)
}

func TestLowPerceptionRegionCautions(t *testing.T) {
	r := evaluate(t, newGate(ethics.Config{}), `{"context":{"project":{"region":"Emerging Market X"}}}`)
	assert.Equal(t, models.FlagCaution, r.OverallFlag)
	assert.Equal(t, []string{"Corruption"}, findingTypes(r))
	assert.Equal(t, 40, r.Breakdown.Corruption)
	assert.Equal(t, 82, r.OverallScore)
	assert.Len(t, r.Mitigation, 2)
}

func TestExposedPersonCautionsButNeverBlocks(t *testing.T) {
	r := evaluate(t, newGate(ethics.Config{}), `{"context":{"target":"Senator Y"}}`)
	assert.Equal(t, models.FlagCaution, r.OverallFlag)
	assert.Equal(t, []string{"PEP"}, findingTypes(r))
	assert.Equal(t, 50, r.Breakdown.Sanctions)
	assert.Equal(t, r.Breakdown.Sanctions, r.Breakdown.PEP)
}

func TestMultipleCautionFindingsCoexist(t *testing.T) {
	r := evaluate(t, newGate(ethics.Config{}), `{"context":{"target":"Governor Z","project":{"region":"offshore"}}}`)
	assert.Equal(t, models.FlagCaution, r.OverallFlag)
	assert.ElementsMatch(t, []string{"Corruption", "PEP"}, findingTypes(r))
}

func TestHighImpactIndustryWithoutDocumentsBlocks(t *testing.T) {
	g := newGate(ethics.Config{})

	r := evaluate(t, g, `{"context":{"project":{"industry":"Open-pit MINING","region":"EU"}}}`)
	assert.Equal(t, models.FlagBlock, r.OverallFlag)
	assert.Equal(t, []string{"High-Risk Industry"}, findingTypes(r))
	assert.Equal(t, 20, r.Breakdown.Environmental)
	assert.Equal(t, 76, r.OverallScore)

	withDocs := evaluate(t, g, `{"uploadedDocs":["plan.pdf"],"context":{"project":{"industry":"Mining","region":"EU"}}}`)
	assert.Equal(t, models.FlagOK, withDocs.OverallFlag)
	assert.Equal(t, 20, withDocs.Breakdown.Environmental)
	assert.Equal(t, r.OverallScore, withDocs.OverallScore)
}

func TestBlockSuppressesCautionChecks(t *testing.T) {
	r := evaluate(t, newGate(ethics.Config{}), `{"context":{"project":{"industry":"oil","region":"conflict zone"}}}`)
	assert.Equal(t, models.FlagBlock, r.OverallFlag)
	assert.Equal(t, []string{"High-Risk Industry"}, findingTypes(r))
	assert.Equal(t, 40, r.Breakdown.Corruption)
}

func TestCorruptionOnlyMovesOKToCaution(t *testing.T) {
	g := newGate(ethics.Config{})
	bases := []string{
		`"target":"Acme Ltd","project":{"industry":"Software","region":"%s"}`,
		`"target":"Warlord Q","project":{"industry":"Software","region":"%s"}`,
		`"target":"Acme Ltd","project":{"industry":"gas","region":"%s"}`,
		`"target":"Mayor P","project":{"industry":"Software","region":"%s"}`,
	}
	for _, base := range bases {
		clean := evaluate(t, g, "{\"context\":{"+strings.Replace(base, "%s", "EU", 1)+"}}")
		risky := evaluate(t, g, "{\"context\":{"+strings.Replace(base, "%s", "frontier", 1)+"}}")
		switch clean.OverallFlag {
		case models.FlagOK:
			assert.Equal(t, models.FlagCaution, risky.OverallFlag, base)
		default:
			assert.Equal(t, clean.OverallFlag, risky.OverallFlag, base)
		}
	}
}

func TestMalformedPayloadEvaluatesCleanly(t *testing.T) {
	for _, payload := range []string{`{}`, `null`, `[1,2]`, `{"context":"nope"}`, `{"context":{"project":7}}`} {
		r := evaluate(t, newGate(ethics.Config{}), payload)
		assert.Equal(t, models.FlagOK, r.OverallFlag, payload)
	}
}

type failingSanctions struct{ calls int }

func (f *failingSanctions) Lookup(ctx context.Context, name string) (ethics.LookupResult, error) {
	f.calls++
	return ethics.LookupResult{}, errors.New("dial tcp: connection refused")
}

func TestProviderFailureFallsBackToHeuristic(t *testing.T) {
	provider := &failingSanctions{}
	r := evaluate(t, newGate(ethics.Config{Sanctions: provider}), `{"context":{"target":"Minister X"}}`)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, models.FlagBlock, r.OverallFlag)
	require.Len(t, r.Flags, 1)
	assert.Contains(t, strings.Join(r.Flags[0].Evidence, "\n"), "provider unavailable")
}

type staticCorruption struct{ score float64 }

func (s staticCorruption) Index(ctx context.Context, region string) (ethics.LookupResult, error) {
	return ethics.LookupResult{Matched: true, Score: s.score, Evidence: []string{"static index"}}, nil
}

func TestConfiguredProviderOverridesHeuristic(t *testing.T) {
	r := evaluate(t, newGate(ethics.Config{Corruption: staticCorruption{score: 0.2}}), `{"context":{"project":{"region":"EU"}}}`)
	assert.Equal(t, models.FlagCaution, r.OverallFlag)
	assert.Contains(t, r.Flags[0].Evidence, "static index")
}

type unindexedCorruption struct{ regions []string }

func (u *unindexedCorruption) Index(ctx context.Context, region string) (ethics.LookupResult, error) {
	u.regions = append(u.regions, region)
	return ethics.LookupResult{Matched: false}, nil
}

func TestUnmatchedRegionUsesDefaultPerception(t *testing.T) {
	provider := &unindexedCorruption{}
	g := newGate(ethics.Config{Corruption: provider})

	r := evaluate(t, g, `{"context":{"project":{"region":"Atlantis"}}}`)
	assert.Equal(t, models.FlagOK, r.OverallFlag)
	assert.Equal(t, 100, r.Breakdown.Corruption)
	assert.Equal(t, []string{"Atlantis"}, provider.regions)

	r = evaluate(t, g, `{"context":{"target":"Acme"}}`)
	assert.Equal(t, models.FlagOK, r.OverallFlag)
	assert.Equal(t, []string{"Atlantis"}, provider.regions, "empty region must not reach the provider")
}

type blockingCorruption struct{}

func (blockingCorruption) Index(ctx context.Context, region string) (ethics.LookupResult, error) {
	<-ctx.Done()
	return ethics.LookupResult{}, ctx.Err()
}

func TestCancellationFailsEvaluation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newGate(ethics.Config{Corruption: blockingCorruption{}}).Evaluate(ctx, json.RawMessage(`{"context":{"project":{"region":"EU"}}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHumanRightsCheckIsOverridable(t *testing.T) {
	check := func(ctx context.Context, in models.Intake) (float64, []string, error) {
		return 0.25, []string{"supplier audit pending"}, nil
	}
	r := evaluate(t, newGate(ethics.Config{HumanRights: check}), `{}`)
	assert.Equal(t, 75, r.Breakdown.HumanRights)
	assert.Equal(t, models.FlagOK, r.OverallFlag)
	assert.Equal(t, 100, r.OverallScore)
}

func TestHumanRightsErrorIsAbsorbed(t *testing.T) {
	check := func(ctx context.Context, in models.Intake) (float64, []string, error) {
		return 0, nil, errors.New("registry offline")
	}
	r := evaluate(t, newGate(ethics.Config{HumanRights: check}), `{}`)
	assert.Equal(t, 100, r.Breakdown.HumanRights)
}

func TestPanickingCheckFailsEvaluation(t *testing.T) {
	check := func(ctx context.Context, in models.Intake) (float64, []string, error) {
		panic("boom")
	}
	_, err := newGate(ethics.Config{HumanRights: check}).Evaluate(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "human rights check panicked")
}

func TestMitigationIsCopied(t *testing.T) {
	steps := ethics.Mitigation(models.FlagBlock)
	steps[0] = "changed"
	assert.NotEqual(t, "changed", ethics.Mitigation(models.FlagBlock)[0])
}
