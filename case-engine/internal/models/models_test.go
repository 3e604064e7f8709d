package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
)

func TestFlagEscalateNeverDemotes(t *testing.T) {
	assert.Equal(t, models.FlagCaution, models.FlagOK.Escalate(models.FlagCaution))
	assert.Equal(t, models.FlagBlock, models.FlagCaution.Escalate(models.FlagBlock))
	assert.Equal(t, models.FlagBlock, models.FlagBlock.Escalate(models.FlagOK))
	assert.Equal(t, models.FlagCaution, models.FlagCaution.Escalate(models.FlagOK))
	assert.Equal(t, models.FlagOK, models.Flag("").Escalate(models.FlagOK))
}

func TestParseIntake(t *testing.T) {
	raw := json.RawMessage(`{
		"context": {
			"target": " Acme Holdings ",
			"targets": ["Jane Doe", "acme holdings", 7],
			"project": {"name": "Delta", "region": "EU", "industry": "Software"},
			"scores": {"transparency": 80}
		},
		"uploadedDocs": ["due-diligence.pdf"]
	}`)
	in := models.ParseIntake(raw)
	assert.Equal(t, "Acme Holdings", in.Target)
	assert.Equal(t, "EU", in.Region)
	assert.Equal(t, "Software", in.Industry)
	assert.True(t, in.HasDocuments)
	assert.Equal(t, []string{"Acme Holdings", "Jane Doe"}, in.Names())
	assert.Equal(t, float64(80), in.Scores["transparency"])
}

func TestParseIntakeToleratesMissingAndMalformed(t *testing.T) {
	assert.Equal(t, models.Intake{}, models.ParseIntake(nil))
	assert.Equal(t, models.Intake{}, models.ParseIntake(json.RawMessage(`not json`)))

	in := models.ParseIntake(json.RawMessage(`{"context":{"target":42,"project":"flat"},"uploadedDocs":[]}`))
	assert.Empty(t, in.Target)
	assert.Empty(t, in.Region)
	assert.False(t, in.HasDocuments)
	assert.Empty(t, in.Names())
}

func TestCaseCloneIsDeep(t *testing.T) {
	c := models.Case{
		Payload: json.RawMessage(`{}`),
		Logs:    []string{"a"},
		Result: &models.Result{
			Ethics: &models.EthicsReport{Flags: []models.Finding{{Type: "PEP", Evidence: []string{"x"}}}},
			SPI:    &models.SPIResult{Weights: map[string]float64{"a": 1}},
		},
	}
	cp := c.Clone()
	cp.Logs[0] = "b"
	cp.Result.Ethics.Flags[0].Evidence[0] = "y"
	cp.Result.SPI.Weights["a"] = 2

	require.Equal(t, "a", c.Logs[0])
	require.Equal(t, "x", c.Result.Ethics.Flags[0].Evidence[0])
	require.Equal(t, float64(1), c.Result.SPI.Weights["a"])
}

func TestResultSerializesNullSPI(t *testing.T) {
	b, err := json.Marshal(models.Result{Note: "Halted for human review"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"spi":null`)
}
