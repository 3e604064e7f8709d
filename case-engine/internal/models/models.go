package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CaseStatus string

const (
	StatusPending    CaseStatus = "PENDING"
	StatusProcessing CaseStatus = "PROCESSING"
	StatusComplete   CaseStatus = "COMPLETE"
	StatusError      CaseStatus = "ERROR"
)

// IsTerminal reports whether the pipeline is finished with a case in this status.
func (s CaseStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

type Case struct {
	ID      uuid.UUID       `json:"id"`
	Payload json.RawMessage `json:"payload"`
	Status  CaseStatus      `json:"status"`
	Result  *Result         `json:"result,omitempty"`
	Logs    []string        `json:"logs"`
	Created time.Time       `json:"created"`
}

// Result is filled in stage by stage. "spi" always serializes, as null when the
// scorer has not run (or never will, after a BLOCK).
type Result struct {
	Ethics      *EthicsReport `json:"ethics,omitempty"`
	SPI         *SPIResult    `json:"spi"`
	Note        string        `json:"note,omitempty"`
	AdminReview *AdminReview  `json:"adminReview,omitempty"`
}

type AdminReview struct {
	Decision   string    `json:"decision"`
	Notes      string    `json:"notes"`
	ReviewedAt time.Time `json:"reviewedAt"`
}

type SPIResult struct {
	SPI       float64            `json:"spi"`
	CILow     float64            `json:"ciLow"`
	CIHigh    float64            `json:"ciHigh"`
	Breakdown map[string]float64 `json:"breakdown"`
	Weights   map[string]float64 `json:"weights"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (c Case) Clone() Case {
	out := c
	if c.Payload != nil {
		out.Payload = append(json.RawMessage(nil), c.Payload...)
	}
	out.Logs = append([]string(nil), c.Logs...)
	if c.Result != nil {
		r := c.Result.Clone()
		out.Result = &r
	}
	return out
}

func (r Result) Clone() Result {
	out := r
	if r.Ethics != nil {
		e := *r.Ethics
		e.Flags = make([]Finding, len(r.Ethics.Flags))
		for i, f := range r.Ethics.Flags {
			f.Evidence = append([]string(nil), f.Evidence...)
			e.Flags[i] = f
		}
		e.Mitigation = append([]string(nil), r.Ethics.Mitigation...)
		out.Ethics = &e
	}
	if r.SPI != nil {
		s := *r.SPI
		s.Breakdown = copyFloats(r.SPI.Breakdown)
		s.Weights = copyFloats(r.SPI.Weights)
		out.SPI = &s
	}
	if r.AdminReview != nil {
		a := *r.AdminReview
		out.AdminReview = &a
	}
	return out
}

func copyFloats(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
