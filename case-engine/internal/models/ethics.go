package models

import "time"

// Flag is the gate verdict. Severity is totally ordered: BLOCK > CAUTION > OK.
type Flag string

const (
	FlagOK      Flag = "OK"
	FlagCaution Flag = "CAUTION"
	FlagBlock   Flag = "BLOCK"
)

func (f Flag) Severity() int {
	switch f {
	case FlagBlock:
		return 2
	case FlagCaution:
		return 1
	default:
		return 0
	}
}

// Escalate returns the more severe of f and other; a flag never moves down.
func (f Flag) Escalate(other Flag) Flag {
	if other.Severity() > f.Severity() {
		return other
	}
	if f == "" {
		return FlagOK
	}
	return f
}

type EthicsReport struct {
	OverallScore int             `json:"overallScore"`
	OverallFlag  Flag            `json:"overallFlag"`
	Breakdown    EthicsBreakdown `json:"breakdown"`
	Flags        []Finding       `json:"flags"`
	Mitigation   []string        `json:"mitigation"`
	Timestamp    time.Time       `json:"timestamp"`
	Version      string          `json:"version"`
}

type EthicsBreakdown struct {
	Sanctions     int `json:"sanctions"`
	PEP           int `json:"pep"`
	Corruption    int `json:"corruption"`
	Environmental int `json:"environmental"`
	HumanRights   int `json:"humanRights"`
}

type Finding struct {
	Type     string   `json:"type"`
	Severity Flag     `json:"severity"`
	Evidence []string `json:"evidence"`
}
