package models

import (
	"encoding/json"
	"strings"
)

// Intake is the narrow, read-only view of a case payload that the pipeline
// consumes. Every field is optional; absent or mistyped values stay zero.
type Intake struct {
	Target       string
	Targets      []string
	ProjectName  string
	Region       string
	Industry     string
	Scores       map[string]interface{}
	Weights      map[string]interface{}
	HasDocuments bool
}

// ParseIntake never fails: malformed JSON yields the zero Intake.
func ParseIntake(raw json.RawMessage) Intake {
	var root map[string]interface{}
	if len(raw) == 0 || json.Unmarshal(raw, &root) != nil {
		return Intake{}
	}
	var in Intake
	ctx := asMap(root["context"])
	in.Target = strings.TrimSpace(asString(ctx["target"]))
	if list, ok := ctx["targets"].([]interface{}); ok {
		for _, v := range list {
			if s := strings.TrimSpace(asString(v)); s != "" {
				in.Targets = append(in.Targets, s)
			}
		}
	}
	project := asMap(ctx["project"])
	in.ProjectName = asString(project["name"])
	in.Region = asString(project["region"])
	in.Industry = asString(project["industry"])
	in.Scores = asMap(ctx["scores"])
	in.Weights = asMap(ctx["weights"])
	in.HasDocuments = documentIndicator(root["uploadedDocs"]) ||
		documentIndicator(root["documents"]) ||
		documentIndicator(ctx["uploadedDocs"])
	return in
}

// Names returns every named target, primary target first, without duplicates.
func (in Intake) Names() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, n := range append([]string{in.Target}, in.Targets...) {
		key := strings.ToLower(n)
		if n == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

func documentIndicator(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	case string:
		return strings.TrimSpace(val) != ""
	case float64:
		return val > 0
	}
	return false
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
