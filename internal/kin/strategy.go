package kin

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoDecision means the reply held no usable structured decision. Callers
// treat it as "the persona has no preference" rather than as a failure.
var ErrNoDecision = errors.New("no structured decision in reply")

// Leisure actions a persona may choose.
const (
	ActionStay  = "stay"
	ActionVisit = "visit"
	ActionShop  = "shop"
	ActionRest  = "rest"
)

// Decision is what a persona wants to do with its free time.
type Decision struct {
	Action   string `json:"action"`
	Building string `json:"building,omitempty"`
	Resource string `json:"resource,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

const decisionSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["action"],
	"properties": {
		"action": {"enum": ["stay", "visit", "shop", "rest"]},
		"building": {"type": "string"},
		"resource": {"type": "string"},
		"reason": {"type": "string", "maxLength": 500}
	},
	"allOf": [
		{"if": {"properties": {"action": {"const": "visit"}}}, "then": {"required": ["building"], "properties": {"building": {"minLength": 1}}}},
		{"if": {"properties": {"action": {"const": "shop"}}}, "then": {"required": ["resource"], "properties": {"resource": {"minLength": 1}}}}
	]
}`

var compiledDecision = jsonschema.MustCompileString("leisure-decision.json", decisionSchema)

// ParseDecision extracts the first JSON object from a free-form reply and
// validates it. Personas often wrap JSON in prose or markdown fences.
func ParseDecision(reply string) (*Decision, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return nil, ErrNoDecision
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDecision, err)
	}
	if err := compiledDecision.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDecision, err)
	}

	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDecision, err)
	}
	return &d, nil
}

func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
