package prompt

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bryanwahyu/verdict/internal/domain/ai"
	"github.com/bryanwahyu/verdict/internal/domain/verdict"
)

// SchemaName is used by providers that want a named response schema.
const SchemaName = "verdict_payload"

// VerdictSchema is the JSON Schema of the response contract. OpenAI receives
// it verbatim; Gemini gets the equivalent genai.Schema.
const VerdictSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["meaning", "intentLevel", "intentExplanation", "closeProbability",
               "bestResponse", "whatNotToSay", "followUpStrategy", "walkAwaySignal"],
  "properties": {
    "meaning":           {"type": "string", "minLength": 1, "description": "The brutal truth behind the words."},
    "intentLevel":       {"type": "string", "enum": ["High", "Medium", "Low"]},
    "intentExplanation": {"type": "string", "minLength": 1, "description": "Why the intent is ranked this way."},
    "closeProbability":  {"type": "string", "minLength": 1, "description": "Percentage range (e.g., 20-30%)."},
    "bestResponse":      {"type": "string", "minLength": 1, "description": "The exact message to send."},
    "whatNotToSay": {
      "type": "array", "minItems": 1, "description": "1-2 common mistakes.",
      "items": {"type": "string", "minLength": 1}
    },
    "followUpStrategy": {
      "type": "object",
      "additionalProperties": false,
      "required": ["maxFollowUps", "timeGap", "stopCondition"],
      "properties": {
        "maxFollowUps":  {"type": "string", "minLength": 1},
        "timeGap":       {"type": "string", "minLength": 1},
        "stopCondition": {"type": "string", "minLength": 1}
      }
    },
    "walkAwaySignal": {"type": "string", "minLength": 1, "description": "Specific behavior that signals it's over."}
  }
}`

const schemaURL = "https://verdict.local/schemas/verdict_payload.json"

var compiledSchema = mustCompile()

func mustCompile() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(VerdictSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile(schemaURL)
}

// validationOnly lists keywords that providers with a strict structured-output
// mode reject. They are still enforced locally by ParseVerdict.
var validationOnly = []string{"$schema", "minLength", "minItems"}

// StrictSchema returns VerdictSchema without validation-only keywords.
func StrictSchema() json.RawMessage {
	var doc map[string]any
	if err := json.Unmarshal([]byte(VerdictSchema), &doc); err != nil {
		panic(err)
	}
	strip(doc)
	b, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return b
}

func strip(node map[string]any) {
	for _, k := range validationOnly {
		delete(node, k)
	}
	for _, v := range node {
		if child, ok := v.(map[string]any); ok {
			strip(child)
		}
	}
}

// maxWarnings caps whatNotToSay.
const maxWarnings = 2

// ParseVerdict decodes and validates a completion. Every failure wraps
// ai.ErrMalformedOutput.
func ParseVerdict(raw string) (verdict.Payload, error) {
	raw = stripFences(raw)
	if raw == "" {
		return verdict.Payload{}, errors.Wrap(ai.ErrMalformedOutput, "empty completion")
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return verdict.Payload{}, errors.Wrapf(ai.ErrMalformedOutput, "decode completion: %v", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return verdict.Payload{}, errors.Wrapf(ai.ErrMalformedOutput, "schema: %v", err)
	}

	var p verdict.Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return verdict.Payload{}, errors.Wrapf(ai.ErrMalformedOutput, "decode payload: %v", err)
	}
	p = normalize(p)
	if field := blankField(p); field != "" {
		return verdict.Payload{}, errors.Wrapf(ai.ErrMalformedOutput, "blank %s", field)
	}
	return p, nil
}

// blankField names the first field left empty after trimming.
func blankField(p verdict.Payload) string {
	fields := []struct{ name, value string }{
		{"meaning", p.Meaning},
		{"intentExplanation", p.IntentExplanation},
		{"closeProbability", p.CloseProbability},
		{"bestResponse", p.BestResponse},
		{"followUpStrategy.maxFollowUps", p.FollowUpStrategy.MaxFollowUps},
		{"followUpStrategy.timeGap", p.FollowUpStrategy.TimeGap},
		{"followUpStrategy.stopCondition", p.FollowUpStrategy.StopCondition},
		{"walkAwaySignal", p.WalkAwaySignal},
	}
	for _, f := range fields {
		if f.value == "" {
			return f.name
		}
	}
	if len(p.WhatNotToSay) == 0 {
		return "whatNotToSay"
	}
	return ""
}

func normalize(p verdict.Payload) verdict.Payload {
	p.Meaning = strings.TrimSpace(p.Meaning)
	p.IntentExplanation = strings.TrimSpace(p.IntentExplanation)
	p.CloseProbability = strings.TrimSpace(p.CloseProbability)
	p.BestResponse = strings.TrimSpace(p.BestResponse)
	p.WalkAwaySignal = strings.TrimSpace(p.WalkAwaySignal)
	p.FollowUpStrategy.MaxFollowUps = strings.TrimSpace(p.FollowUpStrategy.MaxFollowUps)
	p.FollowUpStrategy.TimeGap = strings.TrimSpace(p.FollowUpStrategy.TimeGap)
	p.FollowUpStrategy.StopCondition = strings.TrimSpace(p.FollowUpStrategy.StopCondition)

	warnings := make([]string, 0, maxWarnings)
	for _, w := range p.WhatNotToSay {
		if w = strings.TrimSpace(w); w != "" && len(warnings) < maxWarnings {
			warnings = append(warnings, w)
		}
	}
	p.WhatNotToSay = warnings
	return p
}

// stripFences drops a ```json fence some models wrap around the object.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
