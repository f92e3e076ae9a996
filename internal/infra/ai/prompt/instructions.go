package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/verdict/internal/domain/verdict"
)

//go:embed protocol.yaml
var protocolYAML []byte

// ModeProtocol describes one analysis protocol.
type ModeProtocol struct {
	Label       string `yaml:"label"       json:"label"`
	Focus       string `yaml:"focus"       json:"focus"`
	Instruction string `yaml:"instruction" json:"-"`
	Summary     string `yaml:"summary"     json:"summary"`
}

type Section struct {
	Title   string `yaml:"title"   json:"title"`
	Content string `yaml:"content" json:"content"`
}

// Protocol is the static content behind the informational Protocol view
// together with the persona and per-mode model instructions.
type Protocol struct {
	Persona  string                        `yaml:"persona"  json:"-"`
	Modes    map[verdict.Mode]ModeProtocol `yaml:"modes"    json:"modes"`
	Sections []Section                     `yaml:"sections" json:"sections"`
	Mindset  string                        `yaml:"mindset"  json:"mindset"`
}

var protocol = mustLoadProtocol(protocolYAML)

func mustLoadProtocol(data []byte) Protocol {
	p, err := LoadProtocol(data)
	if err != nil {
		panic(err)
	}
	return p
}

// LoadProtocol parses protocol YAML and checks both modes are present.
func LoadProtocol(data []byte) (Protocol, error) {
	var p Protocol
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Protocol{}, fmt.Errorf("parse protocol: %w", err)
	}
	for _, m := range []verdict.Mode{verdict.ModeDisqualify, verdict.ModeTactical} {
		if strings.TrimSpace(p.Modes[m].Instruction) == "" {
			return Protocol{}, fmt.Errorf("protocol: missing instruction for mode %s", m)
		}
	}
	return p, nil
}

// Default returns the embedded protocol.
func Default() Protocol { return protocol }

// SystemInstruction builds the instruction block for a mode.
func SystemInstruction(mode verdict.Mode) string {
	return protocol.SystemInstruction(mode)
}

func (p Protocol) SystemInstruction(mode verdict.Mode) string {
	m, ok := p.Modes[mode]
	if !ok {
		m = p.Modes[verdict.ModeDisqualify]
		mode = verdict.ModeDisqualify
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Persona))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "PROTOCOL: %s (%s).\n", mode, m.Focus)
	b.WriteString(strings.TrimSpace(m.Instruction))
	b.WriteString("\n\nRespond with one JSON object that matches the response schema exactly. ")
	b.WriteString("intentLevel must be one of High, Medium, Low. whatNotToSay holds one or two entries. ")
	b.WriteString("closeProbability is a percentage or percentage range such as 20-30%.")
	return b.String()
}

// UserContent builds the content block carrying the objection and its context.
func UserContent(req verdict.Request) string {
	return fmt.Sprintf(`CONTEXT:
Protocol: %s
Sale Type: %s
Sector: %s
Deal Stage: %s

OBJECTION RECEIVED:
%q

Analyze this and provide a structured JSON verdict according to the schema.`,
		req.Mode,
		req.Context.DealSizeTier,
		req.Context.Sector,
		req.Context.DealStage,
		req.ObjectionText,
	)
}
