package verdict

import "strings"

// RecordID identifier type, assigned by the store on insert.
type RecordID string

// Mode is the analysis protocol.
type Mode string

const (
	ModeDisqualify Mode = "DISQUALIFY"
	ModeTactical   Mode = "TACTICAL"
)

// ParseMode accepts the protocol names plus the legacy VOID/NEXUS aliases.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DISQUALIFY", "VOID":
		return ModeDisqualify, true
	case "TACTICAL", "NEXUS":
		return ModeTactical, true
	}
	return "", false
}

// IntentLevel enum
type IntentLevel string

const (
	IntentHigh   IntentLevel = "High"
	IntentMedium IntentLevel = "Medium"
	IntentLow    IntentLevel = "Low"
)

func (l IntentLevel) Valid() bool {
	return l == IntentHigh || l == IntentMedium || l == IntentLow
}

// Context value object
type Context struct {
	DealSizeTier string `json:"dealSizeTier"`
	Sector       string `json:"sector"`
	DealStage    string `json:"dealStage"`
}

type FollowUpStrategy struct {
	MaxFollowUps  string `json:"maxFollowUps"`
	TimeGap       string `json:"timeGap"`
	StopCondition string `json:"stopCondition"`
}

// Payload is the structured verdict produced by the AI call.
type Payload struct {
	Meaning           string           `json:"meaning"`
	IntentLevel       IntentLevel      `json:"intentLevel"`
	IntentExplanation string           `json:"intentExplanation"`
	CloseProbability  string           `json:"closeProbability"`
	BestResponse      string           `json:"bestResponse"`
	WhatNotToSay      []string         `json:"whatNotToSay"`
	FollowUpStrategy  FollowUpStrategy `json:"followUpStrategy"`
	WalkAwaySignal    string           `json:"walkAwaySignal"`
}

// Record is one persisted verdict. Records are never edited; they are
// created once and may be deleted.
type Record struct {
	ID            RecordID `json:"id"`
	UserID        string   `json:"userId"`
	CreatedAt     int64    `json:"createdAt"` // epoch milliseconds
	ObjectionText string   `json:"objectionText"`
	Mode          Mode     `json:"mode"`
	Context       Context  `json:"context"`
	Result        Payload  `json:"result"`
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	if r.Result.WhatNotToSay != nil {
		out.Result.WhatNotToSay = append([]string(nil), r.Result.WhatNotToSay...)
	}
	return out
}

// Request is what the Request Builder hands to the Analysis Client.
type Request struct {
	ObjectionText string  `json:"objectionText"`
	Context       Context `json:"context"`
	Mode          Mode    `json:"mode"`
}
