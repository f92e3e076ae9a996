package verdict

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bryanwahyu/verdict/internal/domain/verdict"
)

// Deal size tiers offered by the form.
const (
	TierHighTicket    = "High-Ticket"
	TierMidTicket     = "Mid-Ticket"
	TierB2BEnterprise = "B2B Enterprise"
)

// Deal stages offered by the form.
const (
	StageDiscovery = "Discovery Call"
	StageProposal  = "Proposal Sent"
	StageClosing   = "Closing Stage"
)

// DefaultMinObjectionLength is used when no minimum is configured.
const DefaultMinObjectionLength = 15

var (
	DealSizeTiers = []string{TierHighTicket, TierMidTicket, TierB2BEnterprise}
	DealStages    = []string{StageDiscovery, StageProposal, StageClosing}
	Modes         = []verdict.Mode{verdict.ModeDisqualify, verdict.ModeTactical}
)

// Form is the user-entered draft.
type Form struct {
	ObjectionText string `json:"objectionText"`
	DealSizeTier  string `json:"dealSizeTier"`
	Sector        string `json:"sector"`
	DealStage     string `json:"dealStage"`
	Mode          string `json:"mode"`
}

// DefaultForm returns the initial draft.
func DefaultForm() Form {
	return Form{
		DealSizeTier: TierHighTicket,
		DealStage:    StageDiscovery,
		Mode:         string(verdict.ModeDisqualify),
	}
}

// BuildRequest validates form and assembles the analysis request. form is
// passed by value and never modified.
func BuildRequest(form Form, minLen int) (verdict.Request, error) {
	if minLen < 1 {
		minLen = 1
	}

	objection := strings.TrimSpace(form.ObjectionText)
	if objection == "" {
		return verdict.Request{}, verdict.NewValidationError("objectionText", "must not be empty")
	}
	if len([]rune(objection)) < minLen {
		return verdict.Request{}, verdict.NewValidationError("objectionText",
			fmt.Sprintf("must be at least %d characters", minLen))
	}

	sector := strings.TrimSpace(form.Sector)
	if sector == "" {
		return verdict.Request{}, verdict.NewValidationError("sector", "must not be empty")
	}

	tier := strings.TrimSpace(form.DealSizeTier)
	if !slices.Contains(DealSizeTiers, tier) {
		return verdict.Request{}, verdict.NewValidationError("dealSizeTier",
			"must be one of "+strings.Join(DealSizeTiers, ", "))
	}
	stage := strings.TrimSpace(form.DealStage)
	if !slices.Contains(DealStages, stage) {
		return verdict.Request{}, verdict.NewValidationError("dealStage",
			"must be one of "+strings.Join(DealStages, ", "))
	}

	mode, ok := verdict.ParseMode(form.Mode)
	if !ok {
		return verdict.Request{}, verdict.NewValidationError("mode", "must be DISQUALIFY or TACTICAL")
	}

	return verdict.Request{
		ObjectionText: objection,
		Mode:          mode,
		Context: verdict.Context{
			DealSizeTier: tier,
			Sector:       sector,
			DealStage:    stage,
		},
	}, nil
}
