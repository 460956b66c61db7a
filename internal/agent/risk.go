package agent

import "github.com/xkilldash9x/vibepilot/api/schemas"

// RiskTier is the classification of an action name.
type RiskTier string

const (
	RiskSafe                 RiskTier = "safe"
	RiskRequiresConfirmation RiskTier = "requiresConfirmation"
)

// riskyActions need a human before they run. Matching is exact and case
// sensitive.
var riskyActions = map[string]bool{
	"delete":  true,
	"publish": true,
	"deploy":  true,
}

// knownSafeActions are the names the browser host implements, plus the
// planner's "none".
var knownSafeActions = map[string]bool{
	schemas.ActionClick:    true,
	schemas.ActionType:     true,
	schemas.ActionNavigate: true,
	schemas.ActionNone:     true,
}

// Classify maps an action name to its risk tier. Unknown names are safe.
func Classify(name string) RiskTier {
	if riskyActions[name] {
		return RiskRequiresConfirmation
	}
	return RiskSafe
}

// RiskPolicy decides which actions pass through the confirmation gate.
type RiskPolicy struct {
	// ConfirmUnknown sends names that are neither risky nor implemented by
	// the host through the gate as well.
	ConfirmUnknown bool
}

// Classify applies the policy to name.
func (p RiskPolicy) Classify(name string) RiskTier {
	if tier := Classify(name); tier == RiskRequiresConfirmation {
		return tier
	}
	if p.ConfirmUnknown && !knownSafeActions[name] {
		return RiskRequiresConfirmation
	}
	return RiskSafe
}
