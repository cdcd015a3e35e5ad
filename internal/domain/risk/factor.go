package risk

import (
	"github.com/eldershield/eldershield-backend/internal/domain/errors"
)

// FactorType is the closed set of rule evaluator outputs. Scoring rules are a
// tagged union over this type rather than a dispatch hierarchy, which keeps
// each rule pure and testable in isolation.
type FactorType string

const (
	FactorContactManipulation FactorType = "contact_manipulation"
	FactorContactTampering    FactorType = "emergency_contact_tampering"
	FactorBurstActivity       FactorType = "burst_activity"
	FactorPermissionAbuse     FactorType = "permission_escalation"
	FactorSensitivePermission FactorType = "sensitive_permission"
	FactorNighttimePattern    FactorType = "nighttime_pattern"
	FactorWeekendPattern      FactorType = "weekend_pattern"
	FactorSafetyTampering     FactorType = "safety_system_tampering"
	FactorSurveillance        FactorType = "surveillance_pattern"
	FactorEscalatingBehavior  FactorType = "escalating_behavior"
	FactorTriggerEvent        FactorType = "trigger_event"
)

// Evidence key every factor must carry, naming the detected behavior pattern
const EvidencePattern = "pattern"

// Pattern tags carried in factor evidence
const (
	PatternSocialIsolation      = "social_isolation_attempt"
	PatternAggressiveBurst      = "aggressive_burst"
	PatternPrivilegeAbuse       = "privilege_abuse"
	PatternSensitiveTargeting   = "sensitive_permission_targeting"
	PatternCovertManipulation   = "covert_manipulation"
	PatternIsolationExploit     = "isolation_exploitation"
	PatternSafetyCompromise     = "safety_compromise"
	PatternExcessiveWatch       = "excessive_surveillance"
	PatternEscalatingAbuse      = "escalating_abuse"
	PatternPanicTrigger         = "panic_trigger"
	PatternTamperingTrigger     = "tampering_trigger"
)

// Factor is one rule's scored contribution to an assessment. Created fresh
// per scoring run and persisted only inside its assessment.
type Factor struct {
	Type     FactorType             `json:"type"`
	Severity Severity               `json:"severity"`
	Score    int                    `json:"score"`
	Evidence map[string]interface{} `json:"evidence"`
}

// NewFactor creates a factor, enforcing the pattern-tag evidence invariant
func NewFactor(factorType FactorType, severity Severity, score int, pattern string, evidence map[string]interface{}) (Factor, error) {
	if pattern == "" {
		return Factor{}, errors.NewValidationError("MISSING_PATTERN", "factor evidence must name the detected pattern")
	}
	if score < 0 {
		return Factor{}, errors.NewValidationError("NEGATIVE_SCORE", "factor score cannot be negative")
	}

	if evidence == nil {
		evidence = make(map[string]interface{}, 1)
	}
	evidence[EvidencePattern] = pattern

	return Factor{
		Type:     factorType,
		Severity: severity,
		Score:    score,
		Evidence: evidence,
	}, nil
}

// Pattern returns the pattern tag from evidence
func (f Factor) Pattern() string {
	p, _ := f.Evidence[EvidencePattern].(string)
	return p
}
