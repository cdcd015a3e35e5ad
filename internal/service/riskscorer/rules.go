package riskscorer

import (
	"sort"
	"time"

	"github.com/eldershield/eldershield-backend/internal/domain/behavior"
	"github.com/eldershield/eldershield-backend/internal/domain/risk"
)

// ruleInput is the shared, immutable input every rule evaluates against.
// Rules are pure functions of this input: no wall clock, no shared state,
// so identical inputs always produce identical factors.
type ruleInput struct {
	events  []*behavior.Event
	history []*risk.Assessment
	trigger *behavior.TriggerEvent
	cfg     Config
}

type ruleFunc func(in ruleInput) []risk.Factor

// allRules is the closed set of evaluators, run in fixed order so the
// factor list of an assessment is deterministic.
var allRules = []ruleFunc{
	ruleContactManipulation,
	ruleBurstActivity,
	rulePermissionEscalation,
	ruleTemporalPattern,
	ruleSafetyTampering,
	ruleSurveillance,
	ruleEscalatingBehavior,
	ruleTriggerEvent,
}

// ruleContactManipulation counts blocked contact-removal attempts. Attempts
// against an emergency or advocate contact raise a second, higher-weighted
// tampering factor on top of the base manipulation factor.
func ruleContactManipulation(in ruleInput) []risk.Factor {
	blocked := 0
	protected := 0
	for _, e := range in.events {
		if e.Category != behavior.CategoryContactRemoval || !e.IsBlocked() {
			continue
		}
		blocked++
		if e.TargetsProtectedContact() {
			protected++
		}
	}

	var factors []risk.Factor
	if blocked > 0 {
		severity := risk.SeverityLow
		if blocked >= 3 {
			severity = risk.SeverityMedium
		}
		f, err := risk.NewFactor(risk.FactorContactManipulation, severity,
			blocked*in.cfg.ContactAttemptWeight, risk.PatternSocialIsolation,
			map[string]interface{}{"blocked_attempts": blocked})
		if err == nil {
			factors = append(factors, f)
		}
	}

	if protected > 0 {
		f, err := risk.NewFactor(risk.FactorContactTampering, risk.SeverityHigh,
			protected*in.cfg.ContactTamperingWeight, risk.PatternSocialIsolation,
			map[string]interface{}{"protected_contact_attempts": protected})
		if err == nil {
			factors = append(factors, f)
		}
	}

	return factors
}

// ruleBurstActivity fires when enough blocked attempts land inside any
// rolling sub-window, regardless of category.
func ruleBurstActivity(in ruleInput) []risk.Factor {
	var times []time.Time
	for _, e := range in.events {
		if e.IsBlocked() {
			times = append(times, e.OccurredAt)
		}
	}
	if len(times) < in.cfg.BurstThreshold {
		return nil
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	maxInWindow := 0
	lo := 0
	for hi := range times {
		for times[hi].Sub(times[lo]) > in.cfg.BurstWindow {
			lo++
		}
		if n := hi - lo + 1; n > maxInWindow {
			maxInWindow = n
		}
	}
	if maxInWindow < in.cfg.BurstThreshold {
		return nil
	}

	f, err := risk.NewFactor(risk.FactorBurstActivity, risk.SeverityMedium,
		in.cfg.BurstScore, risk.PatternAggressiveBurst,
		map[string]interface{}{
			"attempts_in_window": maxInWindow,
			"window_minutes":     int(in.cfg.BurstWindow.Minutes()),
		})
	if err != nil {
		return nil
	}
	return []risk.Factor{f}
}

// rulePermissionEscalation scores denied elevated-permission requests above
// a tolerance threshold, with a separate high factor for requests targeting
// the sensitive-permission set.
func rulePermissionEscalation(in ruleInput) []risk.Factor {
	denied := 0
	sensitive := 0
	for _, e := range in.events {
		if e.Category != behavior.CategoryPermissionEscalation || !e.IsBlocked() {
			continue
		}
		denied++
		if sensitivePermissions[e.PayloadString(behavior.PayloadPermission)] {
			sensitive++
		}
	}

	var factors []risk.Factor
	if denied > in.cfg.PermissionDenialThreshold {
		f, err := risk.NewFactor(risk.FactorPermissionAbuse, risk.SeverityMedium,
			denied*in.cfg.PermissionDenialWeight, risk.PatternPrivilegeAbuse,
			map[string]interface{}{"denied_requests": denied})
		if err == nil {
			factors = append(factors, f)
		}
	}

	if sensitive > 0 {
		f, err := risk.NewFactor(risk.FactorSensitivePermission, risk.SeverityHigh,
			sensitive*in.cfg.SensitivePermissionWeight, risk.PatternSensitiveTargeting,
			map[string]interface{}{"sensitive_requests": sensitive})
		if err == nil {
			factors = append(factors, f)
		}
	}

	return factors
}

// ruleTemporalPattern flags attempts concentrated in night hours and
// windows where most activity falls on weekends.
func ruleTemporalPattern(in ruleInput) []risk.Factor {
	total := 0
	night := 0
	weekend := 0
	for _, e := range in.events {
		if !e.IsBlocked() {
			continue
		}
		total++

		hour := e.OccurredAt.Hour()
		if hour >= in.cfg.NightStartHour || hour < in.cfg.NightEndHour {
			night++
		}

		switch e.OccurredAt.Weekday() {
		case time.Saturday, time.Sunday:
			weekend++
		}
	}

	var factors []risk.Factor
	if night > in.cfg.NightThreshold {
		f, err := risk.NewFactor(risk.FactorNighttimePattern, risk.SeverityMedium,
			night*in.cfg.NightWeight, risk.PatternCovertManipulation,
			map[string]interface{}{"night_attempts": night})
		if err == nil {
			factors = append(factors, f)
		}
	}

	if total >= in.cfg.WeekendMinEvents && float64(weekend)/float64(total) >= in.cfg.WeekendRatio {
		f, err := risk.NewFactor(risk.FactorWeekendPattern, risk.SeverityLow,
			in.cfg.WeekendScore, risk.PatternIsolationExploit,
			map[string]interface{}{
				"weekend_attempts": weekend,
				"total_attempts":   total,
			})
		if err == nil {
			factors = append(factors, f)
		}
	}

	return factors
}

// ruleSafetyTampering treats any attempt to disable or modify emergency
// features as critical, blocked or not.
func ruleSafetyTampering(in ruleInput) []risk.Factor {
	attempts := 0
	for _, e := range in.events {
		if e.Category != behavior.CategoryEmergencyInteraction {
			continue
		}
		switch e.PayloadString(behavior.PayloadAction) {
		case behavior.ActionDisableAttempt, behavior.ActionModifyAttempt:
			attempts++
		}
	}
	if attempts == 0 {
		return nil
	}

	f, err := risk.NewFactor(risk.FactorSafetyTampering, risk.SeverityCritical,
		attempts*in.cfg.SafetyTamperingWeight, risk.PatternSafetyCompromise,
		map[string]interface{}{"tampering_attempts": attempts})
	if err != nil {
		return nil
	}
	return []risk.Factor{f}
}

// ruleSurveillance flags excessive emergency-status queries
func ruleSurveillance(in ruleInput) []risk.Factor {
	queries := 0
	for _, e := range in.events {
		if e.Category == behavior.CategoryEmergencyInteraction &&
			e.PayloadString(behavior.PayloadAction) == behavior.ActionStatusQuery {
			queries++
		}
	}
	if queries <= in.cfg.SurveillanceThreshold {
		return nil
	}

	f, err := risk.NewFactor(risk.FactorSurveillance, risk.SeverityLow,
		in.cfg.SurveillanceScore, risk.PatternExcessiveWatch,
		map[string]interface{}{"status_queries": queries})
	if err != nil {
		return nil
	}
	return []risk.Factor{f}
}

// ruleEscalatingBehavior compares the most recent persisted assessments for
// the pair. Strictly increasing scores with a meaningful margin per step
// indicate an escalating pattern.
func ruleEscalatingBehavior(in ruleInput) []risk.Factor {
	history := in.history
	if len(history) > in.cfg.EscalationHistory {
		history = history[:in.cfg.EscalationHistory]
	}
	if len(history) < 2 {
		return nil
	}

	// history is most recent first; walk oldest → newest
	scores := make([]int, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		scores = append(scores, history[i].TotalScore)
	}

	for i := 1; i < len(scores); i++ {
		if scores[i]-scores[i-1] < in.cfg.EscalationMargin {
			return nil
		}
	}

	f, err := risk.NewFactor(risk.FactorEscalatingBehavior, risk.SeverityHigh,
		in.cfg.EscalationScore, risk.PatternEscalatingAbuse,
		map[string]interface{}{"score_trend": scores})
	if err != nil {
		return nil
	}
	return []risk.Factor{f}
}

// ruleTriggerEvent folds a supplied high-priority trigger into the pass.
// Severity and score are fixed per trigger type.
func ruleTriggerEvent(in ruleInput) []risk.Factor {
	if in.trigger == nil {
		return nil
	}

	var (
		score   int
		pattern string
	)
	switch in.trigger.Type {
	case behavior.TriggerPanicActivation:
		score = in.cfg.PanicTriggerScore
		pattern = risk.PatternPanicTrigger
	case behavior.TriggerContactTampering:
		score = in.cfg.TamperingTriggerScore
		pattern = risk.PatternTamperingTrigger
	default:
		return nil
	}

	evidence := map[string]interface{}{
		"trigger_id":   in.trigger.ID.String(),
		"trigger_type": string(in.trigger.Type),
	}
	for k, v := range in.trigger.Context {
		evidence["ctx_"+k] = v
	}

	f, err := risk.NewFactor(risk.FactorTriggerEvent, risk.SeverityHigh, score, pattern, evidence)
	if err != nil {
		return nil
	}
	return []risk.Factor{f}
}
