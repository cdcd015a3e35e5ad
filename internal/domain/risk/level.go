package risk

// Severity tiers a single factor's contribution
type Severity string

const (
	SeverityMinimal  Severity = "minimal"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Level classifies an assessment's aggregate score
type Level string

const (
	LevelMinimal  Level = "minimal"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Score thresholds for level derivation. Tunable policy constants; the scorer
// reads them through config but these are the documented defaults.
const (
	ThresholdLow      = 25
	ThresholdMedium   = 50
	ThresholdHigh     = 80
	ThresholdCritical = 100
)

// LevelFromScore derives a risk level from an aggregate score
func LevelFromScore(score int) Level {
	switch {
	case score >= ThresholdCritical:
		return LevelCritical
	case score >= ThresholdHigh:
		return LevelHigh
	case score >= ThresholdMedium:
		return LevelMedium
	case score >= ThresholdLow:
		return LevelLow
	default:
		return LevelMinimal
	}
}

// AtLeast reports whether l is at or above other in severity order
func (l Level) AtLeast(other Level) bool {
	return levelRank(l) >= levelRank(other)
}

func levelRank(l Level) int {
	switch l {
	case LevelCritical:
		return 4
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	default:
		return 0
	}
}
