package orchestrator

import (
	"fmt"
	"sort"

	"github.com/specforge/specforge/pkg/models"
)

// Decision is the orchestrator's summary over a proposal's verdicts. It is a
// pure function of the verdicts and the config, nothing else.
type Decision struct {
	// AutoApply is true when the proposal may skip human approval.
	AutoApply bool

	// Terminate is true when validation or dependency analysis failed hard;
	// the proposal fails without an approval round.
	Terminate bool

	// MinConfidence is the lowest confidence across all verdicts (0 when a
	// required verdict is missing).
	MinConfidence float64

	// Reasons lists why auto-apply was denied or the proposal terminated.
	Reasons []string

	// MaxSeverity is the worst severity any verdict reported (cycles, risk
	// factors, impact). Empty when no verdict graded anything.
	MaxSeverity models.Severity

	// ValidationErrors carries user-facing failure details for Terminate.
	ValidationErrors []string

	// Warnings aggregates non-fatal observations for the result payload.
	Warnings []string
}

// Aggregate folds the verdicts of a proposal's required tasks into a decision.
// A missing verdict (task failed, timed out, or cancelled) counts as a
// zero-confidence opinion: it blocks auto-apply but does not terminate.
func Aggregate(verdicts map[models.AgentType]*models.Verdict, required []models.AgentType, threshold float64) Decision {
	d := Decision{AutoApply: true, MinConfidence: 1}
	deny := func(format string, args ...any) {
		d.AutoApply = false
		d.Reasons = append(d.Reasons, fmt.Sprintf(format, args...))
	}
	grade := func(s models.Severity) {
		if s.AtLeast(d.MaxSeverity) && s.Rank() >= 0 {
			d.MaxSeverity = s
		}
	}

	for _, agentType := range required {
		verdict, ok := verdicts[agentType]
		if !ok || verdict == nil {
			d.MinConfidence = 0
			deny("no %s verdict available", agentType)
			continue
		}
		if verdict.ConfidenceScore < d.MinConfidence {
			d.MinConfidence = verdict.ConfidenceScore
		}
		if verdict.ConfidenceScore < threshold {
			deny("%s confidence %.2f below threshold %.2f",
				agentType, verdict.ConfidenceScore, threshold)
		}
		if verdict.FallbackMode {
			d.Warnings = append(d.Warnings,
				fmt.Sprintf("%s verdict produced by deterministic fallback", agentType))
		}

		switch agentType {
		case models.AgentTypeValidator:
			if verdict.Validator == nil {
				d.MinConfidence = 0
				deny("validator verdict carries no payload")
				continue
			}
			if !verdict.Validator.IsValid {
				d.Terminate = true
				deny("validator rejected the proposal")
				d.ValidationErrors = append(d.ValidationErrors, verdict.Validator.Errors...)
				if len(verdict.Validator.Errors) == 0 {
					d.ValidationErrors = append(d.ValidationErrors, "proposal failed validation")
				}
			}
			d.Warnings = append(d.Warnings, verdict.Validator.Warnings...)
		case models.AgentTypeDependency:
			if verdict.Dependency == nil {
				d.MinConfidence = 0
				deny("dependency verdict carries no payload")
				continue
			}
			for _, cycle := range verdict.Dependency.CircularDependencies {
				grade(cycle.Severity)
				if cycle.Severity == models.SeverityCritical {
					d.Terminate = true
					deny("critical circular dependency %v", cycle.Cycle)
					d.ValidationErrors = append(d.ValidationErrors,
						fmt.Sprintf("circular dependency: %v", cycle.Cycle))
				} else {
					deny("circular dependency %v (%s)", cycle.Cycle, cycle.Severity)
				}
			}
			if !verdict.Dependency.IsValid && len(verdict.Dependency.CircularDependencies) == 0 {
				deny("dependency analysis flagged the proposal")
			}
		case models.AgentTypeMutation:
			if verdict.Mutation != nil {
				for _, risk := range verdict.Mutation.RiskFactors {
					grade(risk.Severity)
					if risk.Severity.AtLeast(models.SeverityHigh) {
						deny("risk factor %q is %s", risk.Description, risk.Severity)
					}
				}
			}
		case models.AgentTypeImpact:
			if verdict.Impact != nil && verdict.Impact.Analysis != nil {
				grade(verdict.Impact.Analysis.Severity)
				if verdict.Impact.Analysis.Severity.AtLeast(models.SeverityHigh) {
					deny("impact severity is %s", verdict.Impact.Analysis.Severity)
				}
			}
		}
	}

	sort.Strings(d.Reasons)
	return d
}
