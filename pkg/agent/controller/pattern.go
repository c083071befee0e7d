package controller

import (
	"encoding/json"
	"fmt"

	"github.com/reportforge/reportforge/pkg/agent"
)

// patternThreshold is how many consecutive iterations a pattern must
// repeat before the loop is stopped.
const patternThreshold = 3

// iterationTrace is the detector's view of one completed iteration.
type iterationTrace struct {
	firstStep  string // tool + canonical input of the first plan step
	lastError  string
	currentSQL string
}

// PatternDetector stops loops that stop making progress: the same tool
// call repeated verbatim, the same error recurring, or the SQL draft
// not changing across iterations.
type PatternDetector struct {
	traces []iterationTrace
}

// Record captures one finished iteration.
func (d *PatternDetector) Record(plan *agent.Plan, failed *agent.Observation, currentSQL string) {
	trace := iterationTrace{currentSQL: currentSQL}
	if len(plan.Steps) > 0 {
		trace.firstStep = stepFingerprint(plan.Steps[0])
	}
	if failed != nil {
		trace.lastError = failed.Error
	}
	d.traces = append(d.traces, trace)
}

// Detect reports a thrash pattern, or "" when the loop may continue.
func (d *PatternDetector) Detect() string {
	if len(d.traces) < patternThreshold {
		return ""
	}
	window := d.traces[len(d.traces)-patternThreshold:]

	if same(window, func(t iterationTrace) string { return t.firstStep }) && window[0].firstStep != "" {
		return "identical tool call repeated"
	}
	if same(window, func(t iterationTrace) string { return t.lastError }) && window[0].lastError != "" {
		return "same error recurring"
	}
	if same(window, func(t iterationTrace) string { return t.currentSQL }) && window[0].currentSQL != "" {
		return "sql draft not changing"
	}
	return ""
}

func same(window []iterationTrace, key func(iterationTrace) string) bool {
	first := key(window[0])
	for _, t := range window[1:] {
		if key(t) != first {
			return false
		}
	}
	return true
}

// stepFingerprint canonicalizes a step for equality comparison. JSON
// marshaling of a map sorts keys, so equal inputs fingerprint equally.
func stepFingerprint(step agent.PlanStep) string {
	raw, err := json.Marshal(step.Input)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", step.Input))
	}
	return step.Tool + ":" + string(raw)
}
