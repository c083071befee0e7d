package controller

import (
	"github.com/reportforge/reportforge/pkg/agent"
	"github.com/reportforge/reportforge/pkg/agent/tool"
)

// GoalCheck is the validator's verdict on the run state.
type GoalCheck struct {
	// Achieved means a current SQL exists and its latest validation
	// passed.
	Achieved bool

	// Validated mirrors the latest sql.validate verdict for the current
	// SQL.
	Validated bool

	// ExecutionTested means the current SQL also ran successfully
	// against the data source.
	ExecutionTested bool
}

// CheckGoal inspects the pool and history: the goal is achieved when a
// SQL draft exists and the most recent validation of that exact draft
// passed. Execution success is recorded but not required.
func CheckGoal(pool *agent.ResourcePool, history *agent.History) GoalCheck {
	var check GoalCheck

	current := pool.GetString(agent.KeySQLCurrent)
	if current == "" {
		return check
	}

	validateObs, ok := history.LastForTool(tool.NameValidate)
	if !ok || !validateObs.Success {
		return check
	}
	if sqlOf(validateObs) != current {
		// The draft changed after its last validation.
		return check
	}
	valid, _ := validateObs.Result["valid"].(bool)
	check.Validated = valid
	check.Achieved = valid

	if execObs, ok := history.LastForTool(tool.NameExecute); ok && execObs.Success && sqlOf(execObs) == current {
		check.ExecutionTested = true
	}
	return check
}

func sqlOf(obs agent.Observation) string {
	s, _ := obs.Result["sql"].(string)
	return s
}
