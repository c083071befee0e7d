package agent

import (
	"strconv"
	"time"
)

// Plan is the planner's next step: free-text reasoning plus an ordered
// list of tool invocations. Transient per iteration.
type Plan struct {
	Reasoning  string     `json:"reasoning"`
	Steps      []PlanStep `json:"steps"`
	Confidence float64    `json:"confidence,omitempty"`
}

// PlanStep is one tool invocation in a plan.
type PlanStep struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

// Observation is the outcome of one tool execution, appended to the
// run's history. Failed observations flow back into the next planner
// iteration instead of aborting the run.
type Observation struct {
	ID      string         `json:"id"` // "obs-<n>", referenced as $obs.<id>.<path>
	Tool    string         `json:"tool"`
	Input   map[string]any `json:"input,omitempty"`
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Elapsed time.Duration  `json:"-"`
}

// History is the ordered observation log of one run.
type History struct {
	observations []Observation
	nextID       int
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds an observation, assigning its ID.
func (h *History) Append(obs Observation) Observation {
	h.nextID++
	obs.ID = obsID(h.nextID)
	h.observations = append(h.observations, obs)
	return obs
}

// All returns the full log, oldest first.
func (h *History) All() []Observation {
	return h.observations
}

// Last returns up to n most recent observations, oldest first.
func (h *History) Last(n int) []Observation {
	if n <= 0 || len(h.observations) <= n {
		return h.observations
	}
	return h.observations[len(h.observations)-n:]
}

// Find returns the observation with the given ID.
func (h *History) Find(id string) (Observation, bool) {
	for i := len(h.observations) - 1; i >= 0; i-- {
		if h.observations[i].ID == id {
			return h.observations[i], true
		}
	}
	return Observation{}, false
}

// LastForTool returns the most recent observation for a tool name.
func (h *History) LastForTool(tool string) (Observation, bool) {
	for i := len(h.observations) - 1; i >= 0; i-- {
		if h.observations[i].Tool == tool {
			return h.observations[i], true
		}
	}
	return Observation{}, false
}

// Len returns the number of observations.
func (h *History) Len() int {
	return len(h.observations)
}

func obsID(n int) string {
	return "obs-" + strconv.Itoa(n)
}
