package engine

import "fmt"

// State identifies where a triage cycle is in its lifecycle. A cycle never
// re-enters an earlier state.
type State int

const (
	StateStart State = iota
	StateMetricsAnalyzed
	StateClosed
	StateEscalated
	StateLogsAnalyzed
	StateRCAComplete
	StatePersisted
	StateDegraded
)

var stateNames = map[State]string{
	StateStart:           "START",
	StateMetricsAnalyzed: "METRICS_ANALYZED",
	StateClosed:          "CLOSED",
	StateEscalated:       "ESCALATED",
	StateLogsAnalyzed:    "LOGS_ANALYZED",
	StateRCAComplete:     "RCA_COMPLETE",
	StatePersisted:       "PERSISTED",
	StateDegraded:        "DEGRADED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether a cycle in this state has finished.
func (s State) Terminal() bool {
	return s == StateClosed || s == StatePersisted || s == StateDegraded
}

// Legal forward edges of the cycle state machine. DEGRADED is reachable from
// any escalated state when a stage analysis exhausts its retries.
var transitions = map[State][]State{
	StateStart:           {StateMetricsAnalyzed},
	StateMetricsAnalyzed: {StateEscalated, StateClosed},
	StateEscalated:       {StateLogsAnalyzed, StateDegraded},
	StateLogsAnalyzed:    {StateRCAComplete, StateDegraded},
	StateRCAComplete:     {StatePersisted, StateDegraded},
}

// cycle holds the state value for one run; advance enforces legal edges so an
// illegal transition fails loudly instead of corrupting the audit trail.
type cycle struct {
	state State
}

func (c *cycle) advance(to State) error {
	for _, next := range transitions[c.state] {
		if next == to {
			c.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal state transition %s -> %s", c.state, to)
}
