package workflow

import "fmt"

// Builder accumulates transitions and produces an immutable Machine
type Builder struct {
	configurations map[StageID]*StageConfiguration
}

// StageConfiguration configures the outgoing edges of one stage
type StageConfiguration struct {
	from  StageID
	edges map[Action]StageID
}

// NewBuilder creates a new transition table builder
func NewBuilder() *Builder {
	return &Builder{
		configurations: make(map[StageID]*StageConfiguration),
	}
}

// Configure returns the configuration for the given stage, creating it on first use
func (b *Builder) Configure(stage StageID) *StageConfiguration {
	if stage == "" {
		panic("workflow: cannot configure empty stage")
	}
	if stage.IsClosed() {
		panic(fmt.Sprintf("workflow: closed stage %s cannot have outgoing edges", stage))
	}

	config, exists := b.configurations[stage]
	if !exists {
		config = &StageConfiguration{
			from:  stage,
			edges: make(map[Action]StageID),
		}
		b.configurations[stage] = config
	}
	return config
}

// Permit adds an edge for the action to the target stage. A second Permit
// for the same action replaces the first.
func (c *StageConfiguration) Permit(action Action, to StageID) *StageConfiguration {
	if !action.IsValid() {
		panic(fmt.Sprintf("workflow: invalid action %q", action))
	}
	if to == "" {
		panic("workflow: empty target stage")
	}
	c.edges[action] = to
	return c
}

// Build copies the configured transitions into a Machine
func (b *Builder) Build() Machine {
	transitions := make(map[StageID]map[Action]StageID, len(b.configurations))
	for stage, config := range b.configurations {
		edges := make(map[Action]StageID, len(config.edges))
		for action, to := range config.edges {
			edges[action] = to
		}
		transitions[stage] = edges
	}
	return Machine{transitions: transitions}
}
