package workflow

import "fmt"

// Stage is one step of an approval chain
type Stage struct {
	ID            StageID
	Label         string
	RequiredRoles RoleSet
}

// Definition describes the approval chain for one request type.
// Build it with NewDefinition; the returned value must not be mutated.
type Definition struct {
	RequestType RequestType
	Stages      []Stage

	// RejectableFrom lists the stages where rejection is legal.
	// Empty means every pending stage.
	RejectableFrom map[StageID]bool

	// ElevatedRoles may perform the forward transition of any pending stage,
	// one stage per action.
	ElevatedRoles RoleSet

	// OversightRoles see every request of this type regardless of group.
	OversightRoles RoleSet

	index   map[StageID]int
	machine Machine
}

// NewDefinition validates the definition and builds its transition table
func NewDefinition(d Definition) (*Definition, error) {
	if !d.RequestType.IsValid() {
		return nil, fmt.Errorf("%w: request type %q", ErrInvalidDefinition, d.RequestType)
	}
	if len(d.Stages) == 0 {
		return nil, fmt.Errorf("%w: %s has no stages", ErrInvalidDefinition, d.RequestType)
	}

	def := &Definition{
		RequestType:    d.RequestType,
		Stages:         make([]Stage, len(d.Stages)),
		RejectableFrom: make(map[StageID]bool),
		ElevatedRoles:  d.ElevatedRoles.Clone(),
		OversightRoles: d.OversightRoles.Clone(),
		index:          make(map[StageID]int, len(d.Stages)),
	}

	for i, stage := range d.Stages {
		if stage.ID == "" || stage.ID.IsClosed() {
			return nil, fmt.Errorf("%w: %s stage %d has reserved or empty id %q", ErrInvalidDefinition, d.RequestType, i, stage.ID)
		}
		if _, dup := def.index[stage.ID]; dup {
			return nil, fmt.Errorf("%w: %s repeats stage %s", ErrInvalidDefinition, d.RequestType, stage.ID)
		}
		if len(stage.RequiredRoles) == 0 {
			return nil, fmt.Errorf("%w: %s stage %s requires no role", ErrInvalidDefinition, d.RequestType, stage.ID)
		}
		for role := range stage.RequiredRoles {
			if !role.IsValid() {
				return nil, fmt.Errorf("%w: %s stage %s: %q", ErrUnknownRole, d.RequestType, stage.ID, role)
			}
			if role == RoleViewer {
				return nil, fmt.Errorf("%w: %s stage %s cannot be gated on viewer", ErrInvalidDefinition, d.RequestType, stage.ID)
			}
		}
		def.index[stage.ID] = i
		def.Stages[i] = Stage{ID: stage.ID, Label: stage.Label, RequiredRoles: stage.RequiredRoles.Clone()}
	}

	for role := range def.ElevatedRoles {
		if !role.IsValid() || role == RoleViewer {
			return nil, fmt.Errorf("%w: %s elevated role %q", ErrInvalidDefinition, d.RequestType, role)
		}
	}
	for role := range def.OversightRoles {
		if !role.IsValid() {
			return nil, fmt.Errorf("%w: %s oversight role %q", ErrInvalidDefinition, d.RequestType, role)
		}
	}

	if len(d.RejectableFrom) == 0 {
		for _, stage := range def.Stages {
			def.RejectableFrom[stage.ID] = true
		}
	} else {
		for id, ok := range d.RejectableFrom {
			if !ok {
				continue
			}
			if _, known := def.index[id]; !known {
				return nil, fmt.Errorf("%w: %s rejectable from unknown stage %s", ErrInvalidDefinition, d.RequestType, id)
			}
			def.RejectableFrom[id] = true
		}
	}

	def.machine = def.buildMachine()
	return def, nil
}

func (d *Definition) buildMachine() Machine {
	b := NewBuilder()
	for i, stage := range d.Stages {
		next := StageApproved
		if i+1 < len(d.Stages) {
			next = d.Stages[i+1].ID
		}
		cfg := b.Configure(stage.ID).Permit(ActionApproved, next)
		if d.RejectableFrom[stage.ID] {
			cfg.Permit(ActionRejected, StageRejected)
		}
		if i == 0 {
			cfg.Permit(ActionCancelled, StageCancelled)
		}
	}
	return b.Build()
}

// InitialStage returns the stage a new request starts at
func (d *Definition) InitialStage() StageID {
	return d.Stages[0].ID
}

// TerminalApprovedStage returns the stage whose approval completes the workflow
func (d *Definition) TerminalApprovedStage() StageID {
	return d.Stages[len(d.Stages)-1].ID
}

// HasStage reports whether the stage belongs to this chain
func (d *Definition) HasStage(id StageID) bool {
	_, ok := d.index[id]
	return ok
}

// StageIndex returns the position of the stage, or -1
func (d *Definition) StageIndex(id StageID) int {
	if i, ok := d.index[id]; ok {
		return i
	}
	return -1
}

// StageAfter returns the next pending stage, or StageApproved after the terminal stage
func (d *Definition) StageAfter(id StageID) (StageID, error) {
	if !d.HasStage(id) {
		return "", fmt.Errorf("%w: %s in %s", ErrUnknownStage, id, d.RequestType)
	}
	return d.machine.Fire(id, ActionApproved)
}

// RoleRequiredAt returns the roles that may act at the stage
func (d *Definition) RoleRequiredAt(id StageID) (RoleSet, error) {
	i, ok := d.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownStage, id, d.RequestType)
	}
	return d.Stages[i].RequiredRoles, nil
}

// Label returns the human label of the stage, falling back to its id
func (d *Definition) Label(id StageID) string {
	if i, ok := d.index[id]; ok && d.Stages[i].Label != "" {
		return d.Stages[i].Label
	}
	return string(id)
}

// CanActAt reports whether the roles authorize acting at the stage,
// either directly or through an elevated role.
func (d *Definition) CanActAt(roles RoleSet, id StageID) bool {
	required, err := d.RoleRequiredAt(id)
	if err != nil {
		return false
	}
	return roles.Intersects(required) || roles.Intersects(d.ElevatedRoles)
}

// IsRejectable reports whether rejection is legal at the stage
func (d *Definition) IsRejectable(id StageID) bool {
	return d.RejectableFrom[id] && d.HasStage(id)
}

// IsOversight reports whether the roles see every group for this request type
func (d *Definition) IsOversight(roles RoleSet) bool {
	for r := range roles {
		if d.OversightRoles.Has(r) {
			return true
		}
	}
	return false
}

// IsReachable reports whether a record of this type may legally sit at the stage
func (d *Definition) IsReachable(id StageID) bool {
	return d.HasStage(id) || id.IsClosed()
}

// Machine returns the transition table
func (d *Definition) Machine() Machine {
	return d.machine
}
