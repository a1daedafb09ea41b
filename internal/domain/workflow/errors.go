package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when no edge exists for an action from a stage
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrUnknownStage is returned when a stage is not part of a definition
	ErrUnknownStage = errors.New("unknown stage")

	// ErrUnknownRole is returned when a role identifier is not recognized
	ErrUnknownRole = errors.New("unknown role")

	// ErrUnknownRequestType is returned when no workflow is registered for a request type
	ErrUnknownRequestType = errors.New("unknown request type")

	// ErrInvalidDefinition is returned when a workflow definition breaks its invariants
	ErrInvalidDefinition = errors.New("invalid workflow definition")
)
