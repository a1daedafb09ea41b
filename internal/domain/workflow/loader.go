package workflow

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type definitionsFile struct {
	Workflows []definitionYAML `yaml:"workflows"`
}

type definitionYAML struct {
	RequestType    string      `yaml:"request_type"`
	Stages         []stageYAML `yaml:"stages"`
	RejectableFrom []string    `yaml:"rejectable_from"`
	ElevatedRoles  []string    `yaml:"elevated_roles"`
	OversightRoles []string    `yaml:"oversight_roles"`
}

type stageYAML struct {
	ID    string   `yaml:"id"`
	Label string   `yaml:"label"`
	Roles []string `yaml:"roles"`
}

// LoadDefinitions parses workflow definitions from YAML. The last stage of
// each workflow is its terminal approved stage.
func LoadDefinitions(r io.Reader) ([]*Definition, error) {
	var file definitionsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode workflow definitions: %w", err)
	}

	defs := make([]*Definition, 0, len(file.Workflows))
	for _, w := range file.Workflows {
		def, err := w.toDefinition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadDefinitionsFile reads definitions from a YAML file
func LoadDefinitionsFile(path string) ([]*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workflow definitions: %w", err)
	}
	defer f.Close()
	return LoadDefinitions(f)
}

func (w definitionYAML) toDefinition() (*Definition, error) {
	requestType, err := ParseRequestType(w.RequestType)
	if err != nil {
		return nil, err
	}

	d := Definition{RequestType: requestType}
	for _, s := range w.Stages {
		roles, err := parseRoles(s.Roles)
		if err != nil {
			return nil, fmt.Errorf("%s stage %s: %w", requestType, s.ID, err)
		}
		d.Stages = append(d.Stages, Stage{ID: ParseStageID(s.ID), Label: s.Label, RequiredRoles: roles})
	}

	if len(w.RejectableFrom) > 0 {
		d.RejectableFrom = make(map[StageID]bool, len(w.RejectableFrom))
		for _, s := range w.RejectableFrom {
			d.RejectableFrom[ParseStageID(s)] = true
		}
	}

	if d.ElevatedRoles, err = parseRoles(w.ElevatedRoles); err != nil {
		return nil, fmt.Errorf("%s elevated roles: %w", requestType, err)
	}
	if d.OversightRoles, err = parseRoles(w.OversightRoles); err != nil {
		return nil, fmt.Errorf("%s oversight roles: %w", requestType, err)
	}

	return NewDefinition(d)
}

func parseRoles(raw []string) (RoleSet, error) {
	set := make(RoleSet, len(raw))
	for _, s := range raw {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		set[r] = struct{}{}
	}
	return set, nil
}
