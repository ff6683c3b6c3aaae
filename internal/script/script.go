package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Op names a scenario step.
type Op string

const (
	OpAdd    Op = "add"
	OpAppend Op = "append"
	OpSet    Op = "set"
	OpRemove Op = "remove"
	OpRename Op = "rename"
	OpSelect Op = "select"
	OpBegin  Op = "begin"
	OpCommit Op = "commit"
	OpCancel Op = "cancel"
	OpUndo   Op = "undo"
	OpRedo   Op = "redo"
	OpExpect Op = "expect"
)

// Step is one action of a scenario. Which fields apply depends on Op:
//
//	add     name, props
//	append  parent, prop, name, props
//	set     name, prop, value | ref
//	remove  name
//	rename  name, to
//	select  names
//	begin   description
//	expect  name, props, exists
//
// A step with fails set must return an error; the scenario continues.
type Step struct {
	Op          Op             `mapstructure:"op"`
	Name        string         `mapstructure:"name"`
	Parent      string         `mapstructure:"parent"`
	Prop        string         `mapstructure:"prop"`
	Value       any            `mapstructure:"value"`
	Ref         string         `mapstructure:"ref"`
	To          string         `mapstructure:"to"`
	Names       []string       `mapstructure:"names"`
	Props       map[string]any `mapstructure:"props"`
	Description string         `mapstructure:"description"`
	Exists      *bool          `mapstructure:"exists"`
	Fails       bool           `mapstructure:"fails"`
}

func (s Step) String() string {
	if s.Name == "" {
		return string(s.Op)
	}
	return fmt.Sprintf("%s %s", s.Op, s.Name)
}

// Script is a named list of steps.
type Script struct {
	Name  string
	Steps []Step
}

type file struct {
	Name  string           `yaml:"name" json:"name"`
	Steps []map[string]any `yaml:"steps" json:"steps"`
}

// Load reads a scenario from a YAML or JSON file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var f file
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return build(f)
}

// Parse decodes a YAML scenario.
func Parse(data []byte) (*Script, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	return build(f)
}

func build(f file) (*Script, error) {
	s := &Script{Name: f.Name, Steps: make([]Step, 0, len(f.Steps))}
	for i, raw := range f.Steps {
		step, err := decodeStep(raw)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		s.Steps = append(s.Steps, step)
	}
	return s, nil
}

func decodeStep(raw map[string]any) (Step, error) {
	var step Step
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &step,
		ErrorUnused: true,
	})
	if err != nil {
		return step, err
	}
	if err := dec.Decode(raw); err != nil {
		return step, fmt.Errorf("failed to decode step: %w", err)
	}
	return step, step.validate()
}

func (s Step) validate() error {
	need := func(fields ...string) error {
		values := map[string]string{"name": s.Name, "parent": s.Parent, "prop": s.Prop, "to": s.To}
		for _, f := range fields {
			if values[f] == "" {
				return fmt.Errorf("%s: missing %s", s.Op, f)
			}
		}
		return nil
	}
	switch s.Op {
	case OpAdd, OpRemove, OpExpect:
		return need("name")
	case OpAppend:
		return need("parent", "prop", "name")
	case OpSet:
		if s.Ref != "" && s.Value != nil {
			return fmt.Errorf("set: value and ref are exclusive")
		}
		return need("name", "prop")
	case OpRename:
		return need("name", "to")
	case OpSelect, OpBegin, OpCommit, OpCancel, OpUndo, OpRedo:
		return nil
	case "":
		return fmt.Errorf("missing op")
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
}
