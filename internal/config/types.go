package config

import (
	"time"

	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
)

// Recipe is a named, ordered list of steps behind an optional gate.
type Recipe struct {
	Name        string     `yaml:"name" validate:"required,min=1,max=100"`
	Description string     `yaml:"description,omitempty"`
	Gate        string     `yaml:"gate,omitempty" validate:"omitempty,expr"`
	Steps       []StepSpec `yaml:"steps" validate:"required,min=1,dive"`
}

// StepSpec is the document form of one step.
type StepSpec struct {
	Name       string            `yaml:"name" validate:"required,min=1,max=200"`
	Kind       string            `yaml:"kind" validate:"required,step_kind"`
	State      string            `yaml:"state" validate:"required,kind_state"`
	When       string            `yaml:"when,omitempty" validate:"omitempty,expr"`
	Params     map[string]string `yaml:"params,omitempty" validate:"omitempty,octal_mode"`
	Retries    int               `yaml:"retries,omitempty" validate:"min=0,max=100"`
	RetryDelay string            `yaml:"retry_delay,omitempty" validate:"omitempty,duration"`
}

// ToSpec converts the document form into a resource.Spec. The step must
// have passed validation.
func (s StepSpec) ToSpec() (resource.Spec, error) {
	var delay time.Duration
	if s.RetryDelay != "" {
		d, err := time.ParseDuration(s.RetryDelay)
		if err != nil {
			return resource.Spec{}, resource.NewValidationError(s.Name, err)
		}
		delay = d
	}

	params := make(map[string]string, len(s.Params))
	for k, v := range s.Params {
		params[k] = v
	}

	return resource.Spec{
		Kind:       resource.Kind(s.Kind),
		Name:       s.Name,
		State:      resource.State(s.State),
		Params:     params,
		Retries:    s.Retries,
		RetryDelay: delay,
	}, nil
}

// Settings controls where the tool keeps its state and what it logs.
type Settings struct {
	LogLevel        string `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Root            string `yaml:"root,omitempty"`
	StateDir        string `yaml:"state_dir,omitempty" validate:"required"`
	HistoryPath     string `yaml:"history_path,omitempty"`
	MetricsTextfile string `yaml:"metrics_textfile,omitempty"`
	FilesDir        string `yaml:"files_dir,omitempty"`
	TemplatesDir    string `yaml:"templates_dir,omitempty"`
	OSReleasePath   string `yaml:"os_release_path,omitempty"`
}
