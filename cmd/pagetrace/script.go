package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/session"
)

// Script is an action script read from YAML or JSON.
type Script struct {
	Name    string           `yaml:"name"`
	Options ScriptOptions    `yaml:"options"`
	Actions []map[string]any `yaml:"actions"`
}

// ScriptOptions override configured session options for one script.
type ScriptOptions struct {
	Profile           string `yaml:"profile"`
	MaxActionAttempts int    `yaml:"max_action_attempts"`
	RetryBackoff      string `yaml:"retry_backoff"`
	Screenshots       *bool  `yaml:"screenshots"`
	Annotate          *bool  `yaml:"annotate"`
	Headless          *bool  `yaml:"headless"`
	Determinism       *bool  `yaml:"determinism"`
	Viewport          *struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"viewport"`
}

// loadScript reads a script and decodes every action. JSON is valid YAML,
// so both formats go through the same decoder.
func loadScript(path string) (*Script, []action.Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read script: %w", err)
	}
	return parseScript(data)
}

func parseScript(data []byte) (*Script, []action.Action, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(script.Actions) == 0 {
		return nil, nil, fmt.Errorf("script has no actions")
	}

	actions := make([]action.Action, 0, len(script.Actions))
	for i, raw := range script.Actions {
		a, err := action.FromMap(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		if err := a.Validate(); err != nil {
			return nil, nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		actions = append(actions, a)
	}
	return &script, actions, nil
}

// apply layers the script's overrides onto opts.
func (o ScriptOptions) apply(opts *session.Options) error {
	if o.Profile != "" {
		opts.Profile = session.Profile(o.Profile)
	}
	if o.MaxActionAttempts > 0 {
		opts.MaxActionAttempts = o.MaxActionAttempts
	}
	if o.RetryBackoff != "" {
		d, err := time.ParseDuration(o.RetryBackoff)
		if err != nil {
			return fmt.Errorf("invalid retry_backoff: %w", err)
		}
		opts.RetryBackoff = d
	}
	if o.Screenshots != nil {
		opts.Screenshots = *o.Screenshots
	}
	if o.Annotate != nil {
		opts.Annotate = *o.Annotate
	}
	if o.Headless != nil {
		opts.Launch.Headless = *o.Headless
	}
	if o.Determinism != nil {
		opts.Launch.Determinism = *o.Determinism
	}
	if o.Viewport != nil {
		opts.Launch.Viewport.Width = o.Viewport.Width
		opts.Launch.Viewport.Height = o.Viewport.Height
	}
	return nil
}
