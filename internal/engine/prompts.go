package engine

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/prompts.yaml
var promptsYAML []byte

// QuickAction is a canned player reply offered by the UI.
type QuickAction struct {
	Label  string `yaml:"label"`
	Prefix string `yaml:"prefix"`
	// Placeholder hints at what should follow Prefix; empty for complete actions.
	Placeholder string `yaml:"placeholder"`
}

// Prompts is the static text the game master is driven with.
type Prompts struct {
	SystemInstruction string        `yaml:"system_instruction"`
	Greeting          string        `yaml:"greeting"`
	Theme             string        `yaml:"theme"`
	ImageStyle        string        `yaml:"image_style"`
	QuickActions      []QuickAction `yaml:"quick_actions"`

	themeTmpl *template.Template
}

// LoadPrompts parses the embedded prompts file.
func LoadPrompts() (*Prompts, error) {
	return ParsePrompts(promptsYAML)
}

// ParsePrompts parses a prompts file in the embedded format.
func ParsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if strings.TrimSpace(p.SystemInstruction) == "" || strings.TrimSpace(p.Greeting) == "" {
		return nil, fmt.Errorf("parse prompts: system_instruction and greeting are required")
	}
	if p.Theme == "" {
		p.Theme = "{{.Theme}}"
	}
	tmpl, err := template.New("theme").Parse(p.Theme)
	if err != nil {
		return nil, fmt.Errorf("parse theme template: %w", err)
	}
	p.themeTmpl = tmpl
	return &p, nil
}

// ThemeMessage frames the player's theme as the message sent to the model.
func (p *Prompts) ThemeMessage(theme string) (string, error) {
	var buf bytes.Buffer
	if err := p.themeTmpl.Execute(&buf, struct{ Theme string }{Theme: theme}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ApplyQuickAction returns the input text after choosing action, given the
// text currently typed. Complete actions replace the input; actions with a
// placeholder keep whatever the player already wrote after the prefix.
func ApplyQuickAction(action QuickAction, current string) string {
	if action.Placeholder == "" {
		return strings.TrimSpace(action.Prefix)
	}
	rest := strings.TrimPrefix(current, action.Prefix)
	return strings.TrimLeft(action.Prefix+rest, " ")
}
