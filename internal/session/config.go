package session

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/persona"
)

// Config is the immutable session configuration. Every With* method returns
// a modified copy; the controller rebuilds the chat from whichever value it
// currently holds.
type Config struct {
	Model         string `json:"model" yaml:"model"`
	SelectorModel string `json:"selector_model" yaml:"selector_model"`
	Persona       string `json:"persona" yaml:"persona"`
	CustomStyle   string `json:"custom_style,omitempty" yaml:"custom_style,omitempty"`
}

func (c Config) WithModel(id string) Config {
	c.Model = strings.TrimSpace(id)
	return c
}

func (c Config) WithSelectorModel(id string) Config {
	c.SelectorModel = strings.TrimSpace(id)
	return c
}

// WithPersona sets the persona. The custom guide is kept only for the custom
// persona.
func (c Config) WithPersona(id, customGuide string) Config {
	c.Persona = strings.TrimSpace(id)
	if c.Persona == persona.Custom {
		c.CustomStyle = customGuide
	} else {
		c.CustomStyle = ""
	}
	return c
}

// Validate checks the config against the persona registry.
func (c Config) Validate(reg *persona.Registry) error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.SelectorModel == "" {
		return fmt.Errorf("selector model is required")
	}
	if reg == nil {
		return nil
	}
	if _, err := reg.Resolve(c.Persona, c.CustomStyle); err != nil {
		return err
	}
	return nil
}
