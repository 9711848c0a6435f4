package domain

import (
	"errors"
	"strings"
)

// ErrInvalidSelection is returned by ParseSelection when the input does not
// name both a provider and a model.
var ErrInvalidSelection = errors.New("selection must be in provider:model form")

// Selection is a transient (provider, model) pair. It is stored on
// Conversation.Model in its String form.
type Selection struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ParseSelection splits "provider:model" (or the "Provider: model" form shown
// in model pickers) on the first colon. Model ids may themselves contain
// colons or slashes, e.g. "OpenRouter: meta-llama/llama-3:free".
func ParseSelection(s string) (Selection, error) {
	provider, model, ok := strings.Cut(s, ":")
	if !ok {
		return Selection{}, ErrInvalidSelection
	}
	sel := Selection{
		Provider: strings.TrimSpace(provider),
		Model:    strings.TrimSpace(model),
	}
	if sel.Provider == "" || sel.Model == "" {
		return Selection{}, ErrInvalidSelection
	}
	return sel, nil
}

// String renders the canonical "provider:model" form.
func (s Selection) String() string {
	if s.Provider == "" && s.Model == "" {
		return ""
	}
	return s.Provider + ":" + s.Model
}
