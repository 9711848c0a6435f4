package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-llm-chat/internal/providers"
)

// ProviderConfig is the user-supplied configuration of one provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Enable  *bool  `yaml:"enable"`
}

// providersFile is the layout of PROVIDERS_FILE:
//
//	providers:
//	  openai:
//	    api_key: ${OPENAI_API_KEY}
//	  mistral:
//	    base_url: https://eu.api.mistral.ai/v1
//	  pi:
//	    enable: false
type providersFile struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// loadProviders reads each built-in provider's key from its credential
// variable, then overlays the YAML file at path (if any). ${VAR} references
// in the file are expanded from the environment.
func loadProviders(path string) (map[string]ProviderConfig, error) {
	out := make(map[string]ProviderConfig)
	for name, envVar := range providers.CredentialEnvs() {
		if v := lookup(envVar); v != "" {
			out[strings.ToLower(name)] = ProviderConfig{APIKey: v}
		}
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("PROVIDERS_FILE: %w", err)
	}
	var f providersFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &f); err != nil {
		return nil, fmt.Errorf("PROVIDERS_FILE: %w", err)
	}
	for name, pc := range f.Providers {
		k := strings.ToLower(strings.TrimSpace(name))
		if k == "" {
			continue
		}
		cur := out[k]
		if v := strings.TrimSpace(pc.APIKey); v != "" {
			cur.APIKey = v
		}
		if v := strings.TrimSpace(pc.BaseURL); v != "" {
			cur.BaseURL = v
		}
		if pc.Enable != nil {
			cur.Enable = pc.Enable
		}
		out[k] = cur
	}
	return out, nil
}

// Credentials converts the provider settings into registry credentials.
func (c Config) Credentials() providers.Credentials {
	out := make(providers.Credentials, len(c.Providers))
	for name, pc := range c.Providers {
		out[name] = providers.Credential{
			APIKey:   pc.APIKey,
			BaseURL:  pc.BaseURL,
			Disabled: pc.Enable != nil && !*pc.Enable,
		}
	}
	return out
}
