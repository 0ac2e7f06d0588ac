// Package config holds the gateway's named configuration set: provider
// endpoints and credentials, default model, token reserve and call limits.
package config

import (
	"time"
)

// ProviderConfig is one vendor's endpoint and credential.
type ProviderConfig struct {
	BaseURL    string
	Credential string
}

// Config is the gateway configuration. Values come from the deployment, not
// from hard-coded literals.
type Config struct {
	// Providers maps provider ids to their endpoint configuration.
	Providers map[string]ProviderConfig

	// DefaultModel is used when a request omits the model name.
	DefaultModel string

	// ResponseReserve is the token head-room kept for the model reply.
	ResponseReserve int

	// MaxHistoryDepth caps how many history messages are retained per
	// conversation before token budgeting even runs. Zero keeps everything.
	MaxHistoryDepth int

	// CallTimeout bounds a primary provider invocation.
	CallTimeout time.Duration

	// ContextModel is the lightweight model used for context extraction.
	ContextModel string

	// ContextTimeout bounds the secondary context-extraction call; it is
	// independent from CallTimeout.
	ContextTimeout time.Duration
}

// Default returns a configuration with conservative defaults and no
// providers. Credentials always come from the caller.
func Default() *Config {
	return &Config{
		Providers:       map[string]ProviderConfig{},
		ResponseReserve: 50,
		MaxHistoryDepth: 100,
		CallTimeout:     120 * time.Second,
		ContextTimeout:  30 * time.Second,
	}
}

// HasCredential reports whether the named provider entry carries a
// credential. It satisfies the model registry's CredentialChecker.
func (c *Config) HasCredential(ref string) bool {
	p, ok := c.Providers[ref]
	return ok && p.Credential != ""
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	v := NewValidator()
	v.RequirePositive("responseReserve", c.ResponseReserve)
	if c.MaxHistoryDepth < 0 {
		v.RequirePositive("maxHistoryDepth", c.MaxHistoryDepth)
	}
	for id, p := range c.Providers {
		v.RequireNonEmpty("providers."+id+".baseURL", p.BaseURL)
	}
	return v.Error()
}
