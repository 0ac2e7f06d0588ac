// Package model holds the static model catalog. Descriptors are loaded once
// at startup and never mutated afterwards.
package model

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Resolve.
var (
	ErrModelNotFound     = errors.New("model not found")
	ErrMissingCredential = errors.New("provider credential not configured")
)

// Capability names a feature a model supports.
type Capability string

const (
	CapStreaming    Capability = "streaming"
	CapToolCalling  Capability = "tool-calling"
	CapJSONResponse Capability = "json-response"
)

// Descriptor describes a single model known to the gateway.
type Descriptor struct {
	Name          string
	Provider      string
	ContextWindow int
	Capabilities  []Capability
	// CredentialRef names the configuration entry holding the provider
	// credential; the registry only checks presence, never the value.
	CredentialRef string
}

// Supports reports whether the descriptor lists the given capability.
func (d Descriptor) Supports(cap Capability) bool {
	for _, c := range d.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// CredentialChecker reports whether a named credential is configured.
type CredentialChecker interface {
	HasCredential(ref string) bool
}

// Registry is a read-only model lookup table.
type Registry struct {
	models map[string]Descriptor
	creds  CredentialChecker
}

// NewRegistry builds a registry from the given descriptors. Later duplicates
// of the same name win, matching config-file override order.
func NewRegistry(creds CredentialChecker, descriptors ...Descriptor) *Registry {
	models := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		models[d.Name] = d
	}
	return &Registry{models: models, creds: creds}
}

// Resolve looks up a model by name. It fails with ErrModelNotFound for an
// unknown name and ErrMissingCredential when the provider's credential is
// absent. Resolve has no side effects.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	d, ok := r.models[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("resolve %q: %w", name, ErrModelNotFound)
	}
	if r.creds != nil && !r.creds.HasCredential(d.CredentialRef) {
		return Descriptor{}, fmt.Errorf("resolve %q: credential %q: %w", name, d.CredentialRef, ErrMissingCredential)
	}
	return d, nil
}

// List returns every registered descriptor.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.models))
	for _, d := range r.models {
		out = append(out, d)
	}
	return out
}
