package config

import (
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestValidateMissingBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Providers["openai"] = ProviderConfig{Credential: "k"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "providers.openai.baseURL") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateNonPositiveReserve(t *testing.T) {
	cfg := Default()
	cfg.ResponseReserve = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero responseReserve must fail validation")
	}
}

func TestHasCredential(t *testing.T) {
	cfg := Default()
	cfg.Providers["openai"] = ProviderConfig{BaseURL: "https://api.openai.com/v1", Credential: "k"}
	cfg.Providers["gemini"] = ProviderConfig{BaseURL: "https://generativelanguage.googleapis.com"}

	if !cfg.HasCredential("openai") {
		t.Error("configured credential not found")
	}
	if cfg.HasCredential("gemini") {
		t.Error("empty credential reported as present")
	}
	if cfg.HasCredential("unknown") {
		t.Error("unknown provider reported as present")
	}
}
