package config

import (
	"fmt"
	"os"
	"strconv"
)

// SystemConfig is the process-wide configuration read from the environment
// at startup: storage locations, the HTTP bind address, and which LLM
// providers have credentials configured. It backs the read-only
// /registries/system-config endpoint and cmd/meridian's wiring.
type SystemConfig struct {
	StoragePath     string          `json:"storage_path"`
	RegistryPath    string          `json:"registry_path"`
	HTTPAddr        string          `json:"http_addr"`
	CleanupDelaySecs int            `json:"cleanup_delay_seconds"`
	LLMProviders    map[string]bool `json:"llm_providers"` // provider -> has API key
}

// envProviderKeys lists the environment variables that signal a usable LLM
// provider credential. Presence, not value, is surfaced to callers — the
// system-config endpoint never echoes secret material.
var envProviderKeys = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"azure":     "AZURE_OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadSystemConfig reads SystemConfig from the environment, applying the
// same defaults cmd/meridian falls back to when unset.
func LoadSystemConfig() (*SystemConfig, error) {
	cfg := &SystemConfig{
		StoragePath:  getenv("STORAGE_PATH", "./data"),
		RegistryPath: getenv("REGISTRY_PATH", "./registry"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		LLMProviders: map[string]bool{},
	}

	delaySecs := getenv("CLEANUP_DELAY_SECONDS", "300")
	n, err := strconv.Atoi(delaySecs)
	if err != nil {
		return nil, fmt.Errorf("parsing CLEANUP_DELAY_SECONDS=%q: %w", delaySecs, err)
	}
	cfg.CleanupDelaySecs = n

	for provider, envVar := range envProviderKeys {
		cfg.LLMProviders[provider] = os.Getenv(envVar) != ""
	}
	return cfg, nil
}
