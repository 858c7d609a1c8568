// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables,
// plus loading of the boot configuration consumed by hosted applications.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Options holds the configuration values for the demo shell and tools.
type Options struct {
	// StorePath is the path of the credential store file.
	StorePath string

	// ServerURL is the identity provider base URL.
	ServerURL string

	// BootConfig is the path to the boot configuration file for hosted apps.
	BootConfig string

	// LogLevel controls logger verbosity.
	LogLevel string
}

// BootConfig mirrors the boot configuration a hosted application ships
// with. Hosted apps resolve their login options from these values instead
// of supplying them at initialization.
type BootConfig struct {
	// OAuthRedirectURI is the callback URI registered with the provider.
	OAuthRedirectURI string `json:"oauthRedirectURI"`

	// RemoteAccessConsumerKey identifies the client application.
	RemoteAccessConsumerKey string `json:"remoteAccessConsumerKey"`

	// OAuthScopes are the scopes requested at login.
	OAuthScopes []string `json:"oauthScopes"`
}

// ApplyEnv overrides option values from environment variables if set.
func (o *Options) ApplyEnv() {
	if v := os.Getenv("SESSIONKIT_STORE"); v != "" {
		o.StorePath = v
	}
	if v := os.Getenv("SESSIONKIT_SERVER"); v != "" {
		o.ServerURL = v
	}
	if v := os.Getenv("SESSIONKIT_BOOT_CONFIG"); v != "" {
		o.BootConfig = v
	}
	if v := os.Getenv("SESSIONKIT_LOG_LEVEL"); v != "" {
		o.LogLevel = v
	}
}

// LoadBootConfig reads and validates the boot configuration at path.
func LoadBootConfig(path string) (*BootConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boot config: %w", err)
	}
	var cfg BootConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse boot config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the required boot configuration values are present.
func (c *BootConfig) Validate() error {
	var missing []string
	if c.OAuthRedirectURI == "" {
		missing = append(missing, "oauthRedirectURI")
	}
	if c.RemoteAccessConsumerKey == "" {
		missing = append(missing, "remoteAccessConsumerKey")
	}
	if len(c.OAuthScopes) == 0 {
		missing = append(missing, "oauthScopes")
	}
	if len(missing) > 0 {
		return fmt.Errorf("boot config missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
