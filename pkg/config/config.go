// Package config holds the operator configuration sourced once per lifecycle
// event and passed explicitly into each handler invocation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultMode is the UPF datapath mode used when none is configured.
const DefaultMode = "af_packet"

// ErrFeatureNotImplemented is returned when the configuration requests a
// datapath feature the operator deliberately does not implement yet.
var ErrFeatureNotImplemented = errors.New("feature not implemented")

// Config is the operator configuration for a single event invocation.
type Config struct {
	// Mode is the bessd datapath mode written into the UPF config file.
	Mode string `json:"mode"`

	// EnableSRIOV requests SR-IOV network attachments. Not implemented;
	// Validate rejects it before any side effect.
	EnableSRIOV bool `json:"enable-sriov"`

	// EnableHugepages requests hugepage-backed bessd memory. Not
	// implemented; Validate rejects it before any side effect.
	EnableHugepages bool `json:"enable-hugepages"`
}

// Default returns the configuration used when no keys are set.
func Default() Config {
	return Config{Mode: DefaultMode}
}

// Parse decodes the JSON document produced by `config-get --format=json`.
// Missing keys keep their defaults.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if cfg.Mode == "" {
		cfg.Mode = DefaultMode
	}
	return cfg, nil
}

// Validate rejects configurations requesting unimplemented features. This is
// a non-recoverable error: the handler must fail before performing any side
// effect so the operator surfaces the bad configuration immediately.
func (c Config) Validate() error {
	if c.EnableSRIOV {
		return fmt.Errorf("%w: SR-IOV", ErrFeatureNotImplemented)
	}
	if c.EnableHugepages {
		return fmt.Errorf("%w: hugepages", ErrFeatureNotImplemented)
	}
	return nil
}
