// Package config loads the optional microbox defaults file: a small YAML
// document supplying fallback values for fields spec.md §6 otherwise
// treats as having a fixed built-in default. CLI flags always win over
// this file, and this file always wins over the built-in defaults.
package config

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v2"
)

// Defaults is the shape of the optional config file. Zero values mean
// "not set in this file" and are left for the built-in default to supply.
type Defaults struct {
	Hostname     string `yaml:"hostname"`
	BridgeSubnet string `yaml:"bridge_subnet"`
	EnvPath      string `yaml:"env_path"`
	EnvHome      string `yaml:"env_home"`
	EnvTerm      string `yaml:"env_term"`
	TmpfsSize    string `yaml:"tmpfs_size"`
	DevSize      string `yaml:"dev_size"`
	ShmSize      string `yaml:"shm_size"`
}

// Load reads and parses the YAML defaults file at path. A missing file is
// not an error: it simply means no overrides apply.
func Load(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Defaults{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return &d, nil
}
