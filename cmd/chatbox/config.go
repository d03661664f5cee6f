// Copyright 2024-2026 Aiku AI

package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiku/chatbox/pkg/chatbox"
	"github.com/aiku/chatbox/pkg/connector"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config is the whole configuration file of the binary.
type Config struct {
	Chatbox chatbox.Config    `yaml:"chatbox"`
	Network connector.Config  `yaml:"network"`
	Logging zeroconfig.Config `yaml:"logging"`
}

func upgradeConfig(helper up.Helper) {
	chatbox.Upgrader.DoUpgrade(helper)
	connector.Upgrader.DoUpgrade(helper)
	helper.Copy(up.Map, "logging")
}

var configUpgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Blocks: [][]string{
		{"network"},
		{"logging"},
	},
	Base: ExampleConfig,
}

// loadConfig merges the file at path onto the example config, optionally
// writing the result back, then decodes and validates it.
func loadConfig(path string, save bool) (*Config, error) {
	data, _, err := up.Do(path, save, configUpgrader)
	if err != nil {
		return nil, err
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Chatbox.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid chatbox config: %w", err)
	}
	if err := cfg.Network.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid network config: %w", err)
	}
	return &cfg, nil
}

// writeExampleConfig saves the example config to path, refusing to replace
// an existing file.
func writeExampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(ExampleConfig), 0o600)
}
