// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"fmt"
	"time"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

// SideConfig declares one side of the bridge.
type SideConfig struct {
	Name   string `yaml:"name"`
	IDType string `yaml:"id_type"`
	// StrictAllocation makes connection creation fail when this side has no
	// allocator, instead of generating an id for generatable kinds.
	StrictAllocation bool `yaml:"strict_allocation"`

	kind IDKind `yaml:"-"`
}

// Kind returns the declared id kind. Only valid after Config.PostProcess.
func (sc *SideConfig) Kind() IDKind {
	if sc.kind == "" {
		kind, err := ParseIDKind(sc.IDType)
		if err != nil {
			return KindUUID
		}
		return kind
	}
	return sc.kind
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	// Type is the driver name: sqlite3 or postgres.
	Type string `yaml:"type"`
	// URI is the data source. Empty means <name>.db next to the binary.
	URI string `yaml:"uri"`
}

// Config holds the chatbox core configuration.
type Config struct {
	// Name identifies the storage unit. It must be unique per deployment.
	Name  string `yaml:"name"`
	Debug bool   `yaml:"debug"`
	// QueueSize bounds each side's queue towards the broker.
	QueueSize int `yaml:"queue_size"`
	// AllocationTimeout is how long, in seconds, an allocator may take.
	AllocationTimeout int `yaml:"allocation_timeout"`

	Side1    SideConfig     `yaml:"side1"`
	Side2    SideConfig     `yaml:"side2"`
	Database DatabaseConfig `yaml:"database"`
}

const (
	defaultName              = "ChatBox50"
	defaultQueueSize         = 256
	defaultAllocationTimeout = 30
)

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess fills in defaults and validates the configuration.
func (c *Config) PostProcess() error {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	} else if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must be positive, got %d", c.QueueSize)
	}
	if c.AllocationTimeout == 0 {
		c.AllocationTimeout = defaultAllocationTimeout
	} else if c.AllocationTimeout < 0 {
		return fmt.Errorf("allocation_timeout must be positive, got %d", c.AllocationTimeout)
	}
	if c.Side1.Name == "" {
		c.Side1.Name = "server_1"
	}
	if c.Side2.Name == "" {
		c.Side2.Name = "server_2"
	}
	if c.Side1.Name == c.Side2.Name {
		return fmt.Errorf("side names must differ, both are %q", c.Side1.Name)
	}
	var err error
	if c.Side1.kind, err = ParseIDKind(c.Side1.IDType); err != nil {
		return fmt.Errorf("side1: %w", err)
	}
	if c.Side2.kind, err = ParseIDKind(c.Side2.IDType); err != nil {
		return fmt.Errorf("side2: %w", err)
	}
	switch c.Database.Type {
	case "":
		c.Database.Type = "sqlite3"
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	return nil
}

// Side returns the configuration of one side.
func (c *Config) Side(side Side) *SideConfig {
	if side == Side1 {
		return &c.Side1
	}
	return &c.Side2
}

func (c *Config) allocationTimeout() time.Duration {
	if c.AllocationTimeout <= 0 {
		return defaultAllocationTimeout * time.Second
	}
	return time.Duration(c.AllocationTimeout) * time.Second
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "chatbox", "name")
	helper.Copy(up.Bool, "chatbox", "debug")
	helper.Copy(up.Int, "chatbox", "queue_size")
	helper.Copy(up.Int, "chatbox", "allocation_timeout")
	for _, side := range []string{"side1", "side2"} {
		helper.Copy(up.Str, "chatbox", side, "name")
		helper.Copy(up.Str, "chatbox", side, "id_type")
		helper.Copy(up.Bool, "chatbox", side, "strict_allocation")
	}
	helper.Copy(up.Str, "chatbox", "database", "type")
	helper.Copy(up.Str|up.Null, "chatbox", "database", "uri")
}

// Upgrader copies the chatbox section of a user config onto the example.
var Upgrader up.Upgrader = up.SimpleUpgrader(upgradeConfig)
