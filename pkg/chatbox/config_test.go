// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	if err := yaml.Unmarshal([]byte("{}"), &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	if cfg.Name != "ChatBox50" {
		t.Errorf("Name: got %q, want %q", cfg.Name, "ChatBox50")
	}
	if cfg.QueueSize != 256 || cfg.AllocationTimeout != 30 {
		t.Errorf("QueueSize/AllocationTimeout: got %d/%d, want 256/30", cfg.QueueSize, cfg.AllocationTimeout)
	}
	if cfg.Side1.Name != "server_1" || cfg.Side2.Name != "server_2" {
		t.Errorf("side names: got %q/%q", cfg.Side1.Name, cfg.Side2.Name)
	}
	if cfg.Side1.Kind() != KindUUID {
		t.Errorf("Side1 kind: got %s, want %s", cfg.Side1.Kind(), KindUUID)
	}
	if cfg.Database.Type != "sqlite3" {
		t.Errorf("Database.Type: got %q, want %q", cfg.Database.Type, "sqlite3")
	}
}

func TestConfigParse(t *testing.T) {
	t.Parallel()
	raw := `
name: support
queue_size: 8
side1:
  name: web
  id_type: uuid
side2:
  name: mattermost
  id_type: string
  strict_allocation: true
database:
  type: postgres
  uri: postgres://chatbox@localhost/chatbox
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	if cfg.Name != "support" || cfg.QueueSize != 8 {
		t.Errorf("got name %q queue %d", cfg.Name, cfg.QueueSize)
	}
	if side2 := cfg.Side(Side2); side2.Kind() != KindString || !side2.StrictAllocation {
		t.Errorf("Side2: got kind %s strict %v", side2.Kind(), side2.StrictAllocation)
	}
	if cfg.Database.Type != "postgres" {
		t.Errorf("Database.Type: got %q, want %q", cfg.Database.Type, "postgres")
	}
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"same side names", Config{Side1: SideConfig{Name: "x"}, Side2: SideConfig{Name: "x"}}},
		{"unknown id type", Config{Side1: SideConfig{IDType: "float"}}},
		{"negative queue", Config{QueueSize: -1}},
		{"negative timeout", Config{AllocationTimeout: -5}},
		{"unknown database", Config{Database: DatabaseConfig{Type: "mysql"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			if err := cfg.PostProcess(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
