// Copyright 2024-2026 Aiku AI

package connector

import (
	"fmt"
	"net/url"
	"strings"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

// Config holds the network section: the web listener serving side 1 and
// the Mattermost connection serving side 2.
type Config struct {
	// ListenAddr is where the web client and its WebSocket are served.
	ListenAddr string `yaml:"listen_addr"`
	// OriginPatterns lists extra browser origins allowed to open a socket.
	OriginPatterns []string `yaml:"origin_patterns"`

	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
	// ChannelID is the Mattermost channel holding one thread per connection.
	ChannelID string `yaml:"channel_id"`
	// BotPrefix is a username prefix for echo prevention. Posts from any
	// Mattermost username starting with it are not relayed. Leave empty to
	// disable prefix-based filtering.
	BotPrefix string `yaml:"bot_prefix"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess fills in defaults and validates the configuration.
func (c *Config) PostProcess() error {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")
	if c.ServerURL == "" {
		return nil
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("server_url must be an http(s) URL, got %q", c.ServerURL)
	}
	if c.ChannelID == "" {
		return fmt.Errorf("channel_id is required when server_url is set")
	}
	return nil
}

// MattermostEnabled reports whether side 2 should connect to Mattermost.
func (c *Config) MattermostEnabled() bool {
	return c.ServerURL != ""
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "network", "listen_addr")
	helper.Copy(up.List, "network", "origin_patterns")
	helper.Copy(up.Str, "network", "server_url")
	helper.Copy(up.Str, "network", "token")
	helper.Copy(up.Str, "network", "channel_id")
	helper.Copy(up.Str, "network", "bot_prefix")
}

// Upgrader copies the network section of a user config onto the example.
var Upgrader up.Upgrader = up.SimpleUpgrader(upgradeConfig)
