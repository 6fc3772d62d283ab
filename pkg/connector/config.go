// Copyright 2024-2026 Aiku AI

package connector

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/util/dbutil"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config is the whole bridge configuration file.
type Config struct {
	Homeserver HomeserverConfig  `yaml:"homeserver"`
	AppService AppServiceConfig  `yaml:"appservice"`
	Mattermost MattermostConfig  `yaml:"mattermost"`
	Bridge     BridgeConfig      `yaml:"bridge"`
	Database   dbutil.Config     `yaml:"database"`
	Logging    zeroconfig.Config `yaml:"logging"`
}

type HomeserverConfig struct {
	Address string `yaml:"address"`
	Domain  string `yaml:"domain"`
}

type AppServiceConfig struct {
	Registration string `yaml:"registration"`
	Hostname     string `yaml:"hostname"`
	Port         uint16 `yaml:"port"`
}

type MattermostConfig struct {
	ServerURL           string `yaml:"server_url"`
	Token               string `yaml:"token"`
	DisplaynameTemplate string `yaml:"displayname_template"`
	// BotPrefix is a username prefix for echo prevention. Any Mattermost
	// username starting with this prefix is treated as a bridge-managed bot
	// and its posts are not relayed back to Matrix.
	BotPrefix string `yaml:"bot_prefix"`

	displaynameTemplate *template.Template `yaml:"-"`
}

type BridgeConfig struct {
	GhostPrefix               string        `yaml:"ghost_prefix"`
	CommandPrefix             string        `yaml:"command_prefix"`
	RetryKey                  string        `yaml:"retry_key"`
	RetryPowerLevel           int           `yaml:"retry_power_level"`
	CommandPowerLevel         int           `yaml:"command_power_level"`
	ErrorCooldown             time.Duration `yaml:"error_cooldown"`
	ConfirmationRetention     time.Duration `yaml:"confirmation_retention"`
	ConfirmationSweepInterval time.Duration `yaml:"confirmation_sweep_interval"`
	AdminAPIAddr              string        `yaml:"admin_api_addr"`
}

// DisplaynameParams holds the parameters for rendering the displayname template.
type DisplaynameParams struct {
	Username  string
	Nickname  string
	FirstName string
	LastName  string
}

// DefaultPowerLevel is required for retries and commands unless configured
// otherwise.
const DefaultPowerLevel = 50

// UnmarshalYAML presets defaults that zero is a valid override of, so they
// only apply when the key is missing.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	c.Bridge.RetryPowerLevel = DefaultPowerLevel
	c.Bridge.CommandPowerLevel = DefaultPowerLevel
	return node.Decode((*rawConfig)(c))
}

func (c *MattermostConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig MattermostConfig
	return node.Decode((*rawConfig)(c))
}

// PostProcess fills in defaults and compiles templates. It must be called
// after loading the config.
func (c *Config) PostProcess() error {
	var err error
	c.Mattermost.displaynameTemplate, err = template.New("displayname").Parse(c.Mattermost.DisplaynameTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse displayname template: %w", err)
	}
	c.Mattermost.ServerURL = strings.TrimSuffix(c.Mattermost.ServerURL, "/")
	if c.Bridge.GhostPrefix == "" {
		c.Bridge.GhostPrefix = "mattermost_"
	}
	if c.Bridge.CommandPrefix == "" {
		c.Bridge.CommandPrefix = "!mm"
	}
	if c.Bridge.RetryKey == "" {
		c.Bridge.RetryKey = DefaultRetryKey
	}
	if c.Bridge.ErrorCooldown <= 0 {
		c.Bridge.ErrorCooldown = 5 * time.Second
	}
	return nil
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "homeserver", "address")
	helper.Copy(up.Str, "homeserver", "domain")
	helper.Copy(up.Str, "appservice", "registration")
	helper.Copy(up.Str, "appservice", "hostname")
	helper.Copy(up.Int, "appservice", "port")
	helper.Copy(up.Str, "mattermost", "server_url")
	helper.Copy(up.Str, "mattermost", "token")
	helper.Copy(up.Str, "mattermost", "displayname_template")
	helper.Copy(up.Str, "mattermost", "bot_prefix")
	helper.Copy(up.Str, "bridge", "ghost_prefix")
	helper.Copy(up.Str, "bridge", "command_prefix")
	helper.Copy(up.Str, "bridge", "retry_key")
	helper.Copy(up.Int, "bridge", "retry_power_level")
	helper.Copy(up.Int, "bridge", "command_power_level")
	helper.Copy(up.Str, "bridge", "error_cooldown")
	helper.Copy(up.Str, "bridge", "confirmation_retention")
	helper.Copy(up.Str, "bridge", "confirmation_sweep_interval")
	helper.Copy(up.Str|up.Null, "bridge", "admin_api_addr")
	helper.Copy(up.Str, "database", "type")
	helper.Copy(up.Str, "database", "uri")
	helper.Copy(up.Int, "database", "max_open_conns")
	helper.Copy(up.Int, "database", "max_idle_conns")
	helper.Copy(up.Str|up.Null, "database", "max_conn_idle_time")
	helper.Copy(up.Str|up.Null, "database", "max_conn_lifetime")
	helper.Copy(up.Map, "logging")
}

// ConfigUpgrader merges an existing config file with the embedded example.
var ConfigUpgrader = &up.StructUpgrader{
	SimpleUpgrader: upgradeConfig,
	Blocks: [][]string{
		{"appservice"},
		{"mattermost"},
		{"bridge"},
		{"database"},
		{"logging"},
	},
	Base: ExampleConfig,
}

// FormatDisplayname generates a display name from the template and params.
func (c *MattermostConfig) FormatDisplayname(params DisplaynameParams) string {
	if c.displaynameTemplate == nil {
		return params.Username
	}
	var buf strings.Builder
	if err := c.displaynameTemplate.Execute(&buf, params); err != nil {
		return params.Username
	}
	return buf.String()
}
