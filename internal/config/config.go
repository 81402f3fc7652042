// Package config loads the software bus's static mission configuration
// using viper. All capacity tables here are fixed at process start —
// the bus never grows them at runtime.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// MissionConfig is the top-level static configuration for one bus
// instance. It maps to the `sbus:` root key in YAML.
type MissionConfig struct {
	Node      NodeConfig      `mapstructure:"node"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Header    HeaderConfig    `mapstructure:"header"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Control   ControlConfig   `mapstructure:"control"`
	Reporting ReportingConfig `mapstructure:"reporting"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

// BootstrapConfig points at an optional startup subscription manifest.
type BootstrapConfig struct {
	ManifestPath string `mapstructure:"manifest_path"`
}

// NodeConfig identifies the node this bus instance runs on.
type NodeConfig struct {
	Hostname string `mapstructure:"hostname"`
	AppName  string `mapstructure:"app_name"`
}

// LimitsConfig carries the build-time capacity tables of the original
// cFS Software Bus, made tunable per deployment.
type LimitsConfig struct {
	MaxPipes             int `mapstructure:"max_pipes"`               // MAX_PIPES
	MaxMsgIDs            int `mapstructure:"max_msg_ids"`             // MAX_MSG_IDS
	MaxDestPerPkt        int `mapstructure:"max_dest_per_pkt"`        // MAX_DEST_PER_PKT
	OSQueueMaxDepth      int `mapstructure:"os_queue_max_depth"`      // OS_QUEUE_MAX_DEPTH
	MaxEventFilters      int `mapstructure:"max_event_filters"`       // MAX_EVENT_FILTERS
	MissionSBMaxPipes    int `mapstructure:"mission_sb_max_pipes"`    // MISSION_SB_MAX_PIPES (STATS_TLM array size)
	SubEntriesPerPkt     int `mapstructure:"sub_entries_per_pkt"`     // SUB_ENTRIES_PER_PKT
}

// HeaderConfig carries default CCSDS primary header fields. Nothing in
// the bus reads them; ccsds.SetDefaultPrimary takes version and APID as
// arguments.
type HeaderConfig struct {
	Version uint8  `mapstructure:"version"`
	APID    uint16 `mapstructure:"apid"`
}

// LogConfig configures the bus's own event log.
type LogConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"` // "text" | "json"
	File   FileLogCfg `mapstructure:"file"`
}

// FileLogCfg configures the rotating file appender (lumberjack).
type FileLogCfg struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ControlConfig configures the admin command channel (C5's command
// pipe exposed to operators via a local UDS JSON-RPC endpoint).
type ControlConfig struct {
	Socket string `mapstructure:"socket"`
}

// ReportingConfig configures the prior-subscriptions dump's optional
// publish to an external networking bridge.
type ReportingConfig struct {
	FileDumpDir  string          `mapstructure:"file_dump_dir"`
	SubReporting bool            `mapstructure:"sub_reporting_enabled"`
	Kafka        KafkaSinkConfig `mapstructure:"kafka"`
}

// KafkaSinkConfig is the optional bridge sink for ALLSUBS_TLM.
type KafkaSinkConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Defaults mirrors the cFS platform/mission defaults so a config file
// need only override what differs.
func Defaults() MissionConfig {
	return MissionConfig{
		Node: NodeConfig{AppName: "SB"},
		Limits: LimitsConfig{
			MaxPipes:          64,
			MaxMsgIDs:         256,
			MaxDestPerPkt:     16,
			OSQueueMaxDepth:   1024,
			MaxEventFilters:   8,
			MissionSBMaxPipes: 64,
			SubEntriesPerPkt:  20,
		},
		Header: HeaderConfig{Version: 0, APID: 0},
		Log:    LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9189",
			Path:    "/metrics",
		},
		Control: ControlConfig{Socket: "/var/run/sbus.sock"},
		Reporting: ReportingConfig{
			FileDumpDir: "/tmp/sbus",
		},
	}
}

// Load reads path (YAML) over the defaults using viper.
func Load(path string) (*MissionConfig, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.UnmarshalKey("sbus", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}
