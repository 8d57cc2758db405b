package config

import "time"

// MetricsMode describes the granularity of exported metrics.
type MetricsMode string

const (
	MetricsModePerTarget  MetricsMode = "per-target"
	MetricsModeAggregated MetricsMode = "aggregated"
	MetricsModeBoth       MetricsMode = "both"
)

// PingerMode selects the probe mechanism.
type PingerMode string

const (
	PingerAuto     PingerMode = "auto"
	PingerICMP     PingerMode = "icmp"
	PingerExternal PingerMode = "exec"
)

// GlobalOptions holds global settings parsed from the config file.
type GlobalOptions struct {
	ProbeTimeout     time.Duration
	ProbeCadence     time.Duration
	WindowSize       int
	FailureThreshold int
	FastThreshold    time.Duration
	SlowThreshold    time.Duration
	RepeatInterval   time.Duration
	PollInterval     time.Duration
	AnnounceInitial  bool
	Pinger           PingerMode

	LogDir   string
	LogLevel string

	MetricsMode   MetricsMode
	MetricsListen string
	CORSOrigins   []string

	UIScale   int
	UIDisable bool

	WebhookURL   string
	RedisAddr    string
	RedisChannel string
}

// TargetConfig represents a single target definition.
type TargetConfig struct {
	Name    string
	Address string
	Group   string
}

// Config is the parsed configuration file with global settings.
type Config struct {
	Targets []TargetConfig
	Global  GlobalOptions
}

// Parser defines config parsing behavior for the line-oriented format.
type Parser interface {
	LoadConfig(path string) (*Config, error)
	ParseDirective(line string) (map[string]string, error)
	ParseTargetLine(line string, group string) (TargetConfig, error)
}
