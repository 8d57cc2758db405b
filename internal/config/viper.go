package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "CONNWATCH"

type fileTarget struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Group   string `mapstructure:"group"`
}

type fileConfig struct {
	Targets          []fileTarget `mapstructure:"targets"`
	ProbeTimeoutMs   int          `mapstructure:"probeTimeoutMs"`
	ProbeCadenceMs   int          `mapstructure:"probeCadenceMs"`
	WindowSize       int          `mapstructure:"windowSize"`
	FailureThreshold int          `mapstructure:"failureThreshold"`
	RepeatIntervalMs int          `mapstructure:"repeatIntervalMs"`
	PollIntervalMs   int          `mapstructure:"pollIntervalMs"`
	FastThresholdMs  int          `mapstructure:"fastThresholdMs"`
	SlowThresholdMs  int          `mapstructure:"slowThresholdMs"`
	AnnounceInitial  bool         `mapstructure:"announceInitial"`
	Pinger           string       `mapstructure:"pinger"`

	Log struct {
		Dir   string `mapstructure:"dir"`
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Metrics struct {
		Mode        string   `mapstructure:"mode"`
		Listen      string   `mapstructure:"listen"`
		CORSOrigins []string `mapstructure:"corsOrigins"`
	} `mapstructure:"metrics"`

	UI struct {
		Disable bool `mapstructure:"disable"`
		Scale   int  `mapstructure:"scale"`
	} `mapstructure:"ui"`

	Notify struct {
		WebhookURL   string `mapstructure:"webhookUrl"`
		RedisAddr    string `mapstructure:"redisAddr"`
		RedisChannel string `mapstructure:"redisChannel"`
	} `mapstructure:"notify"`
}

// LoadStructured reads a YAML, JSON or TOML config file. Environment variables
// prefixed with CONNWATCH_ override file values (CONNWATCH_LOG_LEVEL=debug).
func LoadStructured(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return fc.toConfig(), nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultGlobalOptions()
	v.SetDefault("probeTimeoutMs", d.ProbeTimeout.Milliseconds())
	v.SetDefault("probeCadenceMs", d.ProbeCadence.Milliseconds())
	v.SetDefault("windowSize", d.WindowSize)
	v.SetDefault("failureThreshold", d.FailureThreshold)
	v.SetDefault("repeatIntervalMs", d.RepeatInterval.Milliseconds())
	v.SetDefault("pollIntervalMs", d.PollInterval.Milliseconds())
	v.SetDefault("fastThresholdMs", d.FastThreshold.Milliseconds())
	v.SetDefault("slowThresholdMs", d.SlowThreshold.Milliseconds())
	v.SetDefault("announceInitial", d.AnnounceInitial)
	v.SetDefault("pinger", string(d.Pinger))
	v.SetDefault("log.dir", d.LogDir)
	v.SetDefault("log.level", d.LogLevel)
	v.SetDefault("metrics.mode", string(d.MetricsMode))
	v.SetDefault("metrics.listen", d.MetricsListen)
	v.SetDefault("ui.disable", d.UIDisable)
	v.SetDefault("ui.scale", d.UIScale)
	v.SetDefault("notify.redisChannel", d.RedisChannel)
}

func (fc fileConfig) toConfig() *Config {
	cfg := &Config{
		Global: GlobalOptions{
			ProbeTimeout:     millis(fc.ProbeTimeoutMs),
			ProbeCadence:     millis(fc.ProbeCadenceMs),
			WindowSize:       fc.WindowSize,
			FailureThreshold: fc.FailureThreshold,
			FastThreshold:    millis(fc.FastThresholdMs),
			SlowThreshold:    millis(fc.SlowThresholdMs),
			RepeatInterval:   millis(fc.RepeatIntervalMs),
			PollInterval:     millis(fc.PollIntervalMs),
			AnnounceInitial:  fc.AnnounceInitial,
			Pinger:           PingerMode(fc.Pinger),
			LogDir:           fc.Log.Dir,
			LogLevel:         fc.Log.Level,
			MetricsMode:      MetricsMode(fc.Metrics.Mode),
			MetricsListen:    normalizeListen(fc.Metrics.Listen),
			CORSOrigins:      fc.Metrics.CORSOrigins,
			UIScale:          fc.UI.Scale,
			UIDisable:        fc.UI.Disable,
			WebhookURL:       fc.Notify.WebhookURL,
			RedisAddr:        fc.Notify.RedisAddr,
			RedisChannel:     fc.Notify.RedisChannel,
		},
	}
	for _, t := range fc.Targets {
		cfg.Targets = append(cfg.Targets, TargetConfig{
			Name:    strings.TrimSpace(t.Name),
			Address: strings.TrimSpace(t.Address),
			Group:   strings.TrimSpace(t.Group),
		})
	}
	return cfg
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
