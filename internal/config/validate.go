package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalid marks configuration problems that must stop the process at startup.
var ErrInvalid = errors.New("invalid configuration")

var hostnamePattern = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*\.?$`)

// Load reads path using the structured loader for .yaml/.yml/.json/.toml files
// and the line parser otherwise, then validates the result.
func Load(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".toml":
		cfg, err = LoadStructured(path)
	default:
		cfg, err = LineParser{}.LoadConfig(path)
	}
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem found in cfg, wrapped with ErrInvalid.
func Validate(cfg *Config) error {
	var errs []error
	if len(cfg.Targets) == 0 {
		errs = append(errs, errors.New("at least one target is required"))
	}

	seen := make(map[string]struct{}, len(cfg.Targets))
	for i, tgt := range cfg.Targets {
		if tgt.Name == "" {
			errs = append(errs, fmt.Errorf("target %d: name is required", i))
		} else if _, dup := seen[tgt.Name]; dup {
			errs = append(errs, fmt.Errorf("target %q: duplicate name", tgt.Name))
		}
		seen[tgt.Name] = struct{}{}
		if !ValidAddress(tgt.Address) {
			errs = append(errs, fmt.Errorf("target %q: malformed address %q", tgt.Name, tgt.Address))
		}
	}

	g := cfg.Global
	for name, d := range map[string]int64{
		"probe timeout":   int64(g.ProbeTimeout),
		"probe cadence":   int64(g.ProbeCadence),
		"repeat interval": int64(g.RepeatInterval),
		"poll interval":   int64(g.PollInterval),
		"fast threshold":  int64(g.FastThreshold),
		"slow threshold":  int64(g.SlowThreshold),
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if g.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("window size must be at least 1, got %d", g.WindowSize))
	}
	if g.FailureThreshold < 1 || g.FailureThreshold > g.WindowSize {
		errs = append(errs, fmt.Errorf("failure threshold must be within 1..%d, got %d", g.WindowSize, g.FailureThreshold))
	}
	if g.FastThreshold > g.SlowThreshold {
		errs = append(errs, fmt.Errorf("fast threshold %s exceeds slow threshold %s", g.FastThreshold, g.SlowThreshold))
	}
	switch g.Pinger {
	case PingerAuto, PingerICMP, PingerExternal:
	default:
		errs = append(errs, fmt.Errorf("unknown pinger %q", g.Pinger))
	}
	switch g.MetricsMode {
	case MetricsModePerTarget, MetricsModeAggregated, MetricsModeBoth:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics mode %q", g.MetricsMode))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// ValidAddress reports whether addr is an IP literal or an RFC 1123 host name.
func ValidAddress(addr string) bool {
	if addr == "" {
		return false
	}
	if net.ParseIP(addr) != nil {
		return true
	}
	if len(addr) > 253 || !hostnamePattern.MatchString(addr) {
		return false
	}
	// All-numeric dotted names must have parsed as IPv4 above.
	return strings.Trim(addr, "0123456789.") != ""
}
