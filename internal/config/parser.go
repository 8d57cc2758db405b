package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const directivePrefix = "connwatch:"

// LineParser implements the Parser interface for connwatch.conf files.
type LineParser struct{}

// DefaultGlobalOptions returns baseline settings used before config overrides.
func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ProbeTimeout:     2 * time.Second,
		ProbeCadence:     5 * time.Second,
		WindowSize:       5,
		FailureThreshold: 2,
		FastThreshold:    200 * time.Millisecond,
		SlowThreshold:    1500 * time.Millisecond,
		RepeatInterval:   10 * time.Second,
		PollInterval:     1 * time.Second,
		AnnounceInitial:  false,
		Pinger:           PingerAuto,
		LogDir:           "logs",
		LogLevel:         "info",
		MetricsMode:      MetricsModePerTarget,
		MetricsListen:    "",
		UIScale:          10,
		UIDisable:        false,
		RedisChannel:     "connwatch:events",
	}
}

// LoadConfig parses a connwatch.conf file.
func (p LineParser) LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &Config{Global: DefaultGlobalOptions()}
	scanner := bufio.NewScanner(file)
	groupIndex := 0
	currentGroup := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "# "+directivePrefix) {
				pairs, err := p.ParseDirective(line)
				if err != nil {
					return nil, err
				}
				if err := applyDirective(&cfg.Global, pairs); err != nil {
					return nil, err
				}
			}
			continue
		}

		if strings.HasPrefix(line, directivePrefix) {
			pairs, err := p.ParseDirective(line)
			if err != nil {
				return nil, err
			}
			if err := applyDirective(&cfg.Global, pairs); err != nil {
				return nil, err
			}
			continue
		}

		if strings.HasPrefix(line, "---") {
			groupIndex++
			groupName := strings.TrimSpace(strings.TrimPrefix(line, "---"))
			if groupName == "" {
				groupName = fmt.Sprintf("group-%d", groupIndex)
			}
			currentGroup = groupName
			continue
		}

		target, err := p.ParseTargetLine(line, currentGroup)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, target)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseDirective extracts key=value pairs from a directive line.
func (p LineParser) ParseDirective(line string) (map[string]string, error) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "#") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
	}
	if !strings.HasPrefix(trimmed, directivePrefix) {
		return nil, fmt.Errorf("directive line must start with '# %s' or '%s': %q", directivePrefix, directivePrefix, line)
	}

	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, directivePrefix))
	if payload == "" {
		return map[string]string{}, nil
	}

	pairs := make(map[string]string)
	for _, token := range strings.Fields(payload) {
		kv := strings.SplitN(token, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid directive token: %q", token)
		}
		pairs[kv[0]] = kv[1]
	}
	return pairs, nil
}

// ParseTargetLine parses a single "name address" target definition.
func (p LineParser) ParseTargetLine(line string, group string) (TargetConfig, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return TargetConfig{}, fmt.Errorf("invalid target line: %q", line)
	}
	return TargetConfig{
		Name:    fields[0],
		Address: fields[1],
		Group:   group,
	}, nil
}

func applyDirective(global *GlobalOptions, pairs map[string]string) error {
	for key, val := range pairs {
		var err error
		switch key {
		case "timeout":
			global.ProbeTimeout, err = parseDuration(key, val)
		case "cadence":
			global.ProbeCadence, err = parseDuration(key, val)
		case "repeat":
			global.RepeatInterval, err = parseDuration(key, val)
		case "poll":
			global.PollInterval, err = parseDuration(key, val)
		case "fast":
			global.FastThreshold, err = parseDuration(key, val)
		case "slow":
			global.SlowThreshold, err = parseDuration(key, val)
		case "window":
			global.WindowSize, err = parseInt(key, val)
		case "failures":
			global.FailureThreshold, err = parseInt(key, val)
		case "announce":
			global.AnnounceInitial, err = parseBool(key, val)
		case "pinger":
			global.Pinger = PingerMode(val)
		case "log.dir":
			global.LogDir = val
		case "log.level":
			global.LogLevel = val
		case "metrics.mode":
			global.MetricsMode = MetricsMode(val)
		case "metrics.listen":
			global.MetricsListen = normalizeListen(val)
		case "metrics.cors":
			global.CORSOrigins = strings.Split(val, ",")
		case "ui.scale":
			global.UIScale, err = parseInt(key, val)
		case "ui.disable":
			global.UIDisable, err = parseBool(key, val)
		case "notify.webhook":
			global.WebhookURL = val
		case "notify.redis":
			global.RedisAddr = val
		case "notify.redis_channel":
			global.RedisChannel = val
		default:
			// Ignore unknown keys for forward compatibility.
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func parseDuration(key, val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key, val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseBool(key, val string) (bool, error) {
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func normalizeListen(value string) string {
	if isDigits(value) {
		return ":" + value
	}
	return value
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
