package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	return writeTempFile(t, "connwatch.conf", content)
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfigParsesTargetsAndGroups(t *testing.T) {
	configText := "" +
		"# connwatch: cadence=2s timeout=1500ms window=7 failures=3 ui.scale=25 ui.disable=true\n" +
		"Internet 79.127.78.196\n" +
		"WireGuard 10.60.0.1\n" +
		"---\n" +
		"VoIP 10.60.0.4\n"

	path := writeTempConfig(t, configText)
	parser := LineParser{}

	cfg, err := parser.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if len(cfg.Targets) != 3 {
		t.Fatalf("expected 3 targets, got %d", len(cfg.Targets))
	}
	if cfg.Targets[0].Group != "" {
		t.Fatalf("expected empty group for first target, got %q", cfg.Targets[0].Group)
	}
	if cfg.Targets[2].Group != "group-1" {
		t.Fatalf("expected group-1 for third target, got %q", cfg.Targets[2].Group)
	}
	if cfg.Global.ProbeCadence != 2*time.Second {
		t.Fatalf("expected cadence 2s, got %v", cfg.Global.ProbeCadence)
	}
	if cfg.Global.ProbeTimeout != 1500*time.Millisecond {
		t.Fatalf("expected timeout 1500ms, got %v", cfg.Global.ProbeTimeout)
	}
	if cfg.Global.WindowSize != 7 {
		t.Fatalf("expected window 7, got %d", cfg.Global.WindowSize)
	}
	if cfg.Global.FailureThreshold != 3 {
		t.Fatalf("expected failures 3, got %d", cfg.Global.FailureThreshold)
	}
	if cfg.Global.UIScale != 25 {
		t.Fatalf("expected ui.scale 25, got %d", cfg.Global.UIScale)
	}
	if !cfg.Global.UIDisable {
		t.Fatalf("expected ui.disable true")
	}
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := writeTempConfig(t, "example 192.0.2.1\n")

	cfg, err := LineParser{}.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	want := DefaultGlobalOptions()
	if cfg.Global.ProbeTimeout != want.ProbeTimeout || cfg.Global.ProbeCadence != want.ProbeCadence {
		t.Fatalf("expected default timing, got %+v", cfg.Global)
	}
	if cfg.Global.RepeatInterval != 10*time.Second || cfg.Global.WindowSize != 5 {
		t.Fatalf("expected default repeat/window, got %v/%d", cfg.Global.RepeatInterval, cfg.Global.WindowSize)
	}
}

func TestLoadConfigParsesNamedGroup(t *testing.T) {
	configText := "" +
		"resolver 8.8.8.8\n" +
		"--- DNS\n" +
		"public 1.1.1.1\n"

	path := writeTempConfig(t, configText)
	cfg, err := LineParser{}.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(cfg.Targets))
	}
	if cfg.Targets[1].Group != "DNS" {
		t.Fatalf("expected group DNS, got %q", cfg.Targets[1].Group)
	}
}

func TestLoadConfigParsesDirectiveWithoutComment(t *testing.T) {
	configText := "" +
		"connwatch: repeat=30s metrics.listen=9100 notify.webhook=https://hooks.example.com/x\n" +
		"example 192.0.2.1\n"

	path := writeTempConfig(t, configText)
	cfg, err := LineParser{}.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Global.RepeatInterval != 30*time.Second {
		t.Fatalf("expected repeat 30s, got %v", cfg.Global.RepeatInterval)
	}
	if cfg.Global.MetricsListen != ":9100" {
		t.Fatalf("expected metrics.listen :9100, got %q", cfg.Global.MetricsListen)
	}
	if cfg.Global.WebhookURL != "https://hooks.example.com/x" {
		t.Fatalf("unexpected webhook %q", cfg.Global.WebhookURL)
	}
}

func TestLoadConfigIgnoresComments(t *testing.T) {
	configText := "" +
		"# normal comment\n" +
		"\n" +
		"example 192.0.2.1\n"

	path := writeTempConfig(t, configText)
	cfg, err := LineParser{}.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if len(cfg.Targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(cfg.Targets))
	}
}

func TestLoadConfigRejectsInvalidTargetLine(t *testing.T) {
	for _, line := range []string{"invalidline\n", "name 192.0.2.1 extra\n"} {
		path := writeTempConfig(t, line)
		if _, err := (LineParser{}).LoadConfig(path); err == nil {
			t.Fatalf("expected error for invalid target line %q", line)
		}
	}
}

func TestLoadConfigRejectsInvalidDirective(t *testing.T) {
	configText := "" +
		"# connwatch: cadence=notaduration\n" +
		"example 192.0.2.1\n"

	path := writeTempConfig(t, configText)
	if _, err := (LineParser{}).LoadConfig(path); err == nil {
		t.Fatalf("expected error for invalid directive")
	}
}

func TestParseDirectiveRejectsForeignPrefix(t *testing.T) {
	if _, err := (LineParser{}).ParseDirective("other: a=b"); err == nil {
		t.Fatalf("expected error for foreign directive prefix")
	}
}
