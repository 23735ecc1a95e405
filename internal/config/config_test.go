package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRelayDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	cfg, err := LoadRelay(nil)
	if err != nil {
		t.Fatalf("LoadRelay: %v", err)
	}
	if cfg.Port != 8080 || cfg.SessionTTL != 10*time.Minute || cfg.PingPeriod != 54*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.UpgradeLimit != 10 || cfg.UpgradeWindow != time.Minute {
		t.Fatalf("limiter cfg = %d %s", cfg.UpgradeLimit, cfg.UpgradeWindow)
	}
}

func TestLoadRelayPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "relay.yaml")
	yaml := "port: 9000\nsession_ttl: 2m\nmode: debug\n"
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REMOTERG_SESSION_TTL", "3m")

	cfg, err := LoadRelay([]string{"--config", file, "--port", "9100"})
	if err != nil {
		t.Fatalf("LoadRelay: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("port = %d, flag must win", cfg.Port)
	}
	if cfg.SessionTTL != 3*time.Minute {
		t.Errorf("session_ttl = %s, env must beat file", cfg.SessionTTL)
	}
	if cfg.Mode != "debug" {
		t.Errorf("mode = %q, file must beat default", cfg.Mode)
	}
}

func TestLoadViewer(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	if _, err := LoadViewer(nil); err == nil {
		t.Fatal("LoadViewer accepted an empty session id")
	}

	t.Setenv("REMOTERG_ICE_SERVERS", "stun:a:3478,stun:b:3478")
	cfg, err := LoadViewer([]string{"--session-id", "S1", "--codec", "vp8"})
	if err != nil {
		t.Fatalf("LoadViewer: %v", err)
	}
	if cfg.SessionID != "S1" || cfg.Codec != "vp8" || cfg.ControlRetryDelay != time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("ice_servers = %v", cfg.ICEServers)
	}
}

func TestRelayValidate(t *testing.T) {
	cfg := Relay{Port: 0, SessionTTL: 0, JanitorPeriod: time.Second, UpgradeWindow: time.Minute, Secret: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid config accepted")
	}
}
