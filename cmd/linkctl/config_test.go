package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/crosslink/internal/bus"
	"github.com/danmuck/crosslink/internal/testutil/testlog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
bridge_timeout_ms = -1
admin_addr = "127.0.0.1:7999"
app_url = "https://a.example/app"
bridges = ["https://b.example/bridge", " "]

[[popups]]
name = "popup"
url = "https://c.example/popup"
`)

	cfg, topo, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BridgeTimeout != bus.NoTimeout {
		t.Fatalf("unexpected bridge timeout: %v", cfg.BridgeTimeout)
	}
	if cfg.SendTimeout != 10*time.Second {
		t.Fatalf("unexpected send timeout: %v", cfg.SendTimeout)
	}
	if cfg.AdminAddr != "127.0.0.1:7999" {
		t.Fatalf("unexpected admin addr: %q", cfg.AdminAddr)
	}
	if topo.AppURL != "https://a.example/app" {
		t.Fatalf("unexpected app url: %q", topo.AppURL)
	}
	if len(topo.Bridges) != 1 || topo.Bridges[0] != "https://b.example/bridge" {
		t.Fatalf("unexpected bridges: %v", topo.Bridges)
	}
	if len(topo.Popups) != 1 || topo.Popups[0].Name != "popup" {
		t.Fatalf("unexpected popups: %+v", topo.Popups)
	}

	origins, err := topo.origins()
	if err != nil {
		t.Fatalf("origins: %v", err)
	}
	if strings.Join(origins, ",") != "https://b.example,https://c.example" {
		t.Fatalf("unexpected origins: %v", origins)
	}
}

func TestLoadConfigEmptyPathUsesDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, topo, err := loadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BridgeTimeout != 5*time.Second || topo.AppURL != "https://app.local/" {
		t.Fatalf("unexpected defaults: %+v %+v", cfg, topo)
	}
}

func TestLoadConfigRejectsDuplicatePopup(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
[[popups]]
name = "popup"
url = "https://b.example/one"

[[popups]]
name = "popup"
url = "https://b.example/two"
`)
	if _, _, err := loadConfig(path); err == nil || !strings.Contains(err.Error(), "duplicate popup") {
		t.Fatalf("expected duplicate popup error, got %v", err)
	}
}

func TestLoadConfigRejectsBadAppURL(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `app_url = "not a url"`)
	if _, _, err := loadConfig(path); err == nil || !strings.Contains(err.Error(), "app_url") {
		t.Fatalf("expected app_url error, got %v", err)
	}
}
