package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate runs the test in an empty directory with an empty home.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d := Default()
	d.Tools.resolvePaths()
	if cfg.Log != d.Log || cfg.Engine != d.Engine || cfg.Assistant != d.Assistant || cfg.Tools != d.Tools {
		t.Errorf("config = %+v, want defaults %+v", cfg, d)
	}
	if cfg.Memory.SQLitePath != filepath.Join("data", "nova.db") || cfg.Memory.IndexDir != filepath.Join("data", "index") {
		t.Errorf("memory paths = %+v", cfg.Memory)
	}
	if cfg.Memory.Cache.Backend != "local" || cfg.Memory.SearchTTL != 120*time.Second {
		t.Errorf("memory = %+v", cfg.Memory)
	}
	if cfg.Tools.AllowShell || !cfg.Tools.AllowNetwork || cfg.Tools.ProjectsDir != "projects" {
		t.Errorf("tool gates = %+v", cfg.Tools)
	}
}

func TestToolGateAliases(t *testing.T) {
	isolate(t)
	t.Setenv("NOVA_ALLOW_SHELL", "1")
	t.Setenv("NOVA_ALLOW_NETWORK_TOOLS", "false")
	t.Setenv("NOVA_TOOLS_ROOT", "/srv/work")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Tools.AllowShell || cfg.Tools.AllowNetwork {
		t.Errorf("tool gates = %+v", cfg.Tools)
	}
	if cfg.Tools.ProjectsDir != filepath.Join("/srv/work", "projects") {
		t.Errorf("projects dir = %q", cfg.Tools.ProjectsDir)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolate(t)
	yaml := "memory:\n  dir: /var/lib/nova\n  cache:\n    backend: redis\ntools:\n  timeout: 5s\n  retries: 0\n"
	if err := os.WriteFile(filepath.Join(dir, "nova.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NOVA_TOOLS_RETRIES", "3")
	t.Setenv("NOVA_ENGINE_ENABLED", "false")
	t.Setenv("OPENWEATHER_API_KEY", "ow-key")
	t.Setenv("GOOGLE_MAPS_API_KEY", "maps-key")
	t.Setenv("NOVA_PROVIDERS_GOOGLE_MAPS_KEY", "nova-maps-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Memory.Dir != "/var/lib/nova" || cfg.Memory.AuditDir != "/var/lib/nova/audit" {
		t.Errorf("memory = %+v", cfg.Memory)
	}
	if cfg.Memory.Cache.Backend != "redis" {
		t.Errorf("cache backend = %q", cfg.Memory.Cache.Backend)
	}
	if cfg.Tools.Timeout != 5*time.Second || cfg.Tools.Retries != 3 {
		t.Errorf("tools = %+v", cfg.Tools)
	}
	if cfg.Engine.Enabled {
		t.Error("engine should be disabled by env")
	}
	if cfg.Providers.OpenWeatherKey != "ow-key" || cfg.Providers.GoogleMapsKey != "nova-maps-key" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("NOVA_LLM_MODEL=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Registers cleanup so the value godotenv sets does not leak.
	t.Setenv("NOVA_LLM_MODEL", "")
	os.Unsetenv("NOVA_LLM_MODEL")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Model != "from-dotenv" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
