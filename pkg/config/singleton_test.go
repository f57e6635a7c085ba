package config

import (
	"sync"
	"testing"
)

func resetGlobalConfig() {
	SetConfig(nil)
	initOnce = sync.Once{}
}

func TestInitialize(t *testing.T) {
	resetGlobalConfig()
	t.Cleanup(resetGlobalConfig)

	path := writeConfig(t, `
store:
  backend: memory
`)
	if err := Initialize(path); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config after initialization")
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected backend memory, got %q", cfg.Store.Backend)
	}
}

func TestInitialize_MultipleCallsIgnored(t *testing.T) {
	resetGlobalConfig()
	t.Cleanup(resetGlobalConfig)

	first := writeConfig(t, "store:\n  backend: memory\n")
	second := writeConfig(t, "store:\n  backend: sqlite\n")

	if err := Initialize(first); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}
	if err := Initialize(second); err != nil {
		t.Fatalf("second initialize returned error: %v", err)
	}

	if got := GetConfig().Store.Backend; got != "memory" {
		t.Errorf("expected first config to win, got backend %q", got)
	}
}

func TestReloadConfig_ValidationFailureKeepsCurrent(t *testing.T) {
	resetGlobalConfig()
	t.Cleanup(resetGlobalConfig)

	good := writeConfig(t, "store:\n  backend: memory\n")
	bad := writeConfig(t, "store:\n  backend: oracle\n")

	if err := Initialize(good); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}
	if err := ReloadConfig(bad); err == nil {
		t.Fatal("expected reload to fail")
	}
	if got := GetConfig().Store.Backend; got != "memory" {
		t.Errorf("expected previous config to remain, got backend %q", got)
	}

	if err := ReloadConfig(writeConfig(t, "export:\n  workers: 2\n")); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := GetConfig().Export.Workers; got != 2 {
		t.Errorf("expected reloaded workers 2, got %d", got)
	}
}

func TestMustGetConfig(t *testing.T) {
	resetGlobalConfig()
	t.Cleanup(resetGlobalConfig)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic before initialization")
		}
	}()
	MustGetConfig()
}
