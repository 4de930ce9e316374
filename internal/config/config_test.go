package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SwitchTimeoutMs != DefaultConfig().SwitchTimeoutMs {
		t.Fatalf("SwitchTimeoutMs = %d, want %d", cfg.SwitchTimeoutMs, DefaultConfig().SwitchTimeoutMs)
	}
	if cfg.ModifierKey != "ctrl" {
		t.Fatalf("ModifierKey = %q, want ctrl", cfg.ModifierKey)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"switch_timeout_ms": 2500, "click_jitter_px": 4, "min_tabs": 4}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SwitchTimeoutMs != 2500 {
		t.Fatalf("SwitchTimeoutMs = %d, want %d", cfg.SwitchTimeoutMs, 2500)
	}
	if cfg.SwitchTimeout() != 2500*time.Millisecond {
		t.Fatalf("SwitchTimeout() = %v", cfg.SwitchTimeout())
	}
	if cfg.ClickJitterPx != 4 {
		t.Fatalf("ClickJitterPx = %d, want 4", cfg.ClickJitterPx)
	}
	if cfg.ReadyTimeoutMs != 5000 {
		t.Fatalf("ReadyTimeoutMs = %d, want default 5000", cfg.ReadyTimeoutMs)
	}
	if cfg.MinTabs != 4 {
		t.Fatalf("MinTabs = %d, want 4", cfg.MinTabs)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_RelativeRulesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"rules_file": "rules.md"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := filepath.Join(tmpDir, "rules.md")
	if cfg.RulesFile != want {
		t.Errorf("RulesFile = %q, want %q", cfg.RulesFile, want)
	}
}

func TestSettleRange_Swapped(t *testing.T) {
	cfg := &Config{SettleMinMs: 200, SettleMaxMs: 100}

	lo, hi := cfg.SettleRange()
	if lo != 100*time.Millisecond || hi != 200*time.Millisecond {
		t.Errorf("SettleRange() = (%v, %v), want (100ms, 200ms)", lo, hi)
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	globalConfig := `{"switch_timeout_ms": 8000, "disabled_tools": ["cells_set"]}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	stasherDir := filepath.Join(repoRoot, ".stasher")
	if err := os.MkdirAll(stasherDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	repoConfig := `{"switch_timeout_ms": 3000, "disabled_tools": ["batch_simulate"]}`
	if err := os.WriteFile(filepath.Join(stasherDir, "config.json"), []byte(repoConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.SwitchTimeoutMs != 3000 {
		t.Errorf("SwitchTimeoutMs = %d, want 3000 (repo override)", cfg.SwitchTimeoutMs)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.SwitchTimeoutMs != 5000 {
		t.Errorf("SwitchTimeoutMs = %d, want 5000", cfg.SwitchTimeoutMs)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	globalDir := t.TempDir()

	stasherDir := filepath.Join(tmpDir, ".stasher")
	if err := os.MkdirAll(stasherDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	repoConfig := `{"disabled_tools": ["cells_set"], "rules_file": "stash.md"}`
	if err := os.WriteFile(filepath.Join(stasherDir, "config.json"), []byte(repoConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	subdir := filepath.Join(tmpDir, "subdir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if len(cfg.DisabledTools) != 1 || cfg.DisabledTools[0] != "cells_set" {
		t.Errorf("DisabledTools = %v, want [cells_set]", cfg.DisabledTools)
	}
	if cfg.RulesFile != filepath.Join(stasherDir, "stash.md") {
		t.Errorf("RulesFile = %q", cfg.RulesFile)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{SwitchTimeoutMs: 10000, DBMaxOpenConns: 5, ModifierKey: "ctrl"}
	overlay := &Config{SwitchTimeoutMs: 500, ModifierKey: "  "}

	result := Merge(base, overlay)

	if result.SwitchTimeoutMs != 500 {
		t.Errorf("SwitchTimeoutMs = %d, want 500 (overlay)", result.SwitchTimeoutMs)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.ModifierKey != "ctrl" {
		t.Errorf("ModifierKey = %q, want ctrl (blank overlay ignored)", result.ModifierKey)
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"cells_set", "binding_set"}}
	overlay := &Config{DisabledTools: []string{"binding_set", "batch_simulate"}}

	result := Merge(base, overlay)

	if len(result.DisabledTools) != 3 {
		t.Errorf("DisabledTools length = %d, want 3 (merged, deduped)", len(result.DisabledTools))
	}
}

func TestFindRepoConfig_InParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	stasherDir := filepath.Join(tmpDir, ".stasher")
	if err := os.MkdirAll(stasherDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	configPath := filepath.Join(stasherDir, "config.json")
	if err := os.WriteFile(configPath, []byte(`{}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	found := FindRepoConfig(subdir)
	if found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	found := FindRepoConfig(t.TempDir())
	if found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}
