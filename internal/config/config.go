package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// RulesFile is the Markdown rule file. Relative paths resolve against the
	// directory of the config file that set them.
	RulesFile string `json:"rules_file,omitempty"`

	// SwitchTimeoutMs bounds the wait for the visible tab to reach a switch target.
	// Expiry skips the item, not the batch.
	SwitchTimeoutMs int `json:"switch_timeout_ms,omitempty"`

	// ReadyTimeoutMs bounds the wait for the visible tab's contents to load.
	// Expiry fails the whole batch.
	ReadyTimeoutMs int `json:"ready_timeout_ms,omitempty"`

	// ItemsTimeoutMs bounds the wait for the held-item list to become available.
	ItemsTimeoutMs int `json:"items_timeout_ms,omitempty"`

	// TriggerTimeoutMs bounds the wait for the tab-name list after an area change.
	TriggerTimeoutMs int `json:"trigger_timeout_ms,omitempty"`

	// SettleMinMs and SettleMaxMs bound the randomized pause after a successful switch.
	SettleMinMs int `json:"settle_min_ms,omitempty"`
	SettleMaxMs int `json:"settle_max_ms,omitempty"`

	// ClickJitterPx is the half-width of the uniform click offset window on each axis.
	ClickJitterPx int `json:"click_jitter_px,omitempty"`

	// MinTabs is the shortest live tab list accepted for reconciliation.
	// Shorter lists are treated as not yet loaded and leave bindings untouched.
	MinTabs int `json:"min_tabs,omitempty"`

	// ModifierKey is held for the whole batch; SecondaryModifierKey is held
	// around clicks for rules flagged "shift".
	ModifierKey          string `json:"modifier_key,omitempty"`
	SecondaryModifierKey string `json:"secondary_modifier_key,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type prefixes to disable entirely
	// (known types: "binding", "tabs", "rules", "cells", "batch").
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SwitchTimeoutMs:      5000,
		ReadyTimeoutMs:       5000,
		ItemsTimeoutMs:       5000,
		TriggerTimeoutMs:     5000,
		SettleMinMs:          80,
		SettleMaxMs:          150,
		ClickJitterPx:        10,
		MinTabs:              1,
		ModifierKey:          "ctrl",
		SecondaryModifierKey: "shift",
		LogLevel:             "info",
	}
}

// SwitchTimeout returns SwitchTimeoutMs as a duration.
func (c *Config) SwitchTimeout() time.Duration { return ms(c.SwitchTimeoutMs) }

// ReadyTimeout returns ReadyTimeoutMs as a duration.
func (c *Config) ReadyTimeout() time.Duration { return ms(c.ReadyTimeoutMs) }

// ItemsTimeout returns ItemsTimeoutMs as a duration.
func (c *Config) ItemsTimeout() time.Duration { return ms(c.ItemsTimeoutMs) }

// TriggerTimeout returns TriggerTimeoutMs as a duration.
func (c *Config) TriggerTimeout() time.Duration { return ms(c.TriggerTimeoutMs) }

// SettleRange returns the settle delay bounds, swapped if configured backwards.
func (c *Config) SettleRange() (time.Duration, time.Duration) {
	lo, hi := ms(c.SettleMinMs), ms(c.SettleMaxMs)
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo, hi
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.stasher) and repo (.stasher) directories.
// Repo config is found by walking upward from startDir to find the nearest .stasher/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .stasher/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".stasher", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.RulesFile != "" && !filepath.IsAbs(cfg.RulesFile) {
		cfg.RulesFile = filepath.Join(filepath.Dir(configPath), cfg.RulesFile)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		RulesFile:            pickString(base.RulesFile, overlay.RulesFile),
		SwitchTimeoutMs:      pickInt(base.SwitchTimeoutMs, overlay.SwitchTimeoutMs),
		ReadyTimeoutMs:       pickInt(base.ReadyTimeoutMs, overlay.ReadyTimeoutMs),
		ItemsTimeoutMs:       pickInt(base.ItemsTimeoutMs, overlay.ItemsTimeoutMs),
		TriggerTimeoutMs:     pickInt(base.TriggerTimeoutMs, overlay.TriggerTimeoutMs),
		SettleMinMs:          pickInt(base.SettleMinMs, overlay.SettleMinMs),
		SettleMaxMs:          pickInt(base.SettleMaxMs, overlay.SettleMaxMs),
		ClickJitterPx:        pickInt(base.ClickJitterPx, overlay.ClickJitterPx),
		MinTabs:              pickInt(base.MinTabs, overlay.MinTabs),
		ModifierKey:          pickString(base.ModifierKey, overlay.ModifierKey),
		SecondaryModifierKey: pickString(base.SecondaryModifierKey, overlay.SecondaryModifierKey),
		LogLevel:             pickString(base.LogLevel, overlay.LogLevel),
		DBMaxOpenConns:       pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns),
		DBMaxIdleConns:       pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns),
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

// pickInt returns overlay if non-zero, else base.
func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// pickString returns overlay if non-blank, else base.
func pickString(base, overlay string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
