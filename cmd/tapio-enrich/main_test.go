package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/tapio-enrich/internal/observers/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	v := viper.New()
	cmd := newRootCommand(v)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultCacheCapacity, cfg.CacheCapacity)
	assert.Equal(t, 1, cfg.Shards)
	assert.Equal(t, "json", cfg.Output)
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enrich.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache_capacity: 32\nshards: 2\noutput: yaml\n"), 0o644))

	v := viper.New()
	cmd := newRootCommand(v)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--shards", "8"}))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.CacheCapacity, "file value kept")
	assert.Equal(t, 8, cfg.Shards, "flag wins over file")
	assert.Equal(t, "yaml", cfg.Output)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("TAPIO_ENRICH_CACHE_CAPACITY", "77")
	t.Setenv("TAPIO_ENRICH_OUTPUT", "human")

	v := viper.New()
	cmd := newRootCommand(v)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 77, cfg.CacheCapacity)
	assert.Equal(t, "human", cfg.Output)
}

func TestLoadConfigOutputAliases(t *testing.T) {
	tests := []struct {
		name  string
		flags []string
		env   string
		want  string
	}{
		{name: "pretty flag", flags: []string{"--output", "pretty"}, want: "json-pretty"},
		{name: "text flag", flags: []string{"--output", "text"}, want: "human"},
		{name: "upper case", flags: []string{"--output", "JSON"}, want: "json"},
		{name: "yml env", env: "yml", want: "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv("TAPIO_ENRICH_OUTPUT", tt.env)
			}
			v := viper.New()
			cmd := newRootCommand(v)
			require.NoError(t, cmd.ParseFlags(tt.flags))

			cfg, err := loadConfig(v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Output)
		})
	}
}

func TestLoadConfigRejectsUnknownOutput(t *testing.T) {
	v := viper.New()
	cmd := newRootCommand(v)
	require.NoError(t, cmd.ParseFlags([]string{"--output", "xml"}))

	_, err := loadConfig(v)
	assert.ErrorContains(t, err, "output")
}

func TestLoadConfigRejectsZeroCapacity(t *testing.T) {
	v := viper.New()
	cmd := newRootCommand(v)
	require.NoError(t, cmd.ParseFlags([]string{"--cache-capacity", "0"}))

	_, err := loadConfig(v)
	assert.ErrorContains(t, err, "cache_capacity")
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := newLogger(level)
		require.NoError(t, err, level)
		assert.NotNil(t, logger)
	}

	_, err := newLogger("chatty")
	assert.Error(t, err)
}
