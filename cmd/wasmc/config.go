package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-compiler/engine"
	"github.com/wippyai/wasm-compiler/linker"
	"github.com/wippyai/wasm-compiler/runtime"
)

const envPrefix = "WASMC"

// cliConfig is the merged result of defaults, the config file, WASMC_*
// environment variables and flags, in increasing precedence.
type cliConfig struct {
	LogLevel         string `mapstructure:"log-level"`
	MaxCallDepth     int    `mapstructure:"max-call-depth"`
	MemoryLimitPages uint32 `mapstructure:"memory-limit-pages"`
	SemverImports    bool   `mapstructure:"semver-imports"`
}

func defaultConfig() cliConfig {
	return cliConfig{
		LogLevel:     "warn",
		MaxCallDepth: engine.DefaultMaxCallDepth,
	}
}

func bindFlags(flags *pflag.FlagSet) {
	d := defaultConfig()
	flags.String("config", "", "config file (YAML, JSON or TOML)")
	flags.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	flags.Int("max-call-depth", d.MaxCallDepth, "maximum nested call depth")
	flags.Uint32("memory-limit-pages", d.MemoryLimitPages, "cap on memory growth in 64KiB pages (0 = module maximum)")
	flags.Bool("semver-imports", d.SemverImports, "resolve versioned import modules to compatible newer versions")
}

func loadConfig(flags *pflag.FlagSet) (cliConfig, error) {
	v := viper.New()

	d := defaultConfig()
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("max-call-depth", d.MaxCallDepth)
	v.SetDefault("memory-limit-pages", d.MemoryLimitPages)
	v.SetDefault("semver-imports", d.SemverImports)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return cliConfig{}, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cliConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MaxCallDepth < 0 {
		return cliConfig{}, fmt.Errorf("max-call-depth must not be negative, got %d", cfg.MaxCallDepth)
	}
	return cfg, nil
}

func (c cliConfig) runtimeOptions() []runtime.Option {
	return []runtime.Option{runtime.WithConfig(runtime.Config{
		MaxCallDepth:     c.MaxCallDepth,
		MemoryLimitPages: c.MemoryLimitPages,
		SemverImports:    c.SemverImports,
	})}
}

// newLogger builds a console logger at the configured level and installs it
// in every package that logs.
func (c cliConfig) newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	engine.SetLogger(logger.Named("engine"))
	linker.SetLogger(logger.Named("linker"))
	runtime.SetLogger(logger.Named("runtime"))
	return logger, nil
}
