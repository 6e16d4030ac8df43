package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hydronica/toml"
	"github.com/spf13/cobra"

	"github.com/dhcgn/maildirwatch/output"
	"github.com/dhcgn/maildirwatch/watch"
)

// Config captures all options required to run the watcher.
type Config struct {
	Roots         []string
	Format        output.Format
	Subject       bool
	Backend       string
	LogLevel      string
	LogDir        string
	IncludeFolder []string
	ExcludeFolder []string
	Condition     string
}

// fileConfig is the TOML layout accepted by --config.
type fileConfig struct {
	Roots         []string `toml:"roots"`
	Format        string   `toml:"format"`
	Subject       *bool    `toml:"subject"`
	Backend       string   `toml:"backend"`
	LogLevel      string   `toml:"log_level"`
	LogDir        string   `toml:"log_dir"`
	IncludeFolder []string `toml:"include_folder"`
	ExcludeFolder []string `toml:"exclude_folder"`
	Condition     string   `toml:"condition"`
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("config", "", "Path to a TOML config file")
	flags.String("format", string(output.FormatText), "Output format: text, json")
	flags.Bool("subject", true, "Print the subject after the path in text mode (toggle at runtime with 's')")
	flags.String("backend", watch.BackendInotify, "Change notification backend: inotify, fsnotify")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (logs always go to stderr)")
	flags.StringArray("include-folder", nil, "Regex allow-list applied to folder names (mutually exclusive with --exclude-folder)")
	flags.StringArray("exclude-folder", nil, "Regex block-list applied to folder names (mutually exclusive with --include-folder)")
	flags.String("condition", "", "Boolean expression over folder, subdir, name, path, subject, from")
	return nil
}

// LoadConfig merges the optional config file, the parsed flags and the
// positional root paths. Flags set on the command line override the file.
func LoadConfig(cmd *cobra.Command, args []string) (Config, error) {
	flags := cmd.Flags()

	cfg := Config{
		Format:   output.FormatText,
		Subject:  true,
		Backend:  watch.BackendInotify,
		LogLevel: "info",
	}

	configPath, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}
	if configPath != "" {
		if err := applyFile(&cfg, configPath); err != nil {
			return Config{}, err
		}
	}

	if flags.Changed("format") || configPath == "" {
		format, err := flags.GetString("format")
		if err != nil {
			return Config{}, err
		}
		cfg.Format = output.Format(format)
	}
	if flags.Changed("subject") || configPath == "" {
		if cfg.Subject, err = flags.GetBool("subject"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("backend") || configPath == "" {
		if cfg.Backend, err = flags.GetString("backend"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("log-level") || configPath == "" {
		if cfg.LogLevel, err = flags.GetString("log-level"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("log-dir") || configPath == "" {
		if cfg.LogDir, err = flags.GetString("log-dir"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("include-folder") {
		if cfg.IncludeFolder, err = flags.GetStringArray("include-folder"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("exclude-folder") {
		if cfg.ExcludeFolder, err = flags.GetStringArray("exclude-folder"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("condition") {
		if cfg.Condition, err = flags.GetString("condition"); err != nil {
			return Config{}, err
		}
	}

	for _, arg := range args {
		cfg.Roots = append(cfg.Roots, filepath.Clean(arg))
	}

	format, err := output.ParseFormat(string(cfg.Format))
	if err != nil {
		return Config{}, err
	}
	cfg.Format = format

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	for _, root := range fc.Roots {
		cfg.Roots = append(cfg.Roots, filepath.Clean(root))
	}
	if fc.Format != "" {
		cfg.Format = output.Format(fc.Format)
	}
	if fc.Subject != nil {
		cfg.Subject = *fc.Subject
	}
	if fc.Backend != "" {
		cfg.Backend = fc.Backend
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	cfg.LogDir = fc.LogDir
	cfg.IncludeFolder = fc.IncludeFolder
	cfg.ExcludeFolder = fc.ExcludeFolder
	cfg.Condition = fc.Condition
	return nil
}

func validateConfig(cfg Config) error {
	if len(cfg.Roots) == 0 {
		return fmt.Errorf("at least one maildir root path is required")
	}
	if len(cfg.IncludeFolder) > 0 && len(cfg.ExcludeFolder) > 0 {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.Backend {
	case watch.BackendInotify, watch.BackendFsnotify:
	default:
		return fmt.Errorf("invalid --backend: %s", cfg.Backend)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}
