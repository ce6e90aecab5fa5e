// Package cliconfig resolves the advisor CLI configuration from defaults,
// an optional TOML file, and command-line flags, in that order.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// Config is the resolved CLI configuration.
type Config struct {
	ServerURL        string   `toml:"server_url"`
	StallTimeout     duration `toml:"stall_timeout"`
	FirstByteTimeout duration `toml:"first_byte_timeout"`
	Debug            bool     `toml:"debug"`
}

// duration lets TOML files write timeouts as "30s" / "2m".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// Stall returns the stall timeout as a time.Duration.
func (c Config) Stall() time.Duration { return time.Duration(c.StallTimeout) }

// FirstByte returns the first-byte timeout as a time.Duration.
func (c Config) FirstByte() time.Duration { return time.Duration(c.FirstByteTimeout) }

// Default is the configuration used when no file and no flags are given.
func Default() Config {
	return Config{
		ServerURL:        "http://127.0.0.1:8001",
		StallTimeout:     duration(30 * time.Second),
		FirstByteTimeout: duration(15 * time.Second),
	}
}

// DefaultPath is where the CLI looks for a config file when --config is not
// given. Missing file is not an error.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "advisor", "config.toml")
}

// Resolve builds the effective configuration for a command invocation.
// Flags registered by Register win over the file, the file over defaults.
func Resolve(cmd *cobra.Command) (Config, error) {
	cfg := Default()

	path, _ := cmd.Flags().GetString("config")
	explicit := path != ""
	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if explicit || !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("could not load config %s: %w", path, err)
			}
		}
	}

	if cmd.Flags().Changed("server") {
		cfg.ServerURL, _ = cmd.Flags().GetString("server")
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug, _ = cmd.Flags().GetBool("debug")
	}
	return cfg, nil
}

// Register adds the shared persistent flags to the root command.
func Register(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Path to a TOML config file")
	cmd.PersistentFlags().String("server", Default().ServerURL, "Tutor Service base URL")
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}
