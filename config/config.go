// Package config loads and validates the bridge's TOML configuration,
// creating a default ~/.floppybridge.toml on first run (on Windows, in the
// user's config directory).
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed floppy.toml
var defaultConfigData []byte

// Global state, set by Initialize.
var (
	Port        string
	Variant     string
	Precomp     bool
	Diagnostics bool
	Cyls        int
	Heads       int
	RPM         int
)

// Config is the entire TOML configuration structure.
type Config struct {
	Bridge BridgeConfig `toml:"bridge"`
	Drive  DriveConfig  `toml:"drive"`
}

// BridgeConfig selects the serial port, protocol variant, and feature
// flags the bridge controller is opened with.
type BridgeConfig struct {
	Port        string `toml:"port"`
	Variant     string `toml:"variant"`
	Precomp     bool   `toml:"precomp"`
	Diagnostics bool   `toml:"diagnostics"`
}

// DriveConfig describes the physical drive geometry.
type DriveConfig struct {
	Cyls  int `toml:"cyls"`
	Heads int `toml:"heads"`
	RPM   int `toml:"rpm"`
}

func configPath() (string, error) {
	var configDir string
	var err error

	switch runtime.GOOS {
	case "windows":
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "floppybridge")
	default:
		configDir, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user home directory: %w", err)
		}
	}

	return filepath.Join(configDir, ".floppybridge.toml"), nil
}

// Initialize loads and validates the configuration file, creating it from
// the embedded default if it doesn't exist yet.
func Initialize() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
		if err := os.WriteFile(path, defaultConfigData, 0644); err != nil {
			return fmt.Errorf("failed to create default config file at %s: %w", path, err)
		}
	}

	var conf Config
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return fmt.Errorf("failed to parse TOML config at %s: %w", path, err)
	}

	variant := strings.ToLower(conf.Bridge.Variant)
	if variant != "v" && variant != "f" {
		return fmt.Errorf("bridge.variant must be \"v\" or \"f\", got %q", conf.Bridge.Variant)
	}

	if conf.Drive.Cyls <= 0 {
		return fmt.Errorf("drive.cyls must be positive, got %d", conf.Drive.Cyls)
	}
	if conf.Drive.Heads <= 0 {
		return fmt.Errorf("drive.heads must be positive, got %d", conf.Drive.Heads)
	}
	if conf.Drive.RPM <= 0 {
		return fmt.Errorf("drive.rpm must be positive, got %d", conf.Drive.RPM)
	}

	Port = conf.Bridge.Port
	Variant = variant
	Precomp = conf.Bridge.Precomp
	Diagnostics = conf.Bridge.Diagnostics
	Cyls = conf.Drive.Cyls
	Heads = conf.Drive.Heads
	RPM = conf.Drive.RPM
	return nil
}

// DecodeDeviceSettings unpacks the legacy device-settings integer carried
// over from the original host application: the low nibble plus one
// selects a serial port number (Variant V) or a drive unit (Variant F,
// where 0 selects drive A and any other value drive B).
func DecodeDeviceSettings(settings int) (portOrUnit int, driveB bool) {
	low := settings & 0x0f
	return low + 1, low != 0
}
