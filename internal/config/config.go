// Package config loads the scheduler's configuration: the lrs.* keys,
// plus the drive_type/tape_type compatibility tables consumed by the
// compatibility oracle.
package config

import (
	"fmt"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// splitCommaHook lets drive_type/tape_type sections write their list
// fields ("models", "drive_rw") as a single comma-separated string in the
// config file, decoded here into the []string the struct tags expect.
func splitCommaHook(from, to reflect.Kind, data interface{}) (interface{}, error) {
	if from != reflect.String || to != reflect.Slice {
		return data, nil
	}
	s, ok := data.(string)
	if !ok || s == "" {
		return data, nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// Policy names accepted by lrs.policy.
const (
	PolicyBestFit  = "best_fit"
	PolicyFirstFit = "first_fit"
)

// DriveType is one `drive_type "<name>"` configuration section.
type DriveType struct {
	// Models is the comma-separated list of drive model strings this drive
	// type covers, already split.
	Models []string `mapstructure:"models" yaml:"models" validate:"required,min=1"`
}

// TapeType is one `tape_type "<model>"` configuration section.
type TapeType struct {
	// DriveRW is the ordered list of drive type names compatible for
	// read/write with this tape model.
	DriveRW []string `mapstructure:"drive_rw" yaml:"drive_rw" validate:"required,min=1"`
}

// LRS holds the lrs.* configuration keys.
type LRS struct {
	MountPrefix   string `mapstructure:"mount_prefix" yaml:"mount_prefix" validate:"required"`
	DefaultFamily string `mapstructure:"default_family" yaml:"default_family" validate:"required,oneof=tape dir"`
	LibDevice     string `mapstructure:"lib_device" yaml:"lib_device"`
	Policy        string `mapstructure:"policy" yaml:"policy" validate:"required,oneof=best_fit first_fit"`
}

// Config is the full configuration tree for lrsd.
type Config struct {
	LRS        LRS                  `mapstructure:"lrs" yaml:"lrs"`
	DriveTypes map[string]DriveType `mapstructure:"drive_type" yaml:"drive_type,omitempty"`
	TapeTypes  map[string]TapeType  `mapstructure:"tape_type" yaml:"tape_type,omitempty"`
}

// DefaultConfig returns a minimal, valid configuration suitable for the
// simulated/dir-family backend used by tests and -simulate mode.
func DefaultConfig() *Config {
	return &Config{
		LRS: LRS{
			MountPrefix:   "/mnt/lrs-",
			DefaultFamily: "dir",
			Policy:        PolicyBestFit,
		},
		DriveTypes: map[string]DriveType{},
		TapeTypes:  map[string]TapeType{},
	}
}

// Load reads configuration from the given file (YAML or TOML, detected from
// extension) and environment variables prefixed LRS_, falling back to
// DefaultConfig when no file is given.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LRS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		return DefaultConfig(), nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.DecodeHookFuncKind(splitCommaHook))); err != nil {
		return nil, fmt.Errorf("unmarshal config %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks struct tags plus the cross-reference between tape_type
// drive_rw entries and configured drive_type names.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg.LRS); err != nil {
		return err
	}
	for model, tt := range cfg.TapeTypes {
		if err := v.Struct(tt); err != nil {
			return fmt.Errorf("tape_type %q: %w", model, err)
		}
		for _, driveType := range tt.DriveRW {
			if _, ok := cfg.DriveTypes[driveType]; !ok {
				return fmt.Errorf("tape_type %q: drive_rw references unknown drive_type %q",
					model, driveType)
			}
		}
	}
	for name, dt := range cfg.DriveTypes {
		if err := v.Struct(dt); err != nil {
			return fmt.Errorf("drive_type %q: %w", name, err)
		}
	}
	return nil
}

// DriveModelsByType returns the configured model list for a drive type name.
func (c *Config) DriveModelsByType(driveType string) ([]string, bool) {
	dt, ok := c.DriveTypes[driveType]
	if !ok {
		return nil, false
	}
	return dt.Models, true
}

// RWDriveTypesForTape returns the ordered list of drive type names
// compatible for read/write with the given tape model.
func (c *Config) RWDriveTypesForTape(tapeModel string) ([]string, bool) {
	tt, ok := c.TapeTypes[tapeModel]
	if !ok {
		return nil, false
	}
	return tt.DriveRW, true
}
