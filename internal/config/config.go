package config

import (
	"errors"

	"github.com/ossyrian/fparchive/internal/fparc"
)

// Config holds app configuration
type Config struct {
	// TextKey is the passphrase used to decrypt entry names.
	// Each archive family has its own; a wrong key silently yields garbled names.
	TextKey string `mapstructure:"text_key"`

	// InputFile is an archive file, or a directory of archives for extract
	InputFile string `mapstructure:"input"`
	OutputDir string `mapstructure:"output"`

	// Pattern filters entry names with a doublestar glob (e.g. "**/*.lua")
	Pattern string `mapstructure:"pattern"`
	Workers int    `mapstructure:"workers"`

	Hash bool `mapstructure:"hash"`
	JSON bool `mapstructure:"json"`

	DryRun       bool   `mapstructure:"dry_run"`
	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}

// Validate checks the settings every command needs
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return errors.New("input is required")
	}
	if c.TextKey == "" {
		return fparc.ErrEmptyKey
	}
	return nil
}
