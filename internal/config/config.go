// Package config loads build configuration from siteimg.yaml, the
// SITEIMG_* environment and the documented defaults, in ascending
// precedence. The sizing defaults live in the pipeline package so a
// library caller with a bare Options{} and a CLI run with no config
// file end up with identical behavior.
package config

import (
	"path/filepath"
	"time"

	"github.com/AnyUserName/siteimg/internal/pipeline"
)

// Defaults for fields the pipeline does not own.
const (
	DefaultSourceDir    = "./content"
	DefaultOutputDir    = "./public/images"
	DefaultManifestName = "images.manifest.json"
	DefaultLogLevel     = "info"
)

// Config is the full build configuration.
type Config struct {
	SourceDir  string `mapstructure:"source_dir"`
	OutputDir  string `mapstructure:"output_dir"`
	PublicBase string `mapstructure:"public_base"`

	// ManifestFile overrides where the manifest is written. Empty means
	// <output_dir>/images.manifest.json.
	ManifestFile string `mapstructure:"manifest_file"`

	MaxWidth    int     `mapstructure:"max_width"`
	MinWidth    int     `mapstructure:"min_width"`
	MaxBytes    int64   `mapstructure:"max_bytes"`
	ResizeStep  float64 `mapstructure:"resize_step"`
	JPEGQuality int     `mapstructure:"jpeg_quality"`
	WebPQuality int     `mapstructure:"webp_quality"`

	RemoteMaxBytes int64         `mapstructure:"remote_max_bytes"`
	RemoteTimeout  time.Duration `mapstructure:"remote_timeout"`

	// Workers bounds simultaneous conversions; 0 derives from CPU count.
	Workers int `mapstructure:"workers"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// PipelineOptions maps the configuration onto processor options.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		SourceDir:      c.SourceDir,
		OutputDir:      c.OutputDir,
		PublicBase:     c.PublicBase,
		MaxWidth:       c.MaxWidth,
		MinWidth:       c.MinWidth,
		MaxBytes:       c.MaxBytes,
		ResizeStep:     c.ResizeStep,
		JPEGQuality:    c.JPEGQuality,
		WebPQuality:    c.WebPQuality,
		RemoteMaxBytes: c.RemoteMaxBytes,
		RemoteTimeout:  c.RemoteTimeout,
		Workers:        c.Workers,
	}
}

// ManifestPath returns the effective manifest location.
func (c *Config) ManifestPath() string {
	if c.ManifestFile != "" {
		return c.ManifestFile
	}
	return filepath.Join(c.OutputDir, DefaultManifestName)
}
