package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/AnyUserName/siteimg/internal/pipeline"
)

// Load reads configuration by searching for siteimg.yaml in
// $SITEIMG_CONFIG_DIR and then the working directory. A missing file is
// not an error: the defaults describe a complete, working build.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("siteimg")

	if envPath := os.Getenv("SITEIMG_CONFIG_DIR"); envPath != "" {
		v.AddConfigPath(envPath)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadFromPath reads configuration from an explicit file, which must
// exist.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SITEIMG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every configuration default with a viper
// instance. Sizing values come from the pipeline's own constants.
func setDefaults(v *viper.Viper) {
	v.SetDefault("source_dir", DefaultSourceDir)
	v.SetDefault("output_dir", DefaultOutputDir)
	v.SetDefault("public_base", "")
	v.SetDefault("manifest_file", "")

	v.SetDefault("max_width", pipeline.DefaultMaxWidth)
	v.SetDefault("min_width", pipeline.DefaultMinWidth)
	v.SetDefault("max_bytes", pipeline.DefaultMaxBytes)
	v.SetDefault("resize_step", pipeline.DefaultResizeStep)
	v.SetDefault("jpeg_quality", pipeline.DefaultJPEGQuality)
	v.SetDefault("webp_quality", pipeline.DefaultWebPQuality)

	v.SetDefault("remote_max_bytes", pipeline.DefaultRemoteMaxBytes)
	v.SetDefault("remote_timeout", pipeline.DefaultRemoteTimeout)

	v.SetDefault("workers", 0)

	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", "")
}
