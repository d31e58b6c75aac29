package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/siteimg/internal/config"
)

var (
	version = "0.1.0"
	verbose bool
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "siteimg",
	Short: "Build-time image pipeline for static sites",
	Long: `siteimg converts site images into paired WebP + fallback variants that
fit a byte budget, and writes a manifest describing the picture markup
for each one.

Local files, remote URLs and data URIs all resolve through the same
pipeline; identical images are fetched and encoded once per build.`,
	Version: version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: siteimg.yaml in $SITEIMG_CONFIG_DIR or .)")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"siteimg %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// loadConfig honors --config when set and searches the usual places
// otherwise.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromPath(cfgFile)
	}
	return config.Load()
}
