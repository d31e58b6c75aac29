package cmd

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/siteimg/internal/manifest"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

var validateOut string

var validateCmd = &cobra.Command{
	Use:   "validate [manifest_path]",
	Short: "Validate a manifest and check the encoded variants on disk",
	Long: `Loads a manifest, re-decodes every referenced variant and reports
anything inconsistent: missing files, size or dimension mismatches,
broken picture descriptors, stale stats, and pairs that exceed the
byte budget without being flagged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateOut, "out", "o", "", "directory holding the variants (default: manifest's directory)")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manifestPath := cfg.ManifestPath()
	if len(args) == 1 {
		manifestPath = args[0]
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	baseDir := filepath.Dir(manifestPath)
	if validateOut != "" {
		baseDir = validateOut
	}

	errors := validateManifest(m, baseDir, cfg.MaxBytes)

	if len(errors) == 0 {
		fmt.Println("  ✓ Manifest is valid")
		fmt.Printf("  ✓ %d image(s) — all variant pairs present and intact\n", m.Stats.TotalImages)
		if m.Stats.Degraded > 0 {
			fmt.Printf("  ✓ %d degraded reference(s) kept as plain img\n", m.Stats.Degraded)
		}
		if m.Stats.OverBudget > 0 {
			fmt.Printf("  ⚠ %d pair(s) over the byte budget, kept as best effort\n", m.Stats.OverBudget)
		}
		return nil
	}

	fmt.Printf("  ✗ Manifest has %d error(s):\n", len(errors))
	for _, e := range errors {
		fmt.Printf("    • %s\n", e)
	}
	return fmt.Errorf("validation failed with %d errors", len(errors))
}

func validateManifest(m *manifest.Manifest, baseDir string, maxBytes int64) []string {
	var errs []string

	seenPaths := map[string]string{}
	for key, e := range m.Images {
		if e.Degraded {
			if e.Picture.Img.Src == "" {
				errs = append(errs, fmt.Sprintf("image %q: degraded entry without img src", key))
			}
			continue
		}

		if e.Modern == nil || e.Fallback == nil {
			errs = append(errs, fmt.Sprintf("image %q: incomplete variant pair", key))
			continue
		}
		if e.Width <= 0 || e.Height <= 0 {
			errs = append(errs, fmt.Sprintf("image %q: invalid dimensions %dx%d", key, e.Width, e.Height))
		}
		if len(e.Picture.Sources) == 0 || e.Picture.Img.Src == "" {
			errs = append(errs, fmt.Sprintf("image %q: incomplete picture descriptor", key))
		}

		for _, v := range []*manifest.Variant{e.Modern, e.Fallback} {
			if v.Path == "" {
				errs = append(errs, fmt.Sprintf("image %q: variant without path", key))
				continue
			}
			if prev, dup := seenPaths[v.Path]; dup {
				errs = append(errs, fmt.Sprintf("image %q: path %q already used by %q", key, v.Path, prev))
			}
			seenPaths[v.Path] = key

			errs = append(errs, checkVariantFile(key, v, baseDir, e.Width, e.Height)...)

			if !e.OverBudget && maxBytes > 0 && v.Size > maxBytes {
				errs = append(errs, fmt.Sprintf("image %q: %s exceeds budget (%d > %d) without over_budget flag",
					key, v.Path, v.Size, maxBytes))
			}
		}
	}

	// Verify stats consistency.
	recorded := m.Stats
	m.ComputeStats()
	if recorded.TotalImages != m.Stats.TotalImages {
		errs = append(errs, fmt.Sprintf("stats.total_images mismatch: %d != %d", recorded.TotalImages, m.Stats.TotalImages))
	}
	if recorded.TotalOutputBytes != m.Stats.TotalOutputBytes {
		errs = append(errs, fmt.Sprintf("stats.total_output_bytes mismatch: %d != %d", recorded.TotalOutputBytes, m.Stats.TotalOutputBytes))
	}
	if recorded.OverBudget != m.Stats.OverBudget {
		errs = append(errs, fmt.Sprintf("stats.over_budget mismatch: %d != %d", recorded.OverBudget, m.Stats.OverBudget))
	}
	if recorded.Degraded != m.Stats.Degraded {
		errs = append(errs, fmt.Sprintf("stats.degraded mismatch: %d != %d", recorded.Degraded, m.Stats.Degraded))
	}

	return errs
}

// checkVariantFile stats and decodes one variant file, comparing it
// against what the manifest recorded.
func checkVariantFile(key string, v *manifest.Variant, baseDir string, width, height int) []string {
	var errs []string

	fullPath := filepath.Join(baseDir, filepath.FromSlash(v.Path))
	info, err := os.Stat(fullPath)
	if err != nil {
		return append(errs, fmt.Sprintf("image %q: file not found: %s", key, v.Path))
	}
	if v.Size > 0 && info.Size() != v.Size {
		errs = append(errs, fmt.Sprintf("image %q: size mismatch for %s: manifest=%d, disk=%d",
			key, v.Path, v.Size, info.Size()))
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return append(errs, fmt.Sprintf("image %q: open %s: %v", key, v.Path, err))
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return append(errs, fmt.Sprintf("image %q: %s does not decode: %v", key, v.Path, err))
	}
	if width > 0 && (cfg.Width != width || cfg.Height != height) {
		errs = append(errs, fmt.Sprintf("image %q: %s is %dx%d, manifest says %dx%d",
			key, v.Path, cfg.Width, cfg.Height, width, height))
	}

	return errs
}
