package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/siteimg/internal/config"
	"github.com/AnyUserName/siteimg/internal/manifest"
)

var statsCmd = &cobra.Command{
	Use:   "stats <out_dir_or_manifest>",
	Short: "Display statistics for a built image directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, args []string) error {
	path := args[0]

	// If path is a directory, look for the manifest inside.
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		path = filepath.Join(path, config.DefaultManifestName)
	}

	m, err := manifest.Load(path)
	if err != nil {
		return err
	}

	printStats(m)
	return nil
}

func printStats(m *manifest.Manifest) {
	fmt.Println()
	fmt.Printf("  Manifest version: %d\n", m.Version)
	fmt.Printf("  Generated:        %s\n", m.GeneratedAt)
	if m.PublicBase != "" {
		fmt.Printf("  Public base:      %s\n", m.PublicBase)
	}
	fmt.Println()

	s := m.Stats
	fmt.Printf("  Images:           %d\n", s.TotalImages)
	fmt.Printf("  Output size:      %s\n", formatBytes(s.TotalOutputBytes))
	if s.OverBudget > 0 {
		fmt.Printf("  Over budget:      %d\n", s.OverBudget)
	}
	if s.Degraded > 0 {
		fmt.Printf("  Degraded:         %d\n", s.Degraded)
	}
	fmt.Println()

	// Per-origin breakdown.
	originStats := map[string]int{}
	for _, e := range m.Images {
		originStats[e.Origin]++
	}
	fmt.Println("  Origin breakdown:")
	for _, o := range []string{"local", "remote", "data-uri"} {
		if n, ok := originStats[o]; ok {
			fmt.Printf("    %-9s %4d images\n", o, n)
		}
	}
	fmt.Println()

	// Per-format breakdown over encoded variants.
	formatStats := map[string]struct {
		count int
		bytes int64
	}{}
	for _, e := range m.Images {
		for _, v := range []*manifest.Variant{e.Modern, e.Fallback} {
			if v == nil {
				continue
			}
			fs := formatStats[v.Type]
			fs.count++
			fs.bytes += v.Size
			formatStats[v.Type] = fs
		}
	}
	fmt.Println("  Format breakdown:")
	for _, f := range []string{"image/webp", "image/jpeg", "image/png"} {
		if fs, ok := formatStats[f]; ok {
			fmt.Printf("    %-11s %4d files  %s\n", f[len("image/"):], fs.count, formatBytes(fs.bytes))
		}
	}
	fmt.Println()

	// Per-width breakdown.
	widthStats := map[int]int{}
	for _, e := range m.Images {
		if e.Degraded {
			continue
		}
		widthStats[e.Width]++
	}
	var widths []int
	for w := range widthStats {
		widths = append(widths, w)
	}
	sort.Ints(widths)
	fmt.Println("  Width breakdown:")
	for _, w := range widths {
		fmt.Printf("    %5dpx  %4d pairs\n", w, widthStats[w])
	}

	// Warnings.
	var warnings []string
	for key, e := range m.Images {
		if e.Degraded {
			warnings = append(warnings, fmt.Sprintf("image %q degraded to plain reference", key))
		}
		if e.OverBudget {
			warnings = append(warnings, fmt.Sprintf("image %q over byte budget", key))
		}
	}
	if len(warnings) > 0 {
		sort.Strings(warnings)
		fmt.Println()
		fmt.Printf("  Warnings (%d):\n", len(warnings))
		for _, w := range warnings {
			fmt.Printf("    ⚠ %s\n", w)
		}
	}
	fmt.Println()
}
