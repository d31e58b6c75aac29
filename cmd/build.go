package cmd

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AnyUserName/siteimg/internal/config"
	"github.com/AnyUserName/siteimg/internal/logging"
	"github.com/AnyUserName/siteimg/internal/manifest"
	"github.com/AnyUserName/siteimg/internal/pipeline"
)

var (
	buildOut         string
	buildPublicBase  string
	buildRefs        string
	buildManifest    string
	buildMaxWidth    int
	buildMinWidth    int
	buildMaxBytes    int64
	buildJPEGQuality int
	buildWebPQuality int
	buildWorkers     int
)

var buildCmd = &cobra.Command{
	Use:   "build [source_dir]",
	Short: "Encode every image into a WebP + fallback pair and write the manifest",
	Long: `Scans the source directory for JPEG and PNG files, encodes each into
a WebP variant plus a same-format fallback that fit the byte budget,
and writes a manifest mapping every image to its variant pair.

Remote URLs and data URIs are added through a refs file (--refs):

  images:
    - ref: https://example.com/hero.jpg
      path: heroes/main
      required: true
    - ref: https://cdn.example.com/avatar.png
      path: avatars/guest

Scanned files are always required: any failure aborts the build.
Refs entries are optional unless marked required; failed optional
entries stay in the manifest as plain references.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "output directory for encoded variants")
	buildCmd.Flags().StringVar(&buildPublicBase, "public-base", "", "public URL prefix for manifest paths")
	buildCmd.Flags().StringVar(&buildRefs, "refs", "", "YAML file listing remote and data URI references")
	buildCmd.Flags().StringVar(&buildManifest, "manifest", "", "manifest file name")
	buildCmd.Flags().IntVar(&buildMaxWidth, "max-width", 0, "largest output width in pixels")
	buildCmd.Flags().IntVar(&buildMinWidth, "min-width", 0, "width floor for downscaling")
	buildCmd.Flags().Int64Var(&buildMaxBytes, "max-bytes", 0, "byte budget per encoded variant")
	buildCmd.Flags().IntVar(&buildJPEGQuality, "jpeg-quality", 0, "starting JPEG quality 1-100")
	buildCmd.Flags().IntVar(&buildWebPQuality, "webp-quality", 0, "starting WebP quality 1-100")
	buildCmd.Flags().IntVarP(&buildWorkers, "workers", "w", 0, "parallel encode slots (0 = NumCPU, clamped 2-6)")
	rootCmd.AddCommand(buildCmd)
}

// buildEntry is one reference to process together with the policy that
// applies when it fails.
type buildEntry struct {
	ref      string
	hint     string
	required bool
}

// refsFile is the on-disk shape of the --refs document.
type refsFile struct {
	Images []struct {
		Ref      string `yaml:"ref"`
		Path     string `yaml:"path"`
		Required bool   `yaml:"required"`
	} `yaml:"images"`
}

func loadRefs(path string) ([]buildEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read refs: %w", err)
	}
	var rf refsFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse refs %s: %w", path, err)
	}
	entries := make([]buildEntry, 0, len(rf.Images))
	for i, img := range rf.Images {
		if img.Ref == "" {
			return nil, fmt.Errorf("refs %s: entry %d has no ref", path, i)
		}
		entries = append(entries, buildEntry{ref: img.Ref, hint: img.Path, required: img.Required})
	}
	return entries, nil
}

func applyBuildFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	if len(args) == 1 {
		cfg.SourceDir = args[0]
	}
	f := cmd.Flags()
	if f.Changed("out") {
		cfg.OutputDir = buildOut
	}
	if f.Changed("public-base") {
		cfg.PublicBase = buildPublicBase
	}
	if f.Changed("manifest") {
		cfg.ManifestFile = buildManifest
	}
	if f.Changed("max-width") {
		cfg.MaxWidth = buildMaxWidth
	}
	if f.Changed("min-width") {
		cfg.MinWidth = buildMinWidth
	}
	if f.Changed("max-bytes") {
		cfg.MaxBytes = buildMaxBytes
	}
	if f.Changed("jpeg-quality") {
		cfg.JPEGQuality = buildJPEGQuality
	}
	if f.Changed("webp-quality") {
		cfg.WebPQuality = buildWebPQuality
	}
	if f.Changed("workers") {
		cfg.Workers = buildWorkers
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBuildFlags(cmd, cfg, args)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, closeLogs, err := logging.Setup(cfg.LogLevel, verbose, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLogs()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	sources, err := pipeline.ScanSources(cfg.SourceDir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", cfg.SourceDir, err)
	}
	entries := make([]buildEntry, 0, len(sources))
	for _, s := range sources {
		entries = append(entries, buildEntry{ref: s.Ref, required: true})
	}
	if buildRefs != "" {
		refs, err := loadRefs(buildRefs)
		if err != nil {
			return err
		}
		entries = append(entries, refs...)
	}
	if len(entries) == 0 {
		return fmt.Errorf("nothing to build: no images under %s and no refs given", cfg.SourceDir)
	}

	proc, err := pipeline.New(cfg.PipelineOptions(), pipeline.WithLogger(logger))
	if err != nil {
		return err
	}

	logger.Info("build starting",
		"source", cfg.SourceDir,
		"output", cfg.OutputDir,
		"images", len(entries),
		"workers", proc.Slots())

	// One goroutine per entry; the processor's slot limiter bounds how
	// many encodes actually run at once.
	type outcome struct {
		entry buildEntry
		res   *pipeline.Result
		err   error
	}
	outcomes := make([]outcome, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(idx int, e buildEntry) {
			defer wg.Done()
			res, err := proc.Process(cmd.Context(), e.ref, e.hint)
			outcomes[idx] = outcome{entry: e, res: res, err: err}
		}(i, e)
	}
	wg.Wait()

	m := manifest.New(cfg.PublicBase)
	var failed int
	for _, o := range outcomes {
		switch {
		case o.err == nil:
			// A collision here means two sources planned the same output
			// paths and one pair overwrote the other on disk. Always fatal,
			// required or not.
			if err := m.Add(o.res); err != nil {
				failed++
				logger.Error("output collision", "ref", o.entry.ref, "error", err)
			}
		case o.entry.required:
			failed++
			logger.Error("required image failed", "ref", o.entry.ref, "error", o.err)
		default:
			logger.Warn("optional image failed, keeping plain reference", "ref", o.entry.ref, "error", o.err)
			m.AddDegraded(o.entry.ref)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d image(s) failed", failed)
	}

	manifestPath := cfg.ManifestPath()
	if err := manifest.WriteJSON(m, manifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	printBuildReport(m, proc.Slots(), time.Since(start), manifestPath)
	return nil
}

func printBuildReport(m *manifest.Manifest, slots int, elapsed time.Duration, manifestPath string) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════╗")
	fmt.Println("║             siteimg build complete               ║")
	fmt.Println("╚══════════════════════════════════════════════════╝")
	fmt.Println()

	stats := m.Stats
	fmt.Printf("  Images:      %d\n", stats.TotalImages)
	fmt.Printf("  Output size: %s\n", formatBytes(stats.TotalOutputBytes))
	if stats.OverBudget > 0 {
		fmt.Printf("  Over budget: %d pair(s) kept as best effort\n", stats.OverBudget)
	}
	if stats.Degraded > 0 {
		fmt.Printf("  Degraded:    %d reference(s) kept as plain img\n", stats.Degraded)
	}
	fmt.Printf("  Workers:     %d\n", slots)
	fmt.Printf("  Time:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Println()

	// Top 10 heaviest pairs.
	type pairSize struct {
		key   string
		bytes int64
	}
	var items []pairSize
	for key, e := range m.Images {
		if e.Degraded {
			continue
		}
		var sum int64
		if e.Modern != nil {
			sum += e.Modern.Size
		}
		if e.Fallback != nil {
			sum += e.Fallback.Size
		}
		items = append(items, pairSize{key, sum})
	}
	if len(items) > 0 {
		sort.Slice(items, func(i, j int) bool {
			if items[i].bytes != items[j].bytes {
				return items[i].bytes > items[j].bytes
			}
			return items[i].key < items[j].key
		})
		n := len(items)
		if n > 10 {
			n = 10
		}
		fmt.Printf("  Top %d heaviest (WebP + fallback):\n", n)
		for _, it := range items[:n] {
			fmt.Printf("    %-44s %10s\n", truncKey(it.key, 44), formatBytes(it.bytes))
		}
		fmt.Println()
	}

	fmt.Printf("  Manifest:    %s\n", manifestPath)
	fmt.Println()
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func truncKey(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
