package cmd

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/AnyUserName/siteimg/internal/plan"
	"github.com/AnyUserName/siteimg/internal/probe"
	"github.com/AnyUserName/siteimg/internal/source"
)

var inspectPath string

var inspectCmd = &cobra.Command{
	Use:   "inspect <ref>",
	Short: "Resolve one reference and show what a build would produce",
	Long: `Resolves a single reference (local path, http(s) URL or data URI),
probes its dimensions and prints the planned output layout without
encoding or writing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectPath, "path", "", "output path override, extension-free")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resolver, err := source.NewResolver(cfg.SourceDir, cfg.RemoteMaxBytes, cfg.RemoteTimeout)
	if err != nil {
		return err
	}
	id, err := resolver.Identify(args[0], inspectPath)
	if err != nil {
		return err
	}
	res, err := resolver.Resolve(cmd.Context(), id)
	if err != nil {
		return err
	}

	dims := probe.Dimensions(res.Data)
	layout := plan.Outputs(res.Identity.RelPath, res.Kind, cfg.PublicBase)

	fmt.Println()
	fmt.Printf("  Origin:      %s\n", res.Identity.Origin)
	fmt.Printf("  Format:      %s\n", res.Kind)
	fmt.Printf("  Bytes:       %s\n", formatBytes(int64(len(res.Data))))
	if dims.Known {
		// Decoded bounds, not the probed header, decide the start width;
		// EXIF orientation can leave the header transposed.
		w, h := dims.Width, dims.Height
		if img, err := imaging.Decode(bytes.NewReader(res.Data), imaging.AutoOrientation(true)); err == nil {
			b := img.Bounds()
			w, h = b.Dx(), b.Dy()
		}
		fmt.Printf("  Dimensions:  %dx%d\n", w, h)
		fmt.Printf("  Start width: %d\n", min(cfg.MaxWidth, w))
	} else {
		fmt.Printf("  Dimensions:  unknown (single-pass encode)\n")
	}
	fmt.Printf("  Key:         %s\n", res.Identity.RelPath)
	fmt.Printf("  Modern:      %s\n", layout.ModernRel)
	fmt.Printf("  Fallback:    %s\n", layout.FallbackRel)
	if layout.ModernPublic != "" {
		fmt.Printf("  Public:      %s\n", layout.ModernPublic)
	}
	fmt.Printf("  Budget:      %s per variant\n", formatBytes(cfg.MaxBytes))
	fmt.Println()
	return nil
}
