// Package plan fixes where the two variants of an image live before any
// encoding happens: sibling paths under the output root, differing only
// by extension, plus their public URLs when a base is configured.
package plan

import (
	"path"
	"strings"

	"github.com/AnyUserName/siteimg/internal/source"
)

// Plan is the output layout for one image. Rel paths are slash-separated
// and relative to the output root; Public paths are empty when no public
// base is set.
type Plan struct {
	ModernRel   string
	FallbackRel string

	ModernPublic   string
	FallbackPublic string
}

// Outputs derives the variant pair layout for an image. The modern
// variant is always WebP; the fallback keeps the origin family, so a
// JPEG source gets a .jpg sibling and a PNG source a .png one.
func Outputs(relPath string, kind source.Kind, publicBase string) Plan {
	rel := path.Clean(relPath)
	p := Plan{
		ModernRel:   rel + ".webp",
		FallbackRel: rel + kind.FallbackExt(),
	}
	if publicBase != "" {
		p.ModernPublic = joinPublic(publicBase, p.ModernRel)
		p.FallbackPublic = joinPublic(publicBase, p.FallbackRel)
	}
	return p
}

// joinPublic concatenates with a single slash instead of path.Join,
// which would collapse the double slash in an absolute base URL.
func joinPublic(base, rel string) string {
	return strings.TrimSuffix(base, "/") + "/" + rel
}
