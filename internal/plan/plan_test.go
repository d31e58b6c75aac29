package plan

import (
	"testing"

	"github.com/AnyUserName/siteimg/internal/source"
)

func TestOutputsJPEG(t *testing.T) {
	p := Outputs("posts/first/cover", source.KindJPEG, "")
	if p.ModernRel != "posts/first/cover.webp" {
		t.Errorf("modern: %q", p.ModernRel)
	}
	if p.FallbackRel != "posts/first/cover.jpg" {
		t.Errorf("fallback: %q", p.FallbackRel)
	}
	if p.ModernPublic != "" || p.FallbackPublic != "" {
		t.Errorf("public paths should be empty without a base: %+v", p)
	}
}

func TestOutputsPNG(t *testing.T) {
	p := Outputs("diagrams/arch", source.KindPNG, "/images")
	if p.FallbackRel != "diagrams/arch.png" {
		t.Errorf("fallback: %q", p.FallbackRel)
	}
	if p.ModernPublic != "/images/diagrams/arch.webp" {
		t.Errorf("modern public: %q", p.ModernPublic)
	}
	if p.FallbackPublic != "/images/diagrams/arch.png" {
		t.Errorf("fallback public: %q", p.FallbackPublic)
	}
}

func TestOutputsAbsoluteBaseURL(t *testing.T) {
	p := Outputs("external/abc123", source.KindJPEG, "https://cdn.example.com/img/")
	if p.ModernPublic != "https://cdn.example.com/img/external/abc123.webp" {
		t.Errorf("modern public: %q", p.ModernPublic)
	}
}

func TestOutputsCleansPath(t *testing.T) {
	p := Outputs("./posts//cover", source.KindJPEG, "")
	if p.ModernRel != "posts/cover.webp" {
		t.Errorf("modern: %q", p.ModernRel)
	}
}
