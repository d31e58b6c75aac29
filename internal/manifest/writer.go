package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/AnyUserName/siteimg/internal/pipeline"
)

// New creates an empty manifest with defaults.
func New(publicBase string) *Manifest {
	return &Manifest{
		Version:     SupportedVersion,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		PublicBase:  publicBase,
		Images:      make(map[string]Entry),
	}
}

// Add records a processed result under its image key. Re-adding the
// same logical image is a no-op. A different image landing on an
// occupied key is a collision: sources like a.jpg and a.png in one
// directory plan the same a.webp sibling, and the pair written later
// overwrites the pair written first.
func (m *Manifest) Add(res *pipeline.Result) error {
	e := entryFor(res)
	if prev, ok := m.Images[res.Key]; ok && !sameEntry(prev, e) {
		return fmt.Errorf("image key %q: a different image already occupies these output paths", res.Key)
	}
	m.Images[res.Key] = e
	return nil
}

// sameEntry reports whether two entries describe the same encoded
// image. Distinct sources with identical bytes and no path hint hash to
// one key and one byte-identical pair; those count as the same image.
func sameEntry(a, b Entry) bool {
	return a.Origin == b.Origin &&
		a.Format == b.Format &&
		a.Width == b.Width &&
		a.Height == b.Height &&
		a.AvgColor == b.AvgColor &&
		a.OverBudget == b.OverBudget &&
		a.Degraded == b.Degraded &&
		sameVariant(a.Modern, b.Modern) &&
		sameVariant(a.Fallback, b.Fallback)
}

func sameVariant(a, b *Variant) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// AddDegraded records a reference that failed processing but was allowed
// to fall back to a plain img pointing at the raw source.
func (m *Manifest) AddDegraded(rawRef string) {
	m.Images[rawRef] = Entry{
		Origin:   "remote",
		Degraded: true,
		Picture: Picture{
			Img: PictureImg{Src: rawRef},
		},
	}
}

func entryFor(res *pipeline.Result) Entry {
	return Entry{
		Origin:     res.Origin,
		Format:     res.Format,
		Width:      res.Width,
		Height:     res.Height,
		AvgColor:   res.AvgColor,
		OverBudget: res.OverBudget,
		Modern: &Variant{
			Path:   res.Modern.RelPath,
			Public: res.Modern.PublicPath,
			Type:   res.Modern.MIMEType,
			Size:   int64(len(res.Modern.Data)),
		},
		Fallback: &Variant{
			Path:   res.Fallback.RelPath,
			Public: res.Fallback.PublicPath,
			Type:   res.Fallback.MIMEType,
			Size:   int64(len(res.Fallback.Data)),
		},
		Picture: Picture{
			Sources: []PictureSource{{Src: servedPath(res.Modern), Type: res.Modern.MIMEType}},
			Img: PictureImg{
				Src:    servedPath(res.Fallback),
				Type:   res.Fallback.MIMEType,
				Width:  res.Width,
				Height: res.Height,
			},
		},
	}
}

// servedPath prefers the public URL and falls back to the
// output-relative path when no public base is configured.
func servedPath(v pipeline.EncodedVariant) string {
	if v.PublicPath != "" {
		return v.PublicPath
	}
	return v.RelPath
}

// ComputeStats recalculates aggregate statistics from entries.
func (m *Manifest) ComputeStats() {
	var s Stats
	for _, e := range m.Images {
		if e.Degraded {
			s.Degraded++
			continue
		}
		s.TotalImages++
		if e.OverBudget {
			s.OverBudget++
		}
		if e.Modern != nil {
			s.TotalOutputBytes += e.Modern.Size
		}
		if e.Fallback != nil {
			s.TotalOutputBytes += e.Fallback.Size
		}
	}
	m.Stats = s
}

// WriteJSON serializes the manifest to a JSON file with stable ordering.
func WriteJSON(m *Manifest, path string) error {
	m.ComputeStats()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

// Load reads a manifest file back, rejecting unsupported versions.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != SupportedVersion {
		return nil, fmt.Errorf("manifest version %d not supported (want %d)", m.Version, SupportedVersion)
	}
	return &m, nil
}
