package manifest

// Manifest is the JSON artifact a build leaves behind for rendering
// stages: one entry per logical image, keyed by output-relative base
// path (or by raw reference for degraded entries).
type Manifest struct {
	Version     int              `json:"version"`
	GeneratedAt string           `json:"generated_at"`
	PublicBase  string           `json:"public_base,omitempty"`
	Images      map[string]Entry `json:"images"`
	Stats       Stats            `json:"stats"`
}

// Entry describes one image and the variant pair delivered for it.
// Degraded entries have no variants: the page keeps a plain reference
// to the original source.
type Entry struct {
	Origin   string `json:"origin"`
	Format   string `json:"format,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	AvgColor string `json:"avg_color,omitempty"`

	Modern   *Variant `json:"modern,omitempty"`
	Fallback *Variant `json:"fallback,omitempty"`

	OverBudget bool `json:"over_budget,omitempty"`
	Degraded   bool `json:"degraded,omitempty"`

	Picture Picture `json:"picture"`
}

// Variant is one written rendition of an image.
type Variant struct {
	Path   string `json:"path"`
	Public string `json:"public,omitempty"`
	Type   string `json:"type"`
	Size   int64  `json:"size"`
}

// Picture mirrors the markup shape renderers emit: alternative sources
// in preference order, then the default img element every browser
// understands.
type Picture struct {
	Sources []PictureSource `json:"sources"`
	Img     PictureImg      `json:"img"`
}

// PictureSource is one source element of a picture.
type PictureSource struct {
	Src  string `json:"src"`
	Type string `json:"type"`
}

// PictureImg is the default img element of a picture.
type PictureImg struct {
	Src    string `json:"src"`
	Type   string `json:"type,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Stats aggregates build metrics.
type Stats struct {
	TotalImages      int   `json:"total_images"`
	TotalOutputBytes int64 `json:"total_output_bytes"`
	OverBudget       int   `json:"over_budget"`
	Degraded         int   `json:"degraded"`
}

// SupportedVersion is the current schema version.
const SupportedVersion = 1
