// Package probe reads intrinsic image geometry from raw bytes without a
// full decode.
package probe

import (
	"bytes"
	"image"

	_ "image/jpeg"
	_ "image/png"
)

// Info describes the intrinsic geometry of an image payload.
type Info struct {
	Width  int
	Height int
	Format string

	// Known is false when the header could not be parsed. That is not an
	// error: downstream sizing treats such images as already at their
	// width ceiling and encodes a single pass.
	Known bool
}

// Dimensions parses just enough of data to report pixel dimensions.
func Dimensions(data []byte) Info {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format, Known: true}
}
