package encoder

import (
	"image"
)

// Encoder serializes a decoded image into one output format.
type Encoder interface {
	// Format returns the short format name (e.g. "jpeg", "webp", "png").
	Format() string

	// MIME returns the content type of encoded output.
	MIME() string

	// Encode converts the image to bytes at the given quality (1-100).
	// Encoders without a quality lever ignore it.
	Encode(img image.Image, quality int) ([]byte, error)

	// Available returns true if the encoder is ready to use.
	// Encoders backed by external binaries (cwebp) may not be installed.
	Available() bool
}
