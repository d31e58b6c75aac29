package encoder

import (
	"bytes"
	"image"
	"image/png"
)

// PNGEncoder produces the compatible fallback for PNG-origin images
// using Go's standard library. PNG being lossless, there is no quality
// lever; best compression is the only knob and it is always on.
type PNGEncoder struct{}

func (e *PNGEncoder) Format() string  { return "png" }
func (e *PNGEncoder) MIME() string    { return "image/png" }
func (e *PNGEncoder) Available() bool { return true }

func (e *PNGEncoder) Encode(img image.Image, _ int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(512 * 1024) // pre-alloc 512KB

	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
