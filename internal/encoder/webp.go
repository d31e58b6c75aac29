package encoder

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
)

// Atomic counter for unique temp file names across goroutines.
var tempCounter atomic.Int64

// WebPEncoder encodes images to WebP by shelling out to cwebp.
// This approach avoids CGO while still producing optimized WebP.
// Install: brew install webp / apt install webp
//
// Lossless mode is used for PNG-origin images, where recompressing
// pixels lossily would defeat the point of the format.
type WebPEncoder struct {
	Lossless bool

	once      sync.Once
	available bool
	cwebpPath string
}

func (e *WebPEncoder) Format() string { return "webp" }
func (e *WebPEncoder) MIME() string   { return "image/webp" }

func (e *WebPEncoder) Available() bool {
	e.once.Do(func() {
		path, err := exec.LookPath("cwebp")
		if err == nil {
			e.available = true
			e.cwebpPath = path
		}
	})
	return e.available
}

func (e *WebPEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	if !e.Available() {
		return nil, fmt.Errorf("cwebp not found in PATH; install with: apt install webp")
	}
	if quality <= 0 || quality > 100 {
		quality = 82
	}

	// Write source as PNG to temp file (cwebp reads files).
	// Use atomic counter to ensure unique filenames across goroutines.
	id := tempCounter.Add(1)
	srcFile, err := os.CreateTemp("", fmt.Sprintf("siteimg_src_%d_*.png", id))
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	srcPath := srcFile.Name()
	dstFile, err := os.CreateTemp("", fmt.Sprintf("siteimg_dst_%d_*.webp", id))
	if err != nil {
		srcFile.Close()
		os.Remove(srcPath)
		return nil, fmt.Errorf("create temp: %w", err)
	}
	dstPath := dstFile.Name()
	dstFile.Close()
	defer os.Remove(srcPath)
	defer os.Remove(dstPath)

	if err := png.Encode(srcFile, img); err != nil {
		srcFile.Close()
		return nil, fmt.Errorf("encode temp png: %w", err)
	}
	srcFile.Close()

	// Single-threaded (no -mt): output must be byte-identical across
	// runs with the same input and settings.
	args := []string{
		"-m", "6", // compression method (0=fast, 6=best)
		"-quiet",
	}
	if e.Lossless {
		args = append(args, "-lossless", "-exact")
	} else {
		args = append(args, "-q", strconv.Itoa(quality))
	}
	args = append(args, srcPath, "-o", dstPath)

	cmd := exec.Command(e.cwebpPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("cwebp: %w: %s", err, string(out))
	}

	return os.ReadFile(dstPath)
}
