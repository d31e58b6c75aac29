package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AnyUserName/siteimg/internal/encoder"
	"github.com/AnyUserName/siteimg/internal/source"
)

// gauge tracks how many conversions overlap.
type gauge struct {
	mu       sync.Mutex
	cur, max int
}

func (g *gauge) enter() {
	g.mu.Lock()
	g.cur++
	if g.cur > g.max {
		g.max = g.cur
	}
	g.mu.Unlock()
}

func (g *gauge) exit() {
	g.mu.Lock()
	g.cur--
	g.mu.Unlock()
}

func (g *gauge) peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.max
}

type stubEncoder struct {
	format  string
	mime    string
	payload []byte
	delay   time.Duration
	gauge   *gauge
	calls   atomic.Int64
}

func (s *stubEncoder) Format() string  { return s.format }
func (s *stubEncoder) MIME() string    { return s.mime }
func (s *stubEncoder) Available() bool { return true }

func (s *stubEncoder) Encode(_ image.Image, _ int) ([]byte, error) {
	s.calls.Add(1)
	if s.gauge != nil {
		s.gauge.enter()
		defer s.gauge.exit()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.payload, nil
}

// stubRegistry swaps real encoders for instant fakes so pipeline tests
// run without cwebp on the host.
func stubRegistry(modernJPEG, modernPNG *stubEncoder) *encoder.Registry {
	r := encoder.NewRegistry()
	r.Register(source.KindJPEG, encoder.Pair{
		Modern:   modernJPEG,
		Fallback: &stubEncoder{format: "jpeg", mime: "image/jpeg", payload: []byte("jpeg-fallback")},
	})
	r.Register(source.KindPNG, encoder.Pair{
		Modern:   modernPNG,
		Fallback: &stubEncoder{format: "png", mime: "image/png", payload: []byte("png-fallback")},
	})
	return r
}

func webpStub() *stubEncoder {
	return &stubEncoder{format: "webp", mime: "image/webp", payload: []byte("webp-modern")}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixtureImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 64, A: 255})
		}
	}
	return img
}

func writeJPEG(t *testing.T, root, rel string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, fixtureImage(w, h), &jpeg.Options{Quality: 90}))
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writePNG(t *testing.T, root, rel string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, fixtureImage(w, h)))
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// writeRotatedJPEG encodes a JPEG and splices in an EXIF segment marking
// it rotated 90 degrees clockwise, the way phone cameras store portrait
// shots. Header dimensions stay w x h; the decoded image is h x w.
func writeRotatedJPEG(t *testing.T, root, rel string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, fixtureImage(w, h), &jpeg.Options{Quality: 90}))
	raw := buf.Bytes()

	// APP1 segment: Exif header, little-endian TIFF, one IFD0 entry
	// setting tag 0x0112 (orientation) to 6.
	exif := []byte{
		0xFF, 0xE1, 0x00, 0x22,
		'E', 'x', 'i', 'f', 0x00, 0x00,
		'I', 'I', 0x2A, 0x00,
		0x08, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x12, 0x01, 0x03, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0x06, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	data := make([]byte, 0, len(raw)+len(exif))
	data = append(data, raw[:2]...)
	data = append(data, exif...)
	data = append(data, raw[2:]...)

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestProcessor(t *testing.T, reg *encoder.Registry, workers int) (*Processor, string, string) {
	t.Helper()
	srcDir := t.TempDir()
	outDir := t.TempDir()
	p, err := New(Options{
		SourceDir: srcDir,
		OutputDir: outDir,
		Workers:   workers,
	}, WithRegistry(reg), WithLogger(quiet()))
	require.NoError(t, err)
	return p, srcDir, outDir
}

func TestProcessLocalJPEG(t *testing.T) {
	modern := webpStub()
	p, srcDir, outDir := newTestProcessor(t, stubRegistry(modern, webpStub()), 2)
	writeJPEG(t, srcDir, "posts/cover.jpg", 800, 600)

	res, err := p.Process(context.Background(), "posts/cover.jpg", "")
	require.NoError(t, err)

	require.Equal(t, "posts/cover", res.Key)
	require.Equal(t, "local", res.Origin)
	require.Equal(t, "jpeg", res.Format)
	require.Equal(t, 800, res.Width)
	require.Equal(t, 600, res.Height)
	require.Equal(t, "image/webp", res.Modern.MIMEType)
	require.Equal(t, "image/jpeg", res.Fallback.MIMEType)
	require.Equal(t, "posts/cover.webp", res.Modern.RelPath)
	require.Equal(t, "posts/cover.jpg", res.Fallback.RelPath)
	require.Len(t, res.AvgColor, 7)

	written, err := os.ReadFile(filepath.Join(outDir, "posts", "cover.webp"))
	require.NoError(t, err)
	require.Equal(t, []byte("webp-modern"), written)
	written, err = os.ReadFile(filepath.Join(outDir, "posts", "cover.jpg"))
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-fallback"), written)
}

func TestProcessPNGKeepsFamily(t *testing.T) {
	p, srcDir, outDir := newTestProcessor(t, stubRegistry(webpStub(), webpStub()), 2)
	writePNG(t, srcDir, "diagrams/arch.png", 400, 300)

	res, err := p.Process(context.Background(), "diagrams/arch.png", "")
	require.NoError(t, err)
	require.Equal(t, "png", res.Format)
	require.Equal(t, "diagrams/arch.png", res.Fallback.RelPath)
	require.FileExists(t, filepath.Join(outDir, "diagrams", "arch.png"))
	require.FileExists(t, filepath.Join(outDir, "diagrams", "arch.webp"))
}

func TestOrientationAppliedToResult(t *testing.T) {
	p, srcDir, outDir := newTestProcessor(t, stubRegistry(webpStub(), webpStub()), 2)
	writeRotatedJPEG(t, srcDir, "portrait.jpg", 200, 100)

	res, err := p.Process(context.Background(), "portrait.jpg", "")
	require.NoError(t, err)
	require.Equal(t, 100, res.Width, "decoded orientation must win over header dimensions")
	require.Equal(t, 200, res.Height)
	require.Equal(t, 1, res.Passes)
	require.FileExists(t, filepath.Join(outDir, "portrait.webp"))
	require.FileExists(t, filepath.Join(outDir, "portrait.jpg"))
}

func TestRepeatedProcessSharesResult(t *testing.T) {
	modern := webpStub()
	p, srcDir, _ := newTestProcessor(t, stubRegistry(modern, webpStub()), 2)
	writeJPEG(t, srcDir, "cover.jpg", 300, 200)

	first, err := p.Process(context.Background(), "cover.jpg", "")
	require.NoError(t, err)
	second, err := p.Process(context.Background(), "cover.jpg", "")
	require.NoError(t, err)

	require.Same(t, first, second)
	require.EqualValues(t, 1, modern.calls.Load())
	require.Equal(t, 1, p.Processed())
}

func TestConcurrentSameRefConvergesToOneEncode(t *testing.T) {
	modern := webpStub()
	modern.delay = 20 * time.Millisecond
	p, srcDir, _ := newTestProcessor(t, stubRegistry(modern, webpStub()), 4)
	writeJPEG(t, srcDir, "cover.jpg", 300, 200)

	const callers = 8
	results := make([]*Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			res, err := p.Process(context.Background(), "cover.jpg", "")
			if err == nil {
				results[idx] = res
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, modern.calls.Load())
	for i := 1; i < callers; i++ {
		require.Same(t, results[0], results[i])
	}
}

func TestConversionWindowBounded(t *testing.T) {
	g := &gauge{}
	modernJPEG := webpStub()
	modernJPEG.gauge = g
	modernJPEG.delay = 25 * time.Millisecond
	p, srcDir, _ := newTestProcessor(t, stubRegistry(modernJPEG, webpStub()), 2)

	const images = 6
	for i := 0; i < images; i++ {
		writeJPEG(t, srcDir, fmt.Sprintf("img%d.jpg", i), 100, 80)
	}

	var wg sync.WaitGroup
	errs := make([]error, images)
	for i := 0; i < images; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = p.Process(context.Background(), fmt.Sprintf("img%d.jpg", idx), "")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.LessOrEqual(t, g.peak(), 2, "conversion window exceeded")
	require.Equal(t, images, p.Processed())
}

func TestRemoteFetchedOnce(t *testing.T) {
	var hits atomic.Int64
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, fixtureImage(200, 100), nil))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	p, _, outDir := newTestProcessor(t, stubRegistry(webpStub(), webpStub()), 2)
	url := srv.URL + "/hero.jpg"

	first, err := p.Process(context.Background(), url, "")
	require.NoError(t, err)
	second, err := p.Process(context.Background(), url, "")
	require.NoError(t, err)

	require.Same(t, first, second)
	require.EqualValues(t, 1, hits.Load())
	require.Equal(t, "remote", first.Origin)
	require.Contains(t, first.Key, "external/")
	require.FileExists(t, filepath.Join(outDir, filepath.FromSlash(first.Modern.RelPath)))
}

func TestRemoteFailureNotRetried(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		http.NotFound(w, req)
	}))
	defer srv.Close()

	p, _, _ := newTestProcessor(t, stubRegistry(webpStub(), webpStub()), 2)
	url := srv.URL + "/gone.jpg"

	_, err := p.Process(context.Background(), url, "")
	require.ErrorIs(t, err, source.ErrFetch)
	_, err = p.Process(context.Background(), url, "")
	require.ErrorIs(t, err, source.ErrFetch)

	require.EqualValues(t, 1, hits.Load(), "failed fetch must not be retried")
}

func TestRemoteTooLargeWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, fixtureImage(600, 400), &jpeg.Options{Quality: 95}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	srcDir := t.TempDir()
	outDir := t.TempDir()
	p, err := New(Options{
		SourceDir:      srcDir,
		OutputDir:      outDir,
		RemoteMaxBytes: 1024,
	}, WithRegistry(stubRegistry(webpStub(), webpStub())), WithLogger(quiet()))
	require.NoError(t, err)

	_, err = p.Process(context.Background(), srv.URL+"/huge.jpg", "")
	require.ErrorIs(t, err, source.ErrRemoteTooLarge)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Empty(t, entries, "rejected fetch must leave the output root untouched")
}

func TestPathEscapeRejected(t *testing.T) {
	p, _, _ := newTestProcessor(t, stubRegistry(webpStub(), webpStub()), 2)

	_, err := p.Process(context.Background(), "../outside.jpg", "")
	require.ErrorIs(t, err, source.ErrPathEscape)
}

func TestUnsupportedFormatRejected(t *testing.T) {
	p, srcDir, _ := newTestProcessor(t, stubRegistry(webpStub(), webpStub()), 2)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "anim.gif"), []byte("GIF89a"), 0o644))

	_, err := p.Process(context.Background(), "anim.gif", "")
	require.ErrorIs(t, err, source.ErrUnsupportedFormat)
}

func TestRelHintPlacesOutputs(t *testing.T) {
	p, srcDir, outDir := newTestProcessor(t, stubRegistry(webpStub(), webpStub()), 2)
	writeJPEG(t, srcDir, "raw/IMG_2041.jpg", 640, 480)

	res, err := p.Process(context.Background(), "raw/IMG_2041.jpg", "covers/hero")
	require.NoError(t, err)
	require.Equal(t, "covers/hero", res.Key)
	require.FileExists(t, filepath.Join(outDir, "covers", "hero.webp"))
	require.FileExists(t, filepath.Join(outDir, "covers", "hero.jpg"))
}

func TestHintEscapeRejected(t *testing.T) {
	p, srcDir, _ := newTestProcessor(t, stubRegistry(webpStub(), webpStub()), 2)
	writeJPEG(t, srcDir, "cover.jpg", 100, 100)

	_, err := p.Process(context.Background(), "cover.jpg", "../../elsewhere/cover")
	require.ErrorIs(t, err, source.ErrPathEscape)
}

func TestPublicBaseOnVariants(t *testing.T) {
	srcDir := t.TempDir()
	p, err := New(Options{
		SourceDir:  srcDir,
		OutputDir:  t.TempDir(),
		PublicBase: "/static/img",
	}, WithRegistry(stubRegistry(webpStub(), webpStub())), WithLogger(quiet()))
	require.NoError(t, err)
	writeJPEG(t, srcDir, "cover.jpg", 100, 100)

	res, err := p.Process(context.Background(), "cover.jpg", "")
	require.NoError(t, err)
	require.Equal(t, "/static/img/cover.webp", res.Modern.PublicPath)
	require.Equal(t, "/static/img/cover.jpg", res.Fallback.PublicPath)
}

func TestNewRequiresDirectories(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestDefaultsApplied(t *testing.T) {
	p, _, _ := newTestProcessor(t, stubRegistry(webpStub(), webpStub()), 0)
	require.Equal(t, DefaultMaxWidth, p.opts.MaxWidth)
	require.Equal(t, DefaultMinWidth, p.opts.MinWidth)
	require.EqualValues(t, DefaultMaxBytes, p.opts.MaxBytes)
	require.Equal(t, DefaultResizeStep, p.opts.ResizeStep)
	require.GreaterOrEqual(t, p.Slots(), minSlots)
	require.LessOrEqual(t, p.Slots(), maxSlots)
}

func TestEncodeSlots(t *testing.T) {
	require.Equal(t, 4, encodeSlots(4))
	require.Equal(t, 12, encodeSlots(12), "explicit worker count is not clamped")
	derived := encodeSlots(0)
	require.GreaterOrEqual(t, derived, minSlots)
	require.LessOrEqual(t, derived, maxSlots)
}
