// Package source normalizes image references into raw bytes. A reference
// is a local path under a trusted root, an http(s) URL, or a base64 data
// URI; all three resolve to the same Resolved shape so the rest of the
// pipeline never cares where bytes came from.
package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AnyUserName/siteimg/internal/hasher"
)

// Origin classifies where a reference points.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
	OriginDataURI
)

func (o Origin) String() string {
	switch o {
	case OriginRemote:
		return "remote"
	case OriginDataURI:
		return "data-uri"
	default:
		return "local"
	}
}

// Kind is the detected input format. Only formats with a defined
// modern/fallback variant pairing are supported.
type Kind int

const (
	KindJPEG Kind = iota
	KindPNG
)

func (k Kind) String() string {
	if k == KindPNG {
		return "png"
	}
	return "jpeg"
}

// MIME returns the canonical content type for the kind.
func (k Kind) MIME() string {
	if k == KindPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// FallbackExt returns the file extension of the compatible fallback
// variant for images of this kind.
func (k Kind) FallbackExt() string {
	if k == KindPNG {
		return ".png"
	}
	return ".jpg"
}

// Identity is the canonical handle for one logical source image. It is
// computed before any I/O happens so the build can deduplicate work up
// front.
type Identity struct {
	Origin Origin

	// RawRef is the reference exactly as the caller gave it.
	RawRef string

	// RelPath is the output-relative base path, slash-separated and
	// without extension. External sources without a caller hint leave it
	// empty until their bytes are available.
	RelPath string

	abs string // local sources only: resolved absolute path
}

// CacheKey returns the build-wide deduplication key. Two references with
// the same key produce the same output pair and are processed once.
func (id Identity) CacheKey() string {
	if id.Origin == OriginLocal {
		return id.abs + "|" + id.RelPath
	}
	return "external:" + id.RelPath + id.RawRef
}

// Resolved is a reference normalized to raw bytes, with its final
// identity filled in.
type Resolved struct {
	Identity Identity
	Kind     Kind
	Data     []byte
}

// Resolver turns references into Resolved payloads. Local references are
// confined to the root directory given at construction.
type Resolver struct {
	root    string
	fetcher *fetcher
}

// NewResolver builds a resolver rooted at dir. Remote fetches are capped
// at maxRemote bytes and abandoned after timeout.
func NewResolver(dir string, maxRemote int64, timeout time.Duration) (*Resolver, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}
	return &Resolver{root: abs, fetcher: newFetcher(maxRemote, timeout)}, nil
}

// Root returns the absolute trusted root for local references.
func (r *Resolver) Root() string { return r.root }

// Identify classifies ref and computes its identity without touching the
// filesystem or network. relHint, when non-empty, pins the output path;
// it must be slash-separated and extension-free.
func (r *Resolver) Identify(ref, relHint string) (Identity, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return Identity{Origin: OriginDataURI, RawRef: ref, RelPath: relHint}, nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return Identity{Origin: OriginRemote, RawRef: ref, RelPath: relHint}, nil
	}
	abs, err := r.contain(ref)
	if err != nil {
		return Identity{}, err
	}
	rel := relHint
	if rel == "" {
		rel = r.defaultRelPath(abs)
	}
	return Identity{Origin: OriginLocal, RawRef: ref, RelPath: rel, abs: abs}, nil
}

// Resolve loads the bytes behind an identity. External identities
// without a path hint get a content-derived one here.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (*Resolved, error) {
	switch id.Origin {
	case OriginDataURI:
		return r.resolveDataURI(id)
	case OriginRemote:
		return r.resolveRemote(ctx, id)
	default:
		return r.resolveLocal(id)
	}
}

// contain resolves a local reference against the root and rejects
// anything that lands outside it, whether via .. segments or an
// absolute path.
func (r *Resolver) contain(ref string) (string, error) {
	p := filepath.FromSlash(ref)
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.root, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, err)
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", ref, ErrPathEscape)
	}
	return abs, nil
}

// defaultRelPath derives the output path of a local source from its
// location under the root, dropping the extension.
func (r *Resolver) defaultRelPath(abs string) string {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		rel = filepath.Base(abs)
	}
	return filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
}

func (r *Resolver) resolveLocal(id Identity) (*Resolved, error) {
	kind, err := kindFromExt(filepath.Ext(id.abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id.RawRef, err)
	}
	data, err := os.ReadFile(id.abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id.RawRef, err)
	}
	return &Resolved{Identity: id, Kind: kind, Data: data}, nil
}

func (r *Resolver) resolveDataURI(id Identity) (*Resolved, error) {
	kind, payload, err := splitDataURI(id.RawRef)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data uri payload: %w", err)
	}
	if id.RelPath == "" {
		id.RelPath = derivedRelPath(data)
	}
	return &Resolved{Identity: id, Kind: kind, Data: data}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, id Identity) (*Resolved, error) {
	data, kind, err := r.fetcher.fetch(ctx, id.RawRef)
	if err != nil {
		return nil, err
	}
	if id.RelPath == "" {
		id.RelPath = derivedRelPath(data)
	}
	return &Resolved{Identity: id, Kind: kind, Data: data}, nil
}

// derivedRelPath names external sources by content, so identical bytes
// fetched from different URLs share one output pair on disk.
func derivedRelPath(data []byte) string {
	return "external/" + hasher.Content(data)
}

// splitDataURI pulls the media type and base64 payload out of a data
// URI. Only the plain "data:<mime>;base64,<payload>" form is accepted.
func splitDataURI(ref string) (Kind, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return 0, "", fmt.Errorf("malformed data uri")
	}
	mediaType, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return 0, "", fmt.Errorf("data uri is not base64-encoded: %w", ErrUnsupportedFormat)
	}
	kind, err := kindFromMIME(mediaType)
	if err != nil {
		return 0, "", err
	}
	return kind, payload, nil
}

func kindFromMIME(mime string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return KindJPEG, nil
	case "image/png":
		return KindPNG, nil
	}
	return 0, fmt.Errorf("%s: %w", mime, ErrUnsupportedFormat)
}

func kindFromExt(ext string) (Kind, error) {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return KindJPEG, nil
	case ".png":
		return KindPNG, nil
	}
	return 0, fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
}
