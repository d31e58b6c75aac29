package source

import "errors"

// Resolution failures are terminal for the image that triggered them.
// Nothing here is retried; callers decide whether a failed image aborts
// the build or degrades to a plain reference.
var (
	// ErrUnsupportedFormat means the reference names an image type outside
	// the supported JPEG/PNG input set.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrPathEscape means a local reference resolved outside the trusted
	// source root.
	ErrPathEscape = errors.New("path escapes source root")

	// ErrRemoteTooLarge means a remote payload exceeded the configured
	// cap, either by declared Content-Length or by actual size on the wire.
	ErrRemoteTooLarge = errors.New("remote image too large")

	// ErrFetchTimeout means a remote fetch ran past its deadline.
	ErrFetchTimeout = errors.New("fetch timed out")

	// ErrFetch covers the remaining remote failures: transport errors and
	// non-2xx responses.
	ErrFetch = errors.New("fetch failed")
)
