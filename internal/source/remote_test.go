package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func remoteResolver(t *testing.T, maxBytes int64, timeout time.Duration) *Resolver {
	t.Helper()
	r, err := NewResolver(t.TempDir(), maxBytes, timeout)
	require.NoError(t, err)
	return r
}

func fetchURL(t *testing.T, r *Resolver, url string) (*Resolved, error) {
	t.Helper()
	id, err := r.Identify(url, "")
	require.NoError(t, err)
	require.Equal(t, OriginRemote, id.Origin)
	return r.Resolve(context.Background(), id)
}

func TestFetchOK(t *testing.T) {
	data := jpegBytes(t, 8, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(data)
	}))
	defer srv.Close()

	res, err := fetchURL(t, remoteResolver(t, 1<<20, 2*time.Second), srv.URL+"/pic")
	require.NoError(t, err)
	require.Equal(t, KindJPEG, res.Kind)
	require.Equal(t, data, res.Data)
	require.Contains(t, res.Identity.RelPath, "external/")
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := fetchURL(t, remoteResolver(t, 1<<20, 2*time.Second), srv.URL+"/missing.jpg")
	require.ErrorIs(t, err, ErrFetch)
}

func TestFetchDeclaredTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(10<<20))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := fetchURL(t, remoteResolver(t, 1<<20, 2*time.Second), srv.URL+"/huge.jpg")
	require.ErrorIs(t, err, ErrRemoteTooLarge)
}

func TestFetchActualTooLarge(t *testing.T) {
	// Chunked response with no Content-Length: the cap has to hold on
	// actual bytes read, not just the header.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		chunk := make([]byte, 1024)
		for i := 0; i < 64; i++ {
			w.(http.Flusher).Flush()
			w.Write(chunk)
		}
	}))
	defer srv.Close()

	_, err := fetchURL(t, remoteResolver(t, 16*1024, 2*time.Second), srv.URL+"/stream.jpg")
	require.ErrorIs(t, err, ErrRemoteTooLarge)
}

func TestFetchTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	_, err := fetchURL(t, remoteResolver(t, 1<<20, 50*time.Millisecond), srv.URL+"/slow.jpg")
	require.ErrorIs(t, err, ErrFetchTimeout)
}

func TestFetchKindFromURLWhenContentTypeGeneric(t *testing.T) {
	data := pngBytes(t, 4, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	}))
	defer srv.Close()

	res, err := fetchURL(t, remoteResolver(t, 1<<20, 2*time.Second), srv.URL+"/asset.png")
	require.NoError(t, err)
	require.Equal(t, KindPNG, res.Kind)
}

func TestFetchKindSniffedWithoutHints(t *testing.T) {
	data := pngBytes(t, 4, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	}))
	defer srv.Close()

	// No usable content type and no extension in the path.
	res, err := fetchURL(t, remoteResolver(t, 1<<20, 2*time.Second), srv.URL+"/asset")
	require.NoError(t, err)
	require.Equal(t, KindPNG, res.Kind)
}

func TestFetchUnsupportedRemoteFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		w.Write([]byte("GIF89a lots of pixels"))
	}))
	defer srv.Close()

	_, err := fetchURL(t, remoteResolver(t, 1<<20, 2*time.Second), srv.URL+"/anim.gif")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
