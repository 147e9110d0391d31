package imagecache

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type respondFunc func(ctx context.Context) ([]byte, error)

// scriptedFetcher answers the n-th call with script[n] and reports each call
// on started.
type scriptedFetcher struct {
	mu      sync.Mutex
	script  []respondFunc
	calls   int
	started chan int
}

func newScriptedFetcher(script ...respondFunc) *scriptedFetcher {
	return &scriptedFetcher{script: script, started: make(chan int, len(script)+8)}
}

func (f *scriptedFetcher) FetchImage(ctx context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.mu.Unlock()

	f.started <- n
	if n >= len(f.script) {
		return nil, errors.New("unexpected call")
	}
	return f.script[n](ctx)
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// --- Helpers ---

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader is a PNG that declares w x h RGBA pixels but carries no pixel
// data. Only the header is well formed.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func returns(data []byte) respondFunc {
	return func(context.Context) ([]byte, error) { return data, nil }
}

func blockUntilCancelled() respondFunc {
	return func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func newTestCache(t *testing.T, f Fetcher, cfg Config) *Cache {
	t.Helper()
	c, err := New(f, cfg)
	require.NoError(t, err)
	return c
}

func TestCache_LoadCachesDecodedImage(t *testing.T) {
	ctx := context.Background()
	f := newScriptedFetcher(returns(pngBytes(t, 4, 3)))
	c := newTestCache(t, f, Config{})

	img := c.Load(ctx, "https://img/1.png")
	require.NotNil(t, img, "first fetch returns the image")
	cached, ok := c.Cached("https://img/1.png")
	require.True(t, ok)
	assert.Same(t, img, cached)
	assert.Zero(t, c.Stats().InFlight)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, "image/png", img.ContentType())
	assert.Equal(t, 4, img.Image.Bounds().Dx())
	assert.Equal(t, int64(4*3*4+len(img.Data)), img.Cost)

	again := c.Load(ctx, "https://img/1.png")
	assert.Same(t, img, again)
	assert.Equal(t, 1, f.Calls())
	assert.Equal(t, 0, c.Stats().InFlight)
}

func TestCache_FailuresYieldNil(t *testing.T) {
	ctx := context.Background()
	f := newScriptedFetcher(
		func(context.Context) ([]byte, error) { return nil, errors.New("offline") },
		returns([]byte("<html>not an image</html>")),
	)
	c := newTestCache(t, f, Config{})

	assert.Nil(t, c.Load(ctx, "https://img/a"))
	assert.Nil(t, c.Load(ctx, "https://img/b"))
	assert.Equal(t, 0, c.Stats().Entries)
	assert.Equal(t, 0, c.Stats().InFlight)
}

func TestCache_CallerCancellationYieldsNil(t *testing.T) {
	f := newScriptedFetcher(blockUntilCancelled())
	c := newTestCache(t, f, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.started
		cancel()
	}()

	assert.Nil(t, c.Load(ctx, "https://img/slow"))
	assert.Equal(t, 0, c.Stats().InFlight)
}

func TestCache_NewRequestReplacesInFlight(t *testing.T) {
	ctx := context.Background()
	f := newScriptedFetcher(blockUntilCancelled(), returns(pngBytes(t, 2, 2)))
	c := newTestCache(t, f, Config{})

	first := make(chan *Image, 1)
	go func() { first <- c.Load(ctx, "https://img/x") }()
	<-f.started

	second := c.Load(ctx, "https://img/x")
	require.NotNil(t, second)
	assert.Nil(t, <-first, "replaced request resolves to nil")
	assert.Equal(t, 0, c.Stats().InFlight)
}

// A replaced fetch that completes anyway must neither reach its caller nor
// overwrite the newer result in the cache.
func TestCache_ReplacedFetchDeliversNoStaleImage(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	stale := pngBytes(t, 1, 1)
	fresh := pngBytes(t, 8, 8)

	f := newScriptedFetcher(
		func(context.Context) ([]byte, error) {
			<-release // ignores cancellation
			return stale, nil
		},
		returns(fresh),
	)
	c := newTestCache(t, f, Config{})

	first := make(chan *Image, 1)
	go func() { first <- c.Load(ctx, "https://img/y") }()
	<-f.started

	second := c.Load(ctx, "https://img/y")
	require.NotNil(t, second)
	assert.Equal(t, 8, second.Image.Bounds().Dx())

	close(release)
	assert.Nil(t, <-first)

	cached, ok := c.Cached("https://img/y")
	require.True(t, ok)
	assert.Equal(t, 8, cached.Image.Bounds().Dx())
}

func TestCache_CancelAllKeepsCachedImages(t *testing.T) {
	ctx := context.Background()
	f := newScriptedFetcher(returns(pngBytes(t, 2, 2)), blockUntilCancelled(), blockUntilCancelled())
	c := newTestCache(t, f, Config{})

	require.NotNil(t, c.Load(ctx, "https://img/cached"))

	var wg sync.WaitGroup
	var nils atomic.Int32
	for _, u := range []string{"https://img/p", "https://img/q"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Load(ctx, u) == nil {
				nils.Add(1)
			}
		}()
	}
	<-f.started // cached
	<-f.started
	<-f.started
	require.Eventually(t, func() bool { return c.Stats().InFlight == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, 2, c.CancelAll())
	wg.Wait()

	assert.Equal(t, int32(2), nils.Load())
	assert.Equal(t, 0, c.Stats().InFlight)
	_, ok := c.Cached("https://img/cached")
	assert.True(t, ok)
}

func TestCache_BoundsEntries(t *testing.T) {
	ctx := context.Background()
	data := pngBytes(t, 1, 1)
	script := make([]respondFunc, 5)
	for i := range script {
		script[i] = returns(data)
	}
	c := newTestCache(t, newScriptedFetcher(script...), Config{MaxEntries: 3})

	for _, u := range []string{"a", "b", "c", "d", "e"} {
		require.NotNil(t, c.Load(ctx, u))
	}
	assert.Equal(t, 3, c.Stats().Entries)
	_, ok := c.Cached("a")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.Cached("e")
	assert.True(t, ok)
}

func TestCache_BoundsCost(t *testing.T) {
	ctx := context.Background()
	data := pngBytes(t, 10, 10) // 400 decoded bytes plus source
	cost := int64(400 + len(data))
	script := make([]respondFunc, 4)
	for i := range script {
		script[i] = returns(data)
	}
	c := newTestCache(t, newScriptedFetcher(script...), Config{MaxCost: 2*cost + cost/2})

	for _, u := range []string{"a", "b", "c"} {
		require.NotNil(t, c.Load(ctx, u))
	}
	st := c.Stats()
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, 2*cost, st.Cost)
	assert.LessOrEqual(t, st.Cost, 2*cost+cost/2)
}

func TestCache_OversizedImageReturnedButNotCached(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newScriptedFetcher(returns(pngBytes(t, 32, 32))), Config{MaxCost: 100})

	img := c.Load(ctx, "big")
	require.NotNil(t, img)
	assert.Equal(t, 0, c.Stats().Entries)
	assert.Equal(t, int64(0), c.Stats().Cost)
}

func TestCache_RejectsHugeDeclaredDimensions(t *testing.T) {
	ctx := context.Background()
	data := pngHeader(50000, 50000)
	c := newTestCache(t, newScriptedFetcher(returns(data)), Config{})

	_, err := c.fetch(ctx, "huge")
	require.ErrorIs(t, err, ErrTooLarge)

	assert.Nil(t, c.Load(ctx, "huge"))
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCache_DecodeLimit(t *testing.T) {
	ctx := context.Background()
	data := pngBytes(t, 16, 16) // 1024 decoded bytes
	c := newTestCache(t, newScriptedFetcher(returns(data)), Config{MaxDecode: 1023})
	assert.Nil(t, c.Load(ctx, "a"))

	c = newTestCache(t, newScriptedFetcher(returns(data)), Config{MaxDecode: 1024})
	assert.NotNil(t, c.Load(ctx, "a"))
}

func TestCache_Purge(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newScriptedFetcher(returns(pngBytes(t, 2, 2))), Config{})
	require.NotNil(t, c.Load(ctx, "a"))

	c.Purge()
	st := c.Stats()
	assert.Equal(t, 0, st.Entries)
	assert.Equal(t, int64(0), st.Cost)
}

func TestHTTPFetcher(t *testing.T) {
	data := pngBytes(t, 2, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(data)
		case "/big.png":
			_, _ = w.Write(make([]byte, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), 32)
	ctx := context.Background()

	got, err := NewHTTPFetcher(srv.Client(), 0).FetchImage(ctx, srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = f.FetchImage(ctx, srv.URL+"/missing.png")
	require.Error(t, err)

	_, err = f.FetchImage(ctx, srv.URL+"/big.png")
	require.ErrorIs(t, err, ErrTooLarge)

	c := newTestCache(t, NewHTTPFetcher(srv.Client(), 0), Config{})
	img := c.Load(ctx, srv.URL+"/ok.png")
	require.NotNil(t, img)
	assert.Nil(t, c.Load(ctx, srv.URL+"/missing.png"))
}
