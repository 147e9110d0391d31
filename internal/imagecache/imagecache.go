// Package imagecache fetches, decodes and caches product images by URL with a
// bounded entry count and memory cost.
//
// A request for a URL that is already being fetched cancels the earlier fetch
// and takes its place: the most recent caller wins and earlier callers get nil.
// Any failure yields nil rather than an error.
package imagecache

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Default bounds.
const (
	DefaultMaxEntries   = 100
	DefaultMaxCost      = 50 << 20
	DefaultMaxDecode    = 64 << 20
	DefaultFetchTimeout = 30 * time.Second
)

// Image is a decoded image together with its source bytes.
type Image struct {
	URL    string
	Image  image.Image
	Format string // "jpeg", "png" or "gif"
	Data   []byte
	// Cost approximates resident memory: decoded RGBA pixels plus source bytes.
	Cost int64
}

// ContentType returns the MIME type of the source bytes.
func (i *Image) ContentType() string {
	return "image/" + i.Format
}

// Fetcher retrieves raw image bytes.
type Fetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Config holds cache bounds. MaxDecode caps the decoded pixel buffer
// (width*height*4) of a single image; larger images are rejected before
// decoding.
type Config struct {
	MaxEntries   int
	MaxCost      int64
	MaxDecode    int64
	FetchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MaxCost <= 0 {
		c.MaxCost = DefaultMaxCost
	}
	if c.MaxDecode <= 0 {
		c.MaxDecode = DefaultMaxDecode
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}

type flight struct {
	cancel context.CancelFunc
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(c *Cache) { c.logger = lg }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Cache) { c.meter = mp.Meter("storefront") }
}

// Cache is a bounded image cache with per-URL cancellable fetches.
type Cache struct {
	fetcher Fetcher
	cfg     Config
	logger  *zap.Logger
	meter   metric.Meter
	loads   metric.Int64Counter

	mu       sync.Mutex
	entries  *simplelru.LRU[string, *Image]
	cost     int64
	inflight map[string]*flight
}

// New creates an image cache.
func New(fetcher Fetcher, cfg Config, opts ...Option) (*Cache, error) {
	c := &Cache{
		fetcher:  fetcher,
		cfg:      cfg.withDefaults(),
		logger:   zap.NewNop(),
		meter:    otel.GetMeterProvider().Meter("storefront"),
		inflight: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}

	entries, err := simplelru.NewLRU[string, *Image](c.cfg.MaxEntries, func(_ string, img *Image) {
		c.cost -= img.Cost
	})
	if err != nil {
		return nil, errors.Wrap(err, "create lru")
	}
	c.entries = entries

	loads, err := c.meter.Int64Counter("storefront.images.loads",
		metric.WithDescription("Image loads by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create loads counter")
	}
	c.loads = loads
	return c, nil
}

// Load returns the image for url, from cache or by fetching it. It returns nil
// when the fetch fails, the bytes are not a supported image, ctx is cancelled,
// or a newer Load for the same url replaced this one.
func (c *Cache) Load(ctx context.Context, url string) *Image {
	c.mu.Lock()
	if img, ok := c.entries.Get(url); ok {
		c.mu.Unlock()
		c.record(ctx, "hit")
		return img
	}

	if prev, ok := c.inflight[url]; ok {
		prev.cancel()
		c.logger.Debug("Replacing in-flight image fetch", zap.String("url", url))
	}
	fctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	f := &flight{cancel: cancel}
	c.inflight[url] = f
	c.mu.Unlock()

	img, err := c.fetch(fctx, url)

	c.mu.Lock()
	current := c.inflight[url] == f
	if current {
		delete(c.inflight, url)
	}
	// Cancellation is sampled before the fetch context is released below.
	cancelled := fctx.Err() != nil
	if err == nil && current && !cancelled {
		c.add(img)
	}
	c.mu.Unlock()
	cancel()

	switch {
	case !current:
		c.record(ctx, "replaced")
		return nil
	case err != nil:
		if ctx.Err() == nil {
			c.logger.Debug("Image load failed", zap.String("url", url), zap.Error(err))
		}
		c.record(ctx, "error")
		return nil
	case cancelled:
		c.record(ctx, "cancelled")
		return nil
	}
	c.record(ctx, "fetched")
	return img
}

// Cached returns a cached image without fetching.
func (c *Cache) Cached(url string) (*Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Get(url)
}

// CancelAll cancels every in-flight fetch and clears the registry. Cached
// images are kept.
func (c *Cache) CancelAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.inflight)
	for url, f := range c.inflight {
		f.cancel()
		delete(c.inflight, url)
	}
	if n > 0 {
		c.logger.Info("Cancelled in-flight image fetches", zap.Int("count", n))
	}
	return n
}

// Purge cancels in-flight fetches and drops every cached image.
func (c *Cache) Purge() {
	c.CancelAll()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Stats is a snapshot of the cache.
type Stats struct {
	Entries  int
	Cost     int64
	InFlight int
}

// Stats returns current occupancy.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: c.entries.Len(), Cost: c.cost, InFlight: len(c.inflight)}
}

func (c *Cache) fetch(ctx context.Context, url string) (*Image, error) {
	data, err := c.fetcher.FetchImage(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "fetch image")
	}

	// Reject by declared dimensions before allocating the pixel buffer.
	imgCfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode image config")
	}
	if pixels := int64(imgCfg.Width) * int64(imgCfg.Height) * 4; pixels > c.cfg.MaxDecode {
		return nil, errors.Wrapf(ErrTooLarge, "%dx%d", imgCfg.Width, imgCfg.Height)
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}

	b := decoded.Bounds()
	return &Image{
		URL:    url,
		Image:  decoded,
		Format: format,
		Data:   data,
		Cost:   int64(b.Dx())*int64(b.Dy())*4 + int64(len(data)),
	}, nil
}

// add inserts img and evicts least recently used entries until the cost fits.
// Images that exceed the cost limit on their own are not cached. Must be
// called with mu held.
func (c *Cache) add(img *Image) {
	if img.Cost > c.cfg.MaxCost {
		c.logger.Debug("Image exceeds cache cost limit",
			zap.String("url", img.URL),
			zap.Int64("cost", img.Cost),
		)
		return
	}
	c.entries.Remove(img.URL)
	c.entries.Add(img.URL, img)
	c.cost += img.Cost
	for c.cost > c.cfg.MaxCost {
		if _, _, ok := c.entries.RemoveOldest(); !ok {
			break
		}
	}
}

func (c *Cache) record(ctx context.Context, result string) {
	c.loads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
