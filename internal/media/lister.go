package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/clipforge/clipforge/internal/core"
	"github.com/clipforge/clipforge/internal/domain/model"
)

// YtdlpLister resolves playlist listings with the external tool's flat
// playlist mode, which prints one JSON document describing every entry
// without downloading anything.
type YtdlpLister struct {
	runner CommandRunner
	bin    string
}

// NewYtdlpLister creates a YtdlpLister using the given runner and binary path.
func NewYtdlpLister(runner CommandRunner, bin string) *YtdlpLister {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &YtdlpLister{runner: runner, bin: bin}
}

const (
	listingTitleExpr = "title"
	listingItemsExpr = "entries[].{id: id, title: title, url: url || webpage_url}"
)

// List fetches the flat listing of the playlist at url.
func (l *YtdlpLister) List(ctx context.Context, url string) (*model.PlaylistListing, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("playlist url is required")
	}

	var mu sync.Mutex
	var stdout strings.Builder
	cmd := Command{
		Bin:  l.bin,
		Args: []string{"--flat-playlist", "-J", url},
		OnLine: func(stream OutputStream, line string) {
			if stream != StreamStdout {
				return
			}
			mu.Lock()
			stdout.WriteString(line)
			stdout.WriteString("\n")
			mu.Unlock()
		},
	}
	if err := l.runner.Run(ctx, cmd); err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(stdout.String())
	if raw == "" {
		return nil, errors.New("playlist probe returned no output")
	}

	return ParseListing([]byte(raw))
}

// ParseListing extracts the playlist title and entries from the tool's flat
// playlist JSON document.
func ParseListing(raw []byte) (*model.PlaylistListing, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode playlist json: %w", err)
	}

	listing := &model.PlaylistListing{}

	if title, err := jmespath.Search(listingTitleExpr, doc); err == nil {
		if s, ok := title.(string); ok {
			listing.Title = s
		}
	}
	if listing.Title == "" {
		listing.Title = "playlist"
	}

	entries, err := jmespath.Search(listingItemsExpr, doc)
	if err != nil {
		return nil, fmt.Errorf("extract playlist entries: %w", err)
	}

	rows, ok := entries.([]any)
	if !ok {
		return listing, nil
	}

	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		item := model.PlaylistItem{}
		if id, ok := m["id"].(string); ok {
			item.ID = id
		}
		if title, ok := m["title"].(string); ok {
			item.Title = title
		}
		if u, ok := m["url"].(string); ok {
			item.URL = u
		}
		if item.ID == "" {
			continue
		}
		if item.URL == "" {
			item.URL = "https://www.youtube.com/watch?v=" + item.ID
		}
		listing.Items = append(listing.Items, item)
	}

	return listing, nil
}

// CachedLister caches listings so repeated submissions of the same playlist
// do not re-probe the remote service.
type CachedLister struct {
	inner  core.PlaylistLister
	cache  core.CacheRepository
	ttl    time.Duration
	logger *slog.Logger
}

// CachedListerOptions bundles dependencies for NewCachedLister.
type CachedListerOptions struct {
	Inner  core.PlaylistLister
	Cache  core.CacheRepository
	TTL    time.Duration
	Logger *slog.Logger
}

// NewCachedLister creates a CachedLister. A zero TTL defaults to 15 minutes.
func NewCachedLister(opts CachedListerOptions) (*CachedLister, error) {
	if opts.Inner == nil {
		return nil, errors.New("inner lister is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache repository is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedLister{inner: opts.Inner, cache: opts.Cache, ttl: ttl, logger: logger}, nil
}

func listingCacheKey(url string) string {
	return "playlist:listing:" + url
}

// List returns the cached listing when present, probing and caching
// otherwise. Cache faults fall back to a direct probe.
func (c *CachedLister) List(ctx context.Context, url string) (*model.PlaylistListing, error) {
	key := listingCacheKey(url)

	if cached, err := c.cache.Get(ctx, key); err == nil && len(cached) > 0 {
		var listing model.PlaylistListing
		if jsonErr := json.Unmarshal(cached, &listing); jsonErr == nil {
			return &listing, nil
		}
		// Corrupt entry; drop it and reprobe.
		_, _ = c.cache.Delete(ctx, key)
	} else if err != nil {
		c.logger.WarnContext(ctx, "playlist cache read failed", "error", err)
	}

	listing, err := c.inner.List(ctx, url)
	if err != nil {
		return nil, err
	}

	if raw, marshalErr := json.Marshal(listing); marshalErr == nil {
		if setErr := c.cache.Set(ctx, key, raw, c.ttl); setErr != nil {
			c.logger.WarnContext(ctx, "playlist cache write failed", "error", setErr)
		}
	}
	return listing, nil
}
