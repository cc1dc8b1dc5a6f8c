package schemes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"dataresource/internal/loader"
)

// ── HTTP Scheme ─────────────────────────────────────────────
// Fetches remote files with GET. Responses may be cached in memory.

// HTTPOptions configures the http and https loaders.
type HTTPOptions struct {
	Timeout  time.Duration
	CacheTTL time.Duration // 0 disables caching
	Headers  map[string]string
}

var (
	httpMu     sync.RWMutex
	httpClient = &http.Client{Timeout: 30 * time.Second}
	httpCache  *cache.Cache
	httpHeader map[string]string
)

// ConfigureHTTP replaces the shared client settings.
func ConfigureHTTP(opts HTTPOptions) {
	httpMu.Lock()
	defer httpMu.Unlock()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient = &http.Client{Timeout: timeout}
	httpHeader = opts.Headers
	if opts.CacheTTL > 0 {
		httpCache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	} else {
		httpCache = nil
	}
}

type httpLoader struct{ scheme string }

func init() {
	loader.Register(&httpLoader{scheme: "http"})
	loader.Register(&httpLoader{scheme: "https"})
}

func (l *httpLoader) Spec() loader.Spec {
	return loader.Spec{Scheme: l.scheme, Label: "Remote " + l.scheme, Remote: true}
}

func (l *httpLoader) Open(ctx context.Context, req loader.Request) (io.ReadCloser, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("url is required")
	}

	httpMu.RLock()
	client, c, headers := httpClient, httpCache, httpHeader
	httpMu.RUnlock()

	if c != nil {
		if cached, ok := c.Get(req.Path); ok {
			log.Debug().Str("url", req.Path).Msg("http loader: cache hit")
			return io.NopCloser(bytes.NewReader(cached.([]byte))), nil
		}
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		hreq.Header.Set(k, v)
	}

	resp, err := client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	if c == nil {
		return resp.Body, nil
	}

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	c.Set(req.Path, data, cache.DefaultExpiration)
	return io.NopCloser(bytes.NewReader(data)), nil
}
