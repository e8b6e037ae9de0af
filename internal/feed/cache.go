package feed

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ksred/holdings-ingest/internal/metrics"
)

const (
	defaultCacheSize = 64
	defaultCacheTTL  = 30 * time.Second
)

type cachedPage struct {
	body      []byte
	expiresAt time.Time
}

// pageCache holds recently fetched listing pages keyed by URL.
type pageCache struct {
	mu    sync.Mutex
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

func newPageCache(size int, ttl time.Duration) (*pageCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &pageCache{cache: cache, ttl: ttl, now: time.Now}, nil
}

func (p *pageCache) Get(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.cache.Get(key)
	if !ok {
		metrics.RecordFeedCache("miss")
		return nil, false
	}
	page := v.(cachedPage)
	if p.now().After(page.expiresAt) {
		p.cache.Remove(key)
		metrics.RecordFeedCache("expired")
		return nil, false
	}
	metrics.RecordFeedCache("hit")
	return page.body, true
}

func (p *pageCache) Add(key string, body []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Add(key, cachedPage{body: body, expiresAt: p.now().Add(p.ttl)})
}

func (p *pageCache) Purge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
}

func (p *pageCache) Len() int {
	return p.cache.Len()
}
