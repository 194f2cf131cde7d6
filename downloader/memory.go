package downloader

import (
	"context"
	"sync"
	"time"
)

// Caches downloaded files in memory. Expired entries are revalidated
// with conditional requests when the server handed out an ETag or
// Last-Modified; a 304 renews the entry without re-transferring the
// body. With CacheTTL zero every Get revalidates, which is what a
// tight realtime polling loop wants.
type MemoryDownloader struct {
	mutex sync.Mutex
	cache map[string]memoryCacheEntry

	TimeNow func() time.Time
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		cache:   make(map[string]memoryCacheEntry),
		TimeNow: time.Now,
	}
}

type memoryCacheEntry struct {
	data         []byte
	etag         string
	lastModified string
	expiration   time.Time
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if !options.Cache {
		return HTTPGet(ctx, url, headers, options)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	entry, cached := d.cache[url]
	if cached && entry.expiration.After(d.TimeNow()) {
		return entry.data, nil
	}

	cond := conditional{}
	if cached {
		cond.etag = entry.etag
		cond.lastModified = entry.lastModified
	}

	res, err := httpGet(ctx, url, headers, cond, options)
	if err != nil {
		return nil, err
	}

	if res.notModified && cached {
		entry.expiration = d.TimeNow().Add(options.CacheTTL)
		d.cache[url] = entry
		return entry.data, nil
	}

	d.cache[url] = memoryCacheEntry{
		data:         res.body,
		etag:         res.etag,
		lastModified: res.lastModified,
		expiration:   d.TimeNow().Add(options.CacheTTL),
	}
	return res.body, nil
}
