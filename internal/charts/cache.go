package charts

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

const chartCacheTTL = 60 * time.Second

// imageCache memoises rendered PNGs by chart kind and data fingerprint.
type imageCache struct {
	c *cache.Cache
}

func newImageCache() *imageCache {
	return &imageCache{c: cache.New(chartCacheTTL, 2*chartCacheTTL)}
}

func (ic *imageCache) get(key string) ([]byte, bool) {
	v, ok := ic.c.Get(key)
	if !ok {
		return nil, false
	}
	src := v.([]byte)
	img := make([]byte, len(src))
	copy(img, src)
	return img, true
}

func (ic *imageCache) set(key string, img []byte) {
	ic.c.SetDefault(key, img)
}

// cacheKey fingerprints the parts that determine a rendered image.
func cacheKey(kind string, parts ...any) string {
	h := sha1.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%v|", p)
	}
	return kind + "-" + hex.EncodeToString(h.Sum(nil))
}
