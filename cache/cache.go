package cache

import (
	"context"
	"time"
)

// View identifies one of the cacheable story listings. Keys are typed per
// view kind; nothing else ever lands in the shared cache, so there is no
// ad-hoc string key construction anywhere outside this package.
type View int

const (
	ViewDefault View = iota // page-1 default list, newest first
	ViewMain                // curated main slots 1..5
	ViewTrending            // curated trending slots 1..6
)

func (v View) Key() string {
	switch v {
	case ViewMain:
		return "story:list:main"
	case ViewTrending:
		return "story:list:trending"
	default:
		return "story:list:default"
	}
}

// TTL is the only consistency mechanism: listings are never invalidated on
// writes, staleness up to the window is accepted.
func (v View) TTL() time.Duration {
	if v == ViewDefault {
		return 60 * time.Second
	}
	return 600 * time.Second
}

// Store is the cache port injected into the listing layer. Implementations
// must tolerate concurrent readers racing to populate the same key; the
// values are idempotent so last-writer-wins is fine.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}
