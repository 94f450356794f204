// Package dedup drops messages whose id was already seen within a window.
package dedup

import (
	"time"

	"github.com/patrickmn/go-cache"
)

type Deduper struct {
	seen *cache.Cache
}

// New returns a Deduper remembering ids for ttl (10 minutes when ttl <= 0).
func New(ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Deduper{seen: cache.New(ttl, 2*ttl)}
}

// ShouldProcess reports whether id is new and marks it seen. Empty ids are
// never deduplicated.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	return d.seen.Add(id, struct{}{}, cache.DefaultExpiration) == nil
}

// Len is the number of ids currently remembered, expired ones included until
// the next cleanup.
func (d *Deduper) Len() int {
	return d.seen.ItemCount()
}
