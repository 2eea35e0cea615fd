package core

import "strings"

// CacheKey addresses a resource in the caches and identifies its task.
// Encoded equals Base when the resource has no processors.
type CacheKey struct {
	Base    string
	Encoded string
}

// Primary is the key used for coalescing and for the memory cache.
func (k CacheKey) Primary() string { return k.Encoded }

// Processed reports whether the key carries a processor suffix.
func (k CacheKey) Processed() bool { return k.Encoded != k.Base }

func (k CacheKey) String() string { return k.Encoded }

// DeriveKey computes the cache key of res: the resource identity, followed by
// the processor ids in declared order.
func DeriveKey(res Resource) CacheKey {
	base := res.URL
	if len(res.Processors) == 0 {
		return CacheKey{Base: base, Encoded: base}
	}
	var b strings.Builder
	b.WriteString(base)
	for _, p := range res.Processors {
		b.WriteString(p.ID())
	}
	return CacheKey{Base: base, Encoded: b.String()}
}
