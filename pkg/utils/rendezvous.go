// This file wraps rendezvous (highest random weight) hashing for picking
// which L3 persistent-store shard a given cache key belongs to. Unlike the
// consistent-hash ring in hash.go, rendezvous hashing needs no precomputed
// ring and remaps only 1/N of keys when a shard is added or removed, which
// suits the fetcher's fixed-but-reconfigurable shard count.
package utils

import "github.com/dgryski/go-rendezvous"

// ShardPicker selects one of a fixed set of named shards for a given key
// using rendezvous hashing.
type ShardPicker struct {
	r      *rendezvous.Rendezvous
	shards []string
}

// NewShardPicker builds a picker over the given shard names. Shard order is
// irrelevant to the hashing outcome.
func NewShardPicker(shards []string) *ShardPicker {
	cp := make([]string, len(shards))
	copy(cp, shards)
	return &ShardPicker{
		r:      rendezvous.New(cp, fnv64a),
		shards: cp,
	}
}

// Pick returns the shard name responsible for key.
func (p *ShardPicker) Pick(key string) string {
	if len(p.shards) == 0 {
		return ""
	}
	return p.r.Get(key)
}

// Shards returns the configured shard names.
func (p *ShardPicker) Shards() []string {
	out := make([]string, len(p.shards))
	copy(out, p.shards)
	return out
}
