// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package engine

import (
	"github.com/Fantom-foundation/evmcore/go/evm"
	lru "github.com/hashicorp/golang-lru/v2"
)

// sha3HashCache is an LRU governed fixed-capacity cache for SHA3 hashes.
// The cache maintains hashes for hashed input data of size 32 and 64,
// which are the vast majority of values hashed when running EVM
// instructions. Inputs of other sizes are hashed on demand without caching.
// The cache is thread-safe.
type sha3HashCache struct {
	cache32 *hashCache[[32]byte]
	cache64 *hashCache[[64]byte]
}

func newSha3HashCache(capacity32 int, capacity64 int) *sha3HashCache {
	return &sha3HashCache{
		cache32: newHashCache(capacity32, Keccak256For32byte),
		cache64: newHashCache(capacity64, func(key [64]byte) evm.Hash {
			return Keccak256(key[:])
		}),
	}
}

// hash fetches a cached hash or computes the hash for the provided data.
func (h *sha3HashCache) hash(data []byte) evm.Hash {
	switch len(data) {
	case 32:
		return h.cache32.getHash([32]byte(data))
	case 64:
		return h.cache64.getHash([64]byte(data))
	}
	return Keccak256(data)
}

// hashCache is a cache for hashes of values of type K.
type hashCache[K comparable] struct {
	hash    func(K) evm.Hash
	entries *lru.Cache[K, evm.Hash]
}

// newHashCache creates a hashCache with the given capacity of entries. The
// capacity is at least 1.
func newHashCache[K comparable](capacity int, hash func(K) evm.Hash) *hashCache[K] {
	if capacity < 1 {
		capacity = 1
	}
	// lru.New only fails for non-positive sizes.
	entries, _ := lru.New[K, evm.Hash](capacity)
	return &hashCache[K]{hash: hash, entries: entries}
}

func (h *hashCache[K]) getHash(key K) evm.Hash {
	if res, found := h.entries.Get(key); found {
		return res
	}
	res := h.hash(key)
	h.entries.Add(key, res)
	return res
}
