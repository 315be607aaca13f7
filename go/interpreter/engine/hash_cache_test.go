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
	"fmt"
	"sync"
	"testing"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"pgregory.net/rand"
)

func TestSha3HashCache_hash_ProducesCorrectHashesForInputs(t *testing.T) {
	inputs := [][]byte{
		{},
		{0},
		{1, 2, 3, 4, 5},
		make([]byte, 32),
		make([]byte, 64),
		make([]byte, 123),
	}

	r := rand.New(42)
	for i := 0; i < 100; i++ {
		input := make([]byte, r.Intn(150))
		r.Read(input)
		inputs = append(inputs, input)
	}

	cache := newSha3HashCache(10, 10)
	for _, input := range inputs {
		want := Keccak256(input)
		got := cache.hash(input)
		if want != got {
			t.Errorf("expected hash to be %x, but got %x", want, got)
		}
	}
}

func TestSha3HashCache_hash_CachesWordAndDoubleWordInputs(t *testing.T) {
	cache := newSha3HashCache(10, 10)

	cache.hash(make([]byte, 32))
	cache.hash(make([]byte, 64))
	cache.hash(make([]byte, 48))

	if want, got := 1, cache.cache32.entries.Len(); want != got {
		t.Errorf("unexpected number of cached 32-byte entries, wanted %d, got %d", want, got)
	}
	if want, got := 1, cache.cache64.entries.Len(); want != got {
		t.Errorf("unexpected number of cached 64-byte entries, wanted %d, got %d", want, got)
	}
}

func TestHashCache_UsesProvidedHashingFunction(t *testing.T) {
	hash := func(i int) evm.Hash {
		return evm.Hash{byte(i)}
	}

	cache := newHashCache(10, hash)
	for i := 0; i < 100; i++ {
		want := hash(i)
		got := cache.getHash(i)
		if want != got {
			t.Errorf("expected hash to be %x, but got %x", want, got)
		}
	}
}

func TestHashCache_HashesAreCached(t *testing.T) {
	// To test whether results are cached, we use a hash function that
	// returns different results at each call.
	counter := 0
	hash := func(int) evm.Hash {
		counter++
		return evm.Hash{byte(counter)}
	}

	cache := newHashCache(10, hash)

	hash1 := cache.getHash(1)
	hash2 := cache.getHash(2)

	if hash1 == hash2 {
		t.Fatalf("expected different hashes for different inputs")
	}

	if want, got := hash1, cache.getHash(1); want != got {
		t.Errorf("expected hash to be %v, but got %v", want, got)
	}
	if want, got := hash2, cache.getHash(2); want != got {
		t.Errorf("expected hash to be %v, but got %v", want, got)
	}
}

func TestHashCache_CapacityIsIncreasedToAtLeast1(t *testing.T) {
	for _, capacity := range []int{-1000, -1, 0} {
		cache := newHashCache(capacity, func(int) evm.Hash {
			return evm.Hash{}
		})
		cache.getHash(1)
		cache.getHash(2)
		if want, got := 1, cache.entries.Len(); want != got {
			t.Errorf("expected cache to have %d entries, but got %d", want, got)
		}
	}
}

func TestHashCache_RespectsCapacity(t *testing.T) {
	hash := func(int) evm.Hash {
		return evm.Hash{}
	}
	for _, capacity := range []int{2, 10, 42, 123} {
		t.Run(fmt.Sprintf("capacity=%d", capacity), func(t *testing.T) {
			cache := newHashCache(capacity, hash)
			for i := 0; i < 2*capacity; i++ {
				cache.getHash(i)
				if want, got := min(i+1, capacity), cache.entries.Len(); want != got {
					t.Errorf("expected cache to have %d entries, but got %d", want, got)
				}
			}
		})
	}
}

func TestHashCache_EvictsLeastRecentlyUsedEntry(t *testing.T) {
	counter := 0
	cache := newHashCache(2, func(int) evm.Hash {
		counter++
		return evm.Hash{}
	})

	cache.getHash(1)
	cache.getHash(2)
	cache.getHash(1) // < 2 is now the least recently used entry
	cache.getHash(3) // < evicts 2

	if want, got := 3, counter; want != got {
		t.Fatalf("unexpected number of hash computations, wanted %d, got %d", want, got)
	}
	cache.getHash(1)
	if want, got := 3, counter; want != got {
		t.Errorf("recently used entry was evicted")
	}
	cache.getHash(2)
	if want, got := 4, counter; want != got {
		t.Errorf("least recently used entry was not evicted")
	}
}

func TestHashCache_AccessesAreThreadSafe(t *testing.T) {
	cache := newSha3HashCache(4, 4)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				input := make([]byte, 32+32*(j%2))
				input[0] = byte(i + j)
				if want, got := Keccak256(input), cache.hash(input); want != got {
					t.Errorf("unexpected hash, wanted %v, got %v", want, got)
				}
			}
		}(i)
	}
	wg.Wait()
}
