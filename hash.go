// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package robinhood

import (
	"hash/maphash"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

// HashFunc computes the hash of a key. The seed is the seed of the Map the
// key is being hashed for.
type HashFunc[K any] func(key *K, seed uintptr) uintptr

// defaultHash returns a hash function backed by hash/maphash.Comparable with
// a freshly generated seed.
func defaultHash[K comparable]() HashFunc[K] {
	seed := maphash.MakeSeed()
	return func(key *K, _ uintptr) uintptr {
		return uintptr(maphash.Comparable(seed, *key))
	}
}

// StringHash hashes a string key with xxhash, mixed with the seed.
func StringHash(key *string, seed uintptr) uintptr {
	return uintptr(xxhash.Sum64String(*key) ^ mixSeed(seed))
}

// IntegerHash returns the key itself, ignoring the seed. Integer keys that
// differ only in their high bits collide, so it is best suited to dense or
// already well distributed keys.
func IntegerHash[K constraints.Integer](key *K, _ uintptr) uintptr {
	return uintptr(*key)
}

// MixedIntegerHash scrambles an integer key with the seed using a
// multiplicative (Fibonacci) hash, folding the high bits down since the map
// indexes with the low bits.
func MixedIntegerHash[K constraints.Integer](key *K, seed uintptr) uintptr {
	h := (uint64(*key) ^ uint64(seed)) * 0x9e3779b97f4a7c15
	return uintptr(h ^ (h >> 29))
}

func mixSeed(seed uintptr) uint64 {
	return uint64(seed) * 0xbf58476d1ce4e5b9
}

// hashKey hashes key with the map's hash function and seed.
func (m *Map[K, V]) hashKey(key *K) uintptr {
	return m.hash((*K)(noescape(unsafe.Pointer(key))), m.seed)
}

// noescape hides a pointer from escape analysis.  noescape is
// the identity function but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
