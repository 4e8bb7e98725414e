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

// Iterator is a position in a Map's slot array. Iterators are obtained from
// Begin, End and Find and advanced with Next. Two iterators are equal
// (using == or Equal) iff they refer to the same Map and the same slot.
//
// Iteration is in slot order, which depends on the hash function and is
// unrelated to insertion order. An iterator is invalidated by any insertion
// that grows the map, and by Delete or Clear removing the entry it refers
// to.
type Iterator[K comparable, V any] struct {
	m     *Map[K, V]
	index uintptr
}

// Begin returns an iterator positioned at the first entry in slot order, or
// End() if the map is empty.
func (m *Map[K, V]) Begin() Iterator[K, V] {
	it := Iterator[K, V]{m: m}
	it.skip()
	return it
}

// End returns the past-the-end iterator.
func (m *Map[K, V]) End() Iterator[K, V] {
	return Iterator[K, V]{m: m, index: m.capacity}
}

// skip advances the iterator to the next full slot at or after its current
// index, or to the end.
func (it *Iterator[K, V]) skip() {
	for it.index < it.m.capacity && it.m.slots[it.index].ctrl != ctrlFull {
		it.index++
	}
}

// Next advances the iterator to the next entry.
func (it *Iterator[K, V]) Next() {
	it.index++
	it.skip()
}

// Done returns true if the iterator is past the end.
func (it Iterator[K, V]) Done() bool {
	return it.index >= it.m.capacity
}

// Equal returns true if it and other refer to the same slot of the same map.
func (it Iterator[K, V]) Equal(other Iterator[K, V]) bool {
	return it == other
}

// Key returns the key of the current entry.
func (it Iterator[K, V]) Key() K {
	return it.m.slots[it.index].key
}

// Value returns a copy of the value of the current entry.
func (it Iterator[K, V]) Value() V {
	return it.m.slots[it.index].value
}

// ValuePtr returns a pointer to the value of the current entry, allowing it
// to be modified in place.
func (it Iterator[K, V]) ValuePtr() *V {
	return &it.m.slots[it.index].value
}
