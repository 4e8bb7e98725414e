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

// package robinhood is a Go implementation of an open-addressing hash map
// using Robin Hood displacement and tombstone deletion. See also:
// https://codecapsule.com/2013/11/11/robin-hood-hashing/.
//
// # Robin Hood hashing
//
// All entries live directly in a single flat array of slots. A key's home
// slot is hash(key) mod capacity, and collisions are resolved by linear
// probing. Every entry records its probe sequence length (PSL): the number
// of slots between its home slot and the slot it occupies. During insertion,
// when the entry being carried has travelled farther from home than the
// occupant of the slot under inspection, the two trade places and probing
// continues with the evicted occupant. Among two entries contending for a
// slot, the one that is already more displaced keeps it, which keeps the
// variance of probe lengths low.
//
// # Deletion
//
// Deletion leaves a tombstone (ctrlDeleted) in the slot. Insertion treats a
// tombstone as free space, but a lookup must not stop there: the erased
// entry may have pushed other keys further down the chain when it was
// inserted. Only a never-used slot (ctrlEmpty) terminates a lookup.
// Tombstones are dropped when the map grows, which bounds how long they can
// degrade lookups.
//
// # Sizing
//
// A map starts with a capacity of 1 and doubles whenever an insertion pushes
// the load factor above 0.6. Growth allocates a fresh slot array and
// reinserts every live entry through the normal insertion path. Capacity is
// always a power of two so hash(key) mod capacity is a mask operation.
package robinhood

import (
	"fmt"
	"iter"
	"math/bits"
	"math/rand/v2"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

const (
	debug = false

	initialCapacity = 1

	// The maximum load factor is maxLoadNum/maxLoadDen (0.6). Expressed as a
	// ratio so the growth check stays in integer arithmetic.
	maxLoadNum = 3
	maxLoadDen = 5
)

// Each slot in the map is tagged with one of three states. The zero value is
// ctrlEmpty so a freshly allocated slot array is entirely empty.
//
//	  empty: never held an entry since the last growth or Clear
//	deleted: held an entry that has since been erased (a tombstone)
//	   full: holds a live entry
type ctrl uint8

const (
	ctrlEmpty ctrl = iota
	ctrlDeleted
	ctrlFull
)

func (c ctrl) String() string {
	switch c {
	case ctrlEmpty:
		return "empty"
	case ctrlDeleted:
		return "deleted"
	case ctrlFull:
		return "full"
	default:
		return fmt.Sprintf("ctrl(%d)", uint8(c))
	}
}

// Slot holds a key, a value, the entry's probe sequence length and the
// slot's state.
type Slot[K comparable, V any] struct {
	key   K
	value V
	// psl is the distance in slots from the key's home slot. It is set when
	// the entry is placed and is only meaningful while ctrl == ctrlFull.
	psl  uint32
	ctrl ctrl
}

// Pair is a key and value used to construct a Map from a sequence.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// Map is an unordered map from keys to values with Insert, Find, Delete and
// All operations, implemented with Robin Hood hashing over a single open
// addressed slot array. By default a Map[K,V] hashes keys with
// hash/maphash.Comparable using a per-map seed, though a different hash
// function can be specified using the WithHash option.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	// The hash function applied to keys of type K.
	hash HashFunc[K]
	seed uintptr
	// logger, if non-nil, receives growth and clear events.
	logger *logrus.Logger
	// slots is capacity in length.
	slots []Slot[K, V]
	// The total number of slots (always 2^N). The capacity is used as a mask
	// to quickly compute i%N using a bitwise & operation.
	capacity uintptr
	// The number of full slots (i.e. the number of elements in the map).
	used int
}

// New constructs a new, empty Map with a capacity of 1. The zero value for
// a Map is not usable until Init is called.
func New[K comparable, V any](options ...option[K, V]) *Map[K, V] {
	m := &Map[K, V]{}
	m.Init(options...)
	return m
}

// FromPairs constructs a new Map and inserts each pair in order. A pair
// whose key was already inserted by an earlier pair is ignored.
func FromPairs[K comparable, V any](pairs []Pair[K, V], options ...option[K, V]) *Map[K, V] {
	m := New[K, V](options...)
	for _, p := range pairs {
		m.Insert(p.Key, p.Value)
	}
	return m
}

// Collect constructs a new Map from the key/value pairs produced by seq,
// inserting them in order. As with FromPairs, only the first occurrence of a
// key is kept.
func Collect[K comparable, V any](seq iter.Seq2[K, V], options ...option[K, V]) *Map[K, V] {
	m := New[K, V](options...)
	for k, v := range seq {
		m.Insert(k, v)
	}
	return m
}

// Init initializes a Map, discarding any existing contents. Options are
// applied after the defaults are set.
func (m *Map[K, V]) Init(options ...option[K, V]) {
	*m = Map[K, V]{
		hash:     defaultHash[K](),
		seed:     uintptr(rand.Uint64()),
		slots:    make([]Slot[K, V], initialCapacity),
		capacity: initialCapacity,
	}

	for _, op := range options {
		op.apply(m)
	}

	m.checkInvariants()
}

// Insert adds the entry key/value to the map if key is not already present.
// If key is present the existing value is left untouched.
func (m *Map[K, V]) Insert(key K, value V) {
	if _, ok := m.locate(&key); ok {
		if debug {
			m.tracef("insert(%v): exists", key)
		}
		return
	}
	m.uncheckedInsert(key, value)
	m.checkInvariants()
}

// uncheckedInsert inserts an entry known not to be in the map, growing the
// map afterwards if the insertion pushed it over the maximum load factor.
func (m *Map[K, V]) uncheckedInsert(key K, value V) {
	m.place(Slot[K, V]{key: key, value: value})
	m.fit()
}

// place runs the Robin Hood placement loop for s, which must not already be
// present in the map.
func (m *Map[K, V]) place(s Slot[K, V]) {
	s.psl = 0
	s.ctrl = ctrlFull

	mask := m.capacity - 1
	i := m.hashKey(&s.key) & mask
	if debug {
		m.tracef("place(%v): home=%d capacity=%d", s.key, i, m.capacity)
	}

	for m.slots[i].ctrl == ctrlFull {
		if m.slots[i].psl < s.psl {
			// The carried entry is further from home than the occupant: it
			// steals the slot and the occupant continues probing.
			if debug {
				m.tracef("place(swapping): index=%d carried=%v/%d occupant=%v/%d",
					i, s.key, s.psl, m.slots[i].key, m.slots[i].psl)
			}
			m.slots[i], s = s, m.slots[i]
		}
		s.psl++
		i = (i + 1) & mask
	}

	if debug {
		m.tracef("place(inserting): index=%d key=%v psl=%d was=%s", i, s.key, s.psl, m.slots[i].ctrl)
	}
	m.slots[i] = s
	m.used++
}

// fit doubles the capacity if the load factor exceeds the maximum.
func (m *Map[K, V]) fit() {
	if uintptr(m.used)*maxLoadDen > m.capacity*maxLoadNum {
		m.resize(2 * m.capacity)
	}
}

// resize replaces the slot array with one of newCapacity slots and
// reinserts every live entry in the order they appear in the old array.
// Tombstones are not carried over.
func (m *Map[K, V]) resize(newCapacity uintptr) {
	oldSlots, oldCapacity, oldUsed := m.slots, m.capacity, m.used
	m.slots = make([]Slot[K, V], newCapacity)
	m.capacity = newCapacity
	m.used = 0

	var tombstones int
	for i := range oldSlots {
		switch s := &oldSlots[i]; s.ctrl {
		case ctrlFull:
			// Every placement is followed by a load check, as with any
			// insertion. The old slots are held locally so a nested resize
			// does not disturb this loop.
			m.place(*s)
			m.fit()
		case ctrlDeleted:
			tombstones++
		}
	}

	if m.logger != nil {
		m.logger.WithFields(logrus.Fields{
			"old_capacity": int(oldCapacity),
			"new_capacity": int(m.capacity),
			"used":         oldUsed,
			"tombstones":   tombstones,
		}).Debug("robinhood: grow")
	}
}

// locate returns the index of the slot holding key and true, or false if
// key is not present. Probing skips tombstones and stops at the first empty
// slot or after visiting every slot once.
func (m *Map[K, V]) locate(key *K) (uintptr, bool) {
	mask := m.capacity - 1
	i := m.hashKey(key) & mask
	for n := uintptr(0); n < m.capacity; n++ {
		s := &m.slots[i]
		switch s.ctrl {
		case ctrlEmpty:
			if debug {
				m.tracef("locate(%v): not-found index=%d probes=%d", *key, i, n+1)
			}
			return i, false
		case ctrlFull:
			if s.key == *key {
				return i, true
			}
		}
		i = (i + 1) & mask
	}
	return m.capacity, false
}

// Find returns an iterator positioned at key, or End() if key is not
// present.
func (m *Map[K, V]) Find(key K) Iterator[K, V] {
	if i, ok := m.locate(&key); ok {
		return Iterator[K, V]{m: m, index: i}
	}
	return m.End()
}

// Get retrieves the value from the map for the specified key, returning
// ok=false if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if i, ok := m.locate(&key); ok {
		return m.slots[i].value, true
	}
	return value, false
}

// At returns the value stored for key. If key is not present it returns an
// error satisfying errors.Is(err, ErrKeyNotFound) and does not modify the
// map.
func (m *Map[K, V]) At(key K) (V, error) {
	i, ok := m.locate(&key)
	if !ok {
		var zero V
		return zero, errors.Wrapf(ErrKeyNotFound, "key %v", key)
	}
	return m.slots[i].value, nil
}

// Ref returns a pointer to the value stored for key, first inserting the
// zero value of V if key is not present. It behaves like indexing a builtin
// map for assignment. The pointer is invalidated by any subsequent insertion
// that grows the map and by deleting key or clearing the map.
func (m *Map[K, V]) Ref(key K) *V {
	i, ok := m.locate(&key)
	if !ok {
		var zero V
		m.uncheckedInsert(key, zero)
		m.checkInvariants()
		// Placement may have displaced the new entry or grown the map.
		i, _ = m.locate(&key)
	}
	return &m.slots[i].value
}

// Contains returns true if key is present in the map.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.locate(&key)
	return ok
}

// Count returns the number of entries with the specified key: 1 if present
// and 0 otherwise.
func (m *Map[K, V]) Count(key K) int {
	if m.Contains(key) {
		return 1
	}
	return 0
}

// Delete deletes the entry corresponding to the specified key from the map,
// leaving a tombstone in its slot. It is a noop to delete a non-existent
// key.
func (m *Map[K, V]) Delete(key K) {
	i, ok := m.locate(&key)
	if !ok {
		return
	}
	// Zero the key and value so the map does not retain references, and
	// leave a tombstone so later lookups keep probing past this slot.
	m.slots[i] = Slot[K, V]{ctrl: ctrlDeleted}
	m.used--
	if debug {
		m.tracef("delete(%v): index=%d used=%d", key, i, m.used)
	}
	m.checkInvariants()
}

// Clear deletes all entries from the map. Every slot, tombstones included,
// is reset to empty. The capacity is unchanged.
func (m *Map[K, V]) Clear() {
	used := m.used
	clear(m.slots)
	m.used = 0
	if m.logger != nil {
		m.logger.WithFields(logrus.Fields{
			"capacity": int(m.capacity),
			"used":     used,
		}).Debug("robinhood: clear")
	}
	m.checkInvariants()
}

// Clone returns an independent copy of the map. The copy has the same
// capacity, slot layout (tombstones included), hash function and seed.
// Values are copied by assignment, so values holding pointers, slices or
// maps share what they refer to.
func (m *Map[K, V]) Clone() *Map[K, V] {
	c := *m
	c.slots = make([]Slot[K, V], len(m.slots))
	copy(c.slots, m.slots)
	return &c
}

// Move transfers the contents of m to a newly returned Map and resets m to
// an empty map of capacity 1 with the same hash function, seed and logger.
func (m *Map[K, V]) Move() *Map[K, V] {
	n := *m
	m.slots = make([]Slot[K, V], initialCapacity)
	m.capacity = initialCapacity
	m.used = 0
	return &n
}

// All calls yield sequentially for each key and value present in the map,
// in slot order. If yield returns false, iteration stops. The map can be
// mutated during iteration, though there is no guarantee that the mutations
// will be visible to the iteration.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	// Snapshot the slots so that iteration remains valid if the map is
	// resized during iteration.
	slots := m.slots
	for i := range slots {
		if s := &slots[i]; s.ctrl == ctrlFull {
			if !yield(s.key, s.value) {
				return
			}
		}
	}
}

// Keys returns an iterator over the keys in the map, in slot order.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.All(func(k K, _ V) bool {
			return yield(k)
		})
	}
}

// Values returns an iterator over the values in the map, in slot order.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		m.All(func(_ K, v V) bool {
			return yield(v)
		})
	}
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// Empty returns true if the map holds no entries.
func (m *Map[K, V]) Empty() bool {
	return m.used == 0
}

// Capacity returns the number of slots in the map.
func (m *Map[K, V]) Capacity() int {
	return int(m.capacity)
}

// LoadFactor returns the ratio of entries to slots.
func (m *Map[K, V]) LoadFactor() float64 {
	return float64(m.used) / float64(m.capacity)
}

// Hasher returns the hash function used by the map.
func (m *Map[K, V]) Hasher() HashFunc[K] {
	return m.hash
}

func (m *Map[K, V]) tracef(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Tracef(format, args...)
	}
}

// validate verifies the structural invariants of the map, returning an
// error describing the first violation found.
func (m *Map[K, V]) validate() error {
	if m.capacity == 0 || bits.OnesCount(uint(m.capacity)) != 1 {
		return errors.Newf("capacity %d is not a power of two", m.capacity)
	}
	if uintptr(len(m.slots)) != m.capacity {
		return errors.Newf("found %d slots, but capacity is %d", len(m.slots), m.capacity)
	}
	if uintptr(m.used)*maxLoadDen > m.capacity*maxLoadNum {
		return errors.Newf("load factor %d/%d exceeds %d/%d",
			m.used, m.capacity, maxLoadNum, maxLoadDen)
	}

	mask := m.capacity - 1
	var used int
	for i := uintptr(0); i < m.capacity; i++ {
		s := &m.slots[i]
		switch s.ctrl {
		case ctrlEmpty, ctrlDeleted:
		case ctrlFull:
			used++
			home := m.hashKey(&s.key) & mask
			if d := (i - home) & mask; uintptr(s.psl) != d {
				return errors.WithDetail(
					errors.Newf("slot(%d): %v has psl %d but is %d from home %d", i, s.key, s.psl, d, home),
					m.debugString())
			}
			for j := home; j != i; j = (j + 1) & mask {
				if m.slots[j].ctrl == ctrlEmpty {
					return errors.WithDetail(
						errors.Newf("slot(%d): %v unreachable, empty slot %d after home %d", i, s.key, j, home),
						m.debugString())
				}
			}
			if idx, ok := m.locate(&s.key); !ok || idx != i {
				return errors.WithDetail(
					errors.Newf("slot(%d): %v not found", i, s.key), m.debugString())
			}
		default:
			return errors.Newf("slot(%d): invalid %s", i, s.ctrl)
		}
	}
	if used != m.used {
		return errors.WithDetail(
			errors.Newf("found %d full slots, but used count is %d", used, m.used), m.debugString())
	}
	return nil
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		if err := m.validate(); err != nil {
			panic(fmt.Sprintf("invariant failed: %+v", err))
		}
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d\n", m.capacity, m.used)
	for i := uintptr(0); i < m.capacity; i++ {
		switch s := &m.slots[i]; s.ctrl {
		case ctrlFull:
			home := m.hashKey(&s.key) & (m.capacity - 1)
			fmt.Fprintf(&buf, "  %4d: %v [psl=%d home=%d]\n", i, s.key, s.psl, home)
		default:
			fmt.Fprintf(&buf, "  %4d: %s\n", i, s.ctrl)
		}
	}
	return buf.String()
}
