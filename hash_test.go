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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntegerHash(t *testing.T) {
	for _, k := range []int{0, 1, 7, 1 << 20} {
		require.EqualValues(t, k, IntegerHash(&k, 12345))
	}
	u := uint8(200)
	require.EqualValues(t, 200, IntegerHash(&u, 0))
}

func TestMixedIntegerHash(t *testing.T) {
	k := int64(42)
	require.Equal(t, MixedIntegerHash(&k, 1), MixedIntegerHash(&k, 1))
	require.NotEqual(t, MixedIntegerHash(&k, 1), MixedIntegerHash(&k, 2))

	// Consecutive keys should spread over the low bits used for indexing.
	homes := make(map[uintptr]struct{})
	for i := int64(0); i < 64; i++ {
		homes[MixedIntegerHash(&i, 0)&63] = struct{}{}
	}
	require.Greater(t, len(homes), 16)
}

func TestStringHash(t *testing.T) {
	k := "hello"
	require.Equal(t, StringHash(&k, 1), StringHash(&k, 1))
	require.NotEqual(t, StringHash(&k, 1), StringHash(&k, 2))
	other := "world"
	require.NotEqual(t, StringHash(&k, 1), StringHash(&other, 1))
}

func TestHasher(t *testing.T) {
	m := New[int, int](WithHash[int, int](IntegerHash[int]))
	h := m.Hasher()
	k := 99
	require.EqualValues(t, 99, h(&k, 0))

	d := New[string, int]()
	s := "key"
	require.Equal(t, d.Hasher()(&s, 0), d.Hasher()(&s, 0))
	// The default hash ignores the seed argument.
	require.Equal(t, d.Hasher()(&s, 0), d.Hasher()(&s, 1))
}

func TestCustomHashers(t *testing.T) {
	testCases := []struct {
		name string
		m    *Map[string, int]
	}{
		{"default", New[string, int]()},
		{"xxhash", New[string, int](WithHash[string, int](StringHash))},
		{"xxhash-seeded", New[string, int](
			WithHash[string, int](StringHash), WithSeed[string, int](0xdeadbeef))},
	}
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			for i := 0; i < 1000; i++ {
				c.m.Insert(fmt.Sprint(i), i)
			}
			require.EqualValues(t, 1000, c.m.Len())
			for i := 0; i < 1000; i++ {
				v, err := c.m.At(fmt.Sprint(i))
				require.NoError(t, err)
				require.Equal(t, i, v)
			}
			require.NoError(t, c.m.validate())
		})
	}
}
