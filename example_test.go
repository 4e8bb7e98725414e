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

package robinhood_test

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/robinhood"
)

func Example() {
	m := robinhood.New[string, int]()
	m.Insert("a", 1)
	// Insert never overwrites an existing entry.
	m.Insert("a", 2)
	fmt.Println(m.Len(), m.Contains("a"))

	v, _ := m.At("a")
	fmt.Println(v)

	_, err := m.At("b")
	fmt.Println(errors.Is(err, robinhood.ErrKeyNotFound))

	// Ref inserts the zero value on a miss.
	*m.Ref("b") += 5
	v, _ = m.At("b")
	fmt.Println(v)

	m.Delete("a")
	fmt.Println(m.Len(), m.Contains("a"))
	// Output:
	// 1 true
	// 1
	// true
	// 5
	// 1 false
}

func ExampleMap_Begin() {
	m := robinhood.FromPairs([]robinhood.Pair[int, string]{
		{Key: 3, Value: "c"}, {Key: 1, Value: "a"}, {Key: 2, Value: "b"},
	}, robinhood.WithHash[int, string](robinhood.IntegerHash[int]))

	// With the identity hash and few keys, slot order is key order.
	for it := m.Begin(); it != m.End(); it.Next() {
		fmt.Println(it.Key(), it.Value())
	}
	// Output:
	// 1 a
	// 2 b
	// 3 c
}
