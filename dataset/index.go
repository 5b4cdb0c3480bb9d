// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

// Index maps sparse ids to dense zero-based indices and counts how often each id was
// added. Indices are assigned in order of first appearance.
type Index struct {
	index map[int64]int
	ids   []int64
	count []int
}

func NewIndex() *Index {
	return &Index{index: make(map[int64]int)}
}

// NewIndexFromIds builds an index without counts.
func NewIndexFromIds(ids []int64) *Index {
	idx := NewIndex()
	for _, id := range ids {
		idx.NotCount(id)
	}
	return idx
}

func (idx *Index) Len() int {
	return len(idx.ids)
}

// Add an id and increase its count. Returns the index of the id.
func (idx *Index) Add(id int64) int {
	i := idx.NotCount(id)
	idx.count[i]++
	return i
}

// NotCount adds an id without increasing its count.
func (idx *Index) NotCount(id int64) int {
	if i, ok := idx.index[id]; ok {
		return i
	}
	i := len(idx.ids)
	idx.index[id] = i
	idx.ids = append(idx.ids, id)
	idx.count = append(idx.count, 0)
	return i
}

// ToIndex returns the index of an id. ok is false for unknown ids.
func (idx *Index) ToIndex(id int64) (i int, ok bool) {
	i, ok = idx.index[id]
	return
}

func (idx *Index) ToId(i int) int64 {
	return idx.ids[i]
}

// Ids returns ids in index order.
func (idx *Index) Ids() []int64 {
	return idx.ids
}

// Count returns how many times an id was added, zero for unknown ids.
func (idx *Index) Count(id int64) int {
	if i, ok := idx.index[id]; ok {
		return idx.count[i]
	}
	return 0
}
