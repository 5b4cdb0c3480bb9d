// Copyright 2026 gorse Project Authors
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

// Package sparse implements algebra over sparse vectors keyed by user ids, item ids
// or tags. A missing key is an implicit zero.
package sparse

import (
	"cmp"
	"math"
	"slices"

	"github.com/samber/lo"
)

// Vector maps keys to values. Absent keys are zero.
type Vector[K comparable] map[K]float64

// Clone returns a copy of the vector.
func (v Vector[K]) Clone() Vector[K] {
	c := make(Vector[K], len(v))
	for k, x := range v {
		c[k] = x
	}
	return c
}

// Dot computes the dot product. Keys present on one side only contribute zero, so
// iterating the smaller vector is enough.
func Dot[K comparable](a, b Vector[K]) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var sum float64
	for k, x := range a {
		if y, ok := b[k]; ok {
			sum += x * y
		}
	}
	return sum
}

// Norm computes the Euclidean norm.
func Norm[K comparable](a Vector[K]) float64 {
	var sum float64
	for _, x := range a {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Sum adds up all values.
func Sum[K comparable](a Vector[K]) float64 {
	var sum float64
	for _, x := range a {
		sum += x
	}
	return sum
}

// Mean returns the mean of the stored values, or zero for an empty vector.
func Mean[K comparable](a Vector[K]) float64 {
	if len(a) == 0 {
		return 0
	}
	return Sum(a) / float64(len(a))
}

// Center returns a new vector with mean subtracted from every stored value.
func Center[K comparable](a Vector[K], mean float64) Vector[K] {
	c := make(Vector[K], len(a))
	for k, x := range a {
		c[k] = x - mean
	}
	return c
}

// Normalize returns a new vector scaled to unit length. A zero vector stays zero.
func Normalize[K comparable](a Vector[K]) Vector[K] {
	norm := Norm(a)
	if norm == 0 {
		return a.Clone()
	}
	c := make(Vector[K], len(a))
	for k, x := range a {
		c[k] = x / norm
	}
	return c
}

// AddScaled adds scale*b into dst.
func AddScaled[K comparable](dst, b Vector[K], scale float64) {
	for k, x := range b {
		dst[k] += scale * x
	}
}

// Cosine computes the cosine similarity over the union of keys. ok is false when
// either norm is zero, in which case the similarity is undefined.
func Cosine[K comparable](a, b Vector[K]) (sim float64, ok bool) {
	return CosineWithNorms(a, b, Norm(a), Norm(b))
}

// CosineWithNorms computes the cosine similarity with precomputed norms.
func CosineWithNorms[K comparable](a, b Vector[K], normA, normB float64) (sim float64, ok bool) {
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return Dot(a, b) / (normA * normB), true
}

// Keys returns the keys in ascending order.
func Keys[K cmp.Ordered](a Vector[K]) []K {
	keys := lo.Keys(a)
	slices.Sort(keys)
	return keys
}
