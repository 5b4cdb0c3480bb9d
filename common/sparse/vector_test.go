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

package sparse

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	a := Vector[int64]{1: 1, 2: 2, 3: 3}
	b := Vector[int64]{2: 4, 3: 5, 4: 6}
	assert.Equal(t, 23.0, Dot(a, b))
	assert.Equal(t, 23.0, Dot(b, a))
	assert.Zero(t, Dot(a, Vector[int64]{}))
}

func TestNormAndMean(t *testing.T) {
	a := Vector[string]{"a": 3, "b": 4}
	assert.Equal(t, 5.0, Norm(a))
	assert.Equal(t, 3.5, Mean(a))
	assert.Equal(t, 7.0, Sum(a))
	assert.Zero(t, Mean(Vector[string]{}))
	assert.Zero(t, Norm(Vector[string]{}))
}

func TestCenter(t *testing.T) {
	a := Vector[int64]{1: 4, 2: 2}
	c := Center(a, Mean(a))
	assert.Equal(t, Vector[int64]{1: 1, 2: -1}, c)
	// the input is untouched
	assert.Equal(t, Vector[int64]{1: 4, 2: 2}, a)
}

func TestNormalize(t *testing.T) {
	a := Normalize(Vector[string]{"x": 3, "y": 4})
	assert.InDelta(t, 0.6, a["x"], 1e-12)
	assert.InDelta(t, 0.8, a["y"], 1e-12)
	assert.Equal(t, Vector[string]{"x": 0}, Normalize(Vector[string]{"x": 0}))
}

func TestCosineUnion(t *testing.T) {
	// keys present on one side only count as zero on the other side
	a := Vector[int64]{1: 1, 2: 1}
	b := Vector[int64]{1: 1, 3: 1}
	sim, ok := Cosine(a, b)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, sim, 1e-12)

	sim, ok = Cosine(a, a)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, sim, 1e-12)
}

func TestCosineZeroNorm(t *testing.T) {
	_, ok := Cosine(Vector[int64]{1: 0}, Vector[int64]{1: 1})
	assert.False(t, ok)
	_, ok = Cosine(Vector[int64]{}, Vector[int64]{1: 1})
	assert.False(t, ok)
}

func TestCosineSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	for n := 0; n < 100; n++ {
		a, b := make(Vector[int64]), make(Vector[int64])
		for i := 0; i < 20; i++ {
			if rng.Float64() < 0.5 {
				a[int64(i)] = rng.NormFloat64()
			}
			if rng.Float64() < 0.5 {
				b[int64(i)] = rng.NormFloat64()
			}
		}
		ab, okAB := Cosine(a, b)
		ba, okBA := Cosine(b, a)
		assert.Equal(t, okAB, okBA)
		assert.InDelta(t, ab, ba, 1e-12)
		if okAB {
			assert.LessOrEqual(t, math.Abs(ab), 1+1e-12)
		}
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []int64{1, 5, 9}, Keys(Vector[int64]{9: 1, 1: 1, 5: 1}))
}

func TestAddScaled(t *testing.T) {
	dst := Vector[string]{"a": 1}
	AddScaled(dst, Vector[string]{"a": 1, "b": 2}, 2)
	assert.Equal(t, Vector[string]{"a": 3, "b": 4}, dst)
}
