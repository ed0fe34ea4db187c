// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var _ json.Marshaler = Shape{}

func TestShape_MarshalJSON(t *testing.T) {
	testCases := []struct {
		shape Shape
		json  string
	}{
		{nil, "[]"},
		{Shape{}, "[]"},
		{Shape{42}, "[42]"},
	}
	for _, tc := range testCases {
		b, err := tc.shape.MarshalJSON()
		assert.NoError(t, err, tc)
		assert.Equal(t, tc.json, string(b), tc)
	}
}

func TestShape_NumElements(t *testing.T) {
	testCases := []struct {
		shape Shape
		want  int
	}{
		{nil, 1},
		{Shape{0}, 0},
		{Shape{7}, 7},
		{Shape{2, 3, 4}, 24},
	}
	for _, tc := range testCases {
		n, err := tc.shape.NumElements()
		assert.NoError(t, err, tc)
		assert.Equal(t, tc.want, n, tc)
	}

	_, err := Shape{math.MaxInt, 2}.NumElements()
	assert.EqualError(t, err, "int overflow computing tensor elements size from shape")
}

func TestShape_Clone(t *testing.T) {
	assert.Nil(t, Shape{}.Clone())
	s := Shape{1, 2}
	c := s.Clone()
	c[0] = 9
	assert.Equal(t, Shape{1, 2}, s)
}
