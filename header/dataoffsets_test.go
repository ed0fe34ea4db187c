// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataOffsets_JSON(t *testing.T) {
	var d DataOffsets
	require.NoError(t, d.UnmarshalJSON([]byte("[6, 10]")))
	assert.Equal(t, DataOffsets{Begin: 6, End: 10}, d)
	assert.Equal(t, 4, d.Size())

	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "[6,10]", string(b))

	for _, v := range []string{"null", "[]", "[6]", "[0,6,10]", `["0",6]`, "["} {
		var d DataOffsets
		assert.Error(t, d.UnmarshalJSON([]byte(v)), v)
	}
}

func TestDataOffsets_Less(t *testing.T) {
	testCases := []struct {
		a, b DataOffsets
		want bool
	}{
		{DataOffsets{0, 4}, DataOffsets{4, 8}, true},
		{DataOffsets{4, 8}, DataOffsets{0, 4}, false},
		{DataOffsets{4, 4}, DataOffsets{4, 8}, true},
		{DataOffsets{4, 8}, DataOffsets{4, 8}, false},
		{DataOffsets{4, 9}, DataOffsets{4, 8}, false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, tc.a.Less(tc.b), "%v < %v", tc.a, tc.b)
	}
}
