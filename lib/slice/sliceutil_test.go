package sliceutil

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	testcases := []struct {
		desc     string
		input    []int
		expected []string
	}{
		{desc: "empty", input: []int{}, expected: []string{}},
		{desc: "in order", input: []int{3, 1, 2}, expected: []string{"3", "1", "2"}},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, Map(tc.input, strconv.Itoa))
		})
	}
}
