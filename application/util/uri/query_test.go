package uri

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeQuery(t *testing.T) {
	testcases := []struct {
		desc     string
		input    []QueryParam
		expected string
	}{
		{
			desc:     "empty",
			expected: "",
		},
		{
			desc:     "order is kept",
			input:    []QueryParam{{"b", "2"}, {"a", "1"}},
			expected: "b=2&a=1",
		},
		{
			desc:     "space and reserved characters",
			input:    []QueryParam{{"q", "hello world"}, {"x&y", "a=b/c?"}},
			expected: "q=hello+world&x%26y=a%3Db%2Fc%3F",
		},
		{
			desc:     "non-ascii is percent encoded per byte",
			input:    []QueryParam{{"name", "é"}},
			expected: "name=%C3%A9",
		},
		{
			desc:     "repeated keys",
			input:    []QueryParam{{"k", "1"}, {"k", "2"}},
			expected: "k=1&k=2",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, EncodeQuery(tc.input))
		})
	}
}

func TestEncodeQueryStruct(t *testing.T) {
	type search struct {
		Query string `form:"q"`
		Page  int    `form:"page"`
	}

	q, err := EncodeQueryStruct(search{Query: "go lang", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, "page=2&q=go+lang", q)
}

func TestAppendQuery(t *testing.T) {
	assert.Equal(t, "/a", AppendQuery("/a", ""))
	assert.Equal(t, "/a?x=1", AppendQuery("/a", "x=1"))
	assert.Equal(t, "/a?x=1&y=2", AppendQuery("/a?x=1", "y=2"))
}
