package http

import (
	"testing"

	"httpwire/application/util/uri"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBuildersDoNotAlias(t *testing.T) {
	base := NewRequest(MethodGet, "example.com", "/").WithHeader("X-A", "1")
	derived := base.WithHeader("X-A", "2").WithHeader("X-B", "3")

	assert.Equal(t, Headers{{"X-A", "1"}}, base.Headers)
	assert.Equal(t, Headers{{"X-A", "2"}, {"X-B", "3"}}, derived.Headers)

	body := []byte("abc")
	withBody := base.WithBody(body)
	body[0] = 'X'
	assert.Equal(t, []byte("abc"), withBody.Body)
	assert.Nil(t, base.Body)
}

func TestRequestWithJSONBody(t *testing.T) {
	req, err := NewRequest(MethodPost, "example.com", "/items").
		WithJSONBody(map[string]int{"count": 3})
	require.NoError(t, err)

	ct, ok := req.Headers.Get("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "application/json", ct)
	assert.JSONEq(t, `{"count":3}`, string(req.Body))

	_, err = NewRequest(MethodPost, "example.com", "/").WithJSONBody(make(chan int))
	assert.Error(t, err)
}

func TestRequestWithQuery(t *testing.T) {
	req := NewRequest(MethodGet, "example.com", "/search").
		WithQuery(uri.QueryParam{Key: "q", Value: "a b"}, uri.QueryParam{Key: "page", Value: "2"})
	assert.Equal(t, "/search?q=a+b&page=2", req.Target)

	req = req.WithQuery(uri.QueryParam{Key: "lang", Value: "en"})
	assert.Equal(t, "/search?q=a+b&page=2&lang=en", req.Target)
}

func TestRequestURI(t *testing.T) {
	req := NewRequest(MethodGet, "example.com:8080", "/a/b?c=d")
	req.Scheme = "https"

	u, err := req.URI()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com:8080/a/b?c=d", u.String())

	req.Target = "/bad path"
	_, err = req.URI()
	assert.Error(t, err)
}
