package redirect

import (
	"context"
	"strings"
	"testing"

	"httpwire/application/http"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(t *testing.T, raw string) *http.Response {
	resp, _, err := http.ParseResponse([]byte(raw), http.DefaultParseOptions)
	require.NoError(t, err)
	return resp
}

func redirectTo(code, location string) string {
	return "HTTP/1.1 " + code + " Redirect\r\nLocation: " + location + "\r\n\r\n"
}

func TestNext(t *testing.T) {
	post := http.NewRequest(http.MethodPost, "example.com", "/a/form").
		WithHeader("Content-Type", "text/plain").
		WithHeader("X-Keep", "1").
		WithBody([]byte("data"))

	testcases := []struct {
		desc     string
		policy   Policy
		req      http.Request
		resp     string
		expected http.Request
		ok       bool
	}{
		{
			desc:   "relative location keeps method and body",
			policy: DefaultPolicy,
			req:    post,
			resp:   redirectTo("301", "next?x=1"),
			expected: http.Request{
				Method:  http.MethodPost,
				Target:  "/a/next?x=1",
				Host:    "example.com",
				Scheme:  "http",
				Headers: http.Headers{{Name: "Content-Type", Value: "text/plain"}, {Name: "X-Keep", Value: "1"}},
				Body:    []byte("data"),
			},
			ok: true,
		},
		{
			desc:   "absolute location changes authority",
			policy: DefaultPolicy,
			req:    http.NewRequest(http.MethodGet, "example.com", "/").WithHeader("Host", "example.com"),
			resp:   redirectTo("302", "https://other.example:8443/landing"),
			expected: http.Request{
				Method:  http.MethodGet,
				Target:  "/landing",
				Host:    "other.example:8443",
				Scheme:  "https",
				Headers: http.Headers{},
			},
			ok: true,
		},
		{
			desc:   "303 downgrades to GET",
			policy: DefaultPolicy,
			req:    post,
			resp:   redirectTo("303", "/done"),
			expected: http.Request{
				Method:  http.MethodGet,
				Target:  "/done",
				Host:    "example.com",
				Scheme:  "http",
				Headers: http.Headers{{Name: "X-Keep", Value: "1"}},
			},
			ok: true,
		},
		{
			desc:   "303 keeps method when asked to",
			policy: Policy{KeepMethodOnSeeOther: true},
			req:    post,
			resp:   redirectTo("303", "/done"),
			expected: http.Request{
				Method:  http.MethodPost,
				Target:  "/done",
				Host:    "example.com",
				Scheme:  "http",
				Headers: http.Headers{{Name: "Content-Type", Value: "text/plain"}, {Name: "X-Keep", Value: "1"}},
				Body:    []byte("data"),
			},
			ok: true,
		},
		{
			desc:   "305",
			policy: DefaultPolicy,
			req:    http.NewRequest(http.MethodGet, "example.com", "/"),
			resp:   redirectTo("305", "//proxy.example/"),
			expected: http.Request{
				Method: http.MethodGet,
				Target: "/",
				Host:   "proxy.example",
				Scheme: "http",
			},
			ok: true,
		},
		{
			desc:   "307 is not followed",
			policy: DefaultPolicy,
			req:    post,
			resp:   redirectTo("307", "/elsewhere"),
		},
		{
			desc:   "redirect without location",
			policy: DefaultPolicy,
			req:    post,
			resp:   "HTTP/1.1 302 Found\r\n\r\n",
		},
		{
			desc:   "success",
			policy: DefaultPolicy,
			req:    post,
			resp:   "HTTP/1.1 200 OK\r\nLocation: /ignored\r\n\r\n",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			next, ok, err := tc.policy.Next(tc.req, response(t, tc.resp))
			require.NoError(t, err)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.expected, next)
			}
		})
	}
}

func TestNextInvalidLocation(t *testing.T) {
	req := http.NewRequest(http.MethodGet, "example.com", "/")

	_, _, err := DefaultPolicy.Next(req, response(t, redirectTo("301", "/has space")))
	assert.Error(t, err)

	_, _, err = DefaultPolicy.Next(req, response(t, redirectTo("301", "mailto:someone@example.com")))
	assert.Error(t, err)
}

type fakeServer struct {
	responses map[string]string
	requests  []string
}

func (f *fakeServer) Exchange(ctx context.Context, req http.Request, raw []byte) ([]byte, error) {
	f.requests = append(f.requests, string(raw))
	resp, ok := f.responses[req.Host+req.Target]
	if !ok {
		return nil, errors.Errorf("no route for %s%s", req.Host, req.Target)
	}
	return []byte(resp), nil
}

func TestNextCredentials(t *testing.T) {
	req := http.NewRequest(http.MethodGet, "example.com", "/private").
		WithHeader("Authorization", "Bearer secret").
		WithHeader("Cookie", "session=1").
		WithHeader("Proxy-Authorization", "Basic abc").
		WithHeader("X-Keep", "1")

	testcases := []struct {
		desc     string
		location string
		expected http.Headers
	}{
		{
			desc:     "same origin keeps credentials",
			location: "http://EXAMPLE.com/other",
			expected: req.Headers,
		},
		{
			desc:     "other host drops credentials",
			location: "http://evil.example/other",
			expected: http.Headers{{Name: "X-Keep", Value: "1"}},
		},
		{
			desc:     "other port drops credentials",
			location: "//example.com:8080/other",
			expected: http.Headers{{Name: "X-Keep", Value: "1"}},
		},
		{
			desc:     "other scheme drops credentials",
			location: "https://example.com/other",
			expected: http.Headers{{Name: "X-Keep", Value: "1"}},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			next, ok, err := DefaultPolicy.Next(req, response(t, redirectTo("302", tc.location)))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tc.expected, next.Headers)
		})
	}
}

func TestFollow(t *testing.T) {
	server := &fakeServer{
		responses: map[string]string{
			"example.com/b":     redirectTo("302", "http://cdn.example/c"),
			"cdn.example/c":     redirectTo("303", "/final"),
			"cdn.example/final": "HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\ndone",
		},
	}

	req := http.NewRequest(http.MethodPost, "example.com", "/a").WithBody([]byte("payload"))
	first := response(t, redirectTo("301", "/b"))

	resp, err := DefaultPolicy.Follow(context.Background(), server, req, first)
	require.NoError(t, err)
	assert.Equal(t, uint(200), resp.StatusCode)
	assert.Equal(t, []byte("done"), resp.Body)

	require.Len(t, server.requests, 3)
	assert.True(t, strings.HasPrefix(server.requests[0], "POST /b HTTP/1.1\r\n"))
	assert.True(t, strings.HasSuffix(server.requests[0], "\r\n\r\npayload"))
	assert.True(t, strings.HasPrefix(server.requests[1], "POST /c HTTP/1.1\r\n"))
	assert.Contains(t, server.requests[1], "Host: cdn.example\r\n")
	assert.True(t, strings.HasPrefix(server.requests[2], "GET /final HTTP/1.1\r\n"))
	assert.NotContains(t, server.requests[2], "payload")
}

func TestFollowTooManyRedirects(t *testing.T) {
	loop := ExchangerFunc(func(ctx context.Context, req http.Request, raw []byte) ([]byte, error) {
		return []byte(redirectTo("302", "/loop")), nil
	})

	req := http.NewRequest(http.MethodGet, "example.com", "/loop")
	first := response(t, redirectTo("302", "/loop"))

	testcases := []struct {
		desc         string
		policy       Policy
		expectedHops int
	}{
		{desc: "default", policy: DefaultPolicy, expectedHops: DefaultMaxHops},
		{desc: "zero means default", policy: Policy{}, expectedHops: DefaultMaxHops},
		{desc: "custom", policy: Policy{MaxHops: 2}, expectedHops: 2},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			hops := 0
			counting := ExchangerFunc(func(ctx context.Context, req http.Request, raw []byte) ([]byte, error) {
				hops++
				return loop(ctx, req, raw)
			})

			_, err := tc.policy.Follow(context.Background(), counting, req, first)
			assert.ErrorIs(t, err, ErrTooManyRedirects)
			assert.Equal(t, tc.expectedHops, hops)
		})
	}
}

func TestFollowDisabled(t *testing.T) {
	ex := ExchangerFunc(func(context.Context, http.Request, []byte) ([]byte, error) {
		t.Fatal("must not exchange")
		return nil, nil
	})

	first := response(t, redirectTo("302", "/elsewhere"))
	resp, err := Policy{MaxHops: -1}.Follow(context.Background(), ex, http.NewRequest(http.MethodGet, "example.com", "/"), first)
	require.NoError(t, err)
	assert.Same(t, first, resp)
}

func TestFollowNoRedirect(t *testing.T) {
	ex := ExchangerFunc(func(context.Context, http.Request, []byte) ([]byte, error) {
		t.Fatal("must not exchange")
		return nil, nil
	})

	first := response(t, "HTTP/1.1 200 OK\r\n\r\n")
	resp, err := DefaultPolicy.Follow(context.Background(), ex, http.NewRequest(http.MethodGet, "example.com", "/"), first)
	require.NoError(t, err)
	assert.Same(t, first, resp)
}

func TestFollowExchangeError(t *testing.T) {
	failing := ExchangerFunc(func(context.Context, http.Request, []byte) ([]byte, error) {
		return nil, errors.New("connection refused")
	})

	first := response(t, redirectTo("301", "/next"))
	_, err := DefaultPolicy.Follow(context.Background(), failing, http.NewRequest(http.MethodGet, "example.com", "/"), first)
	assert.ErrorContains(t, err, "connection refused")
}

func TestFollowCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := ExchangerFunc(func(context.Context, http.Request, []byte) ([]byte, error) {
		t.Fatal("must not exchange")
		return nil, nil
	})

	first := response(t, redirectTo("301", "/next"))
	_, err := DefaultPolicy.Follow(ctx, ex, http.NewRequest(http.MethodGet, "example.com", "/"), first)
	assert.ErrorIs(t, err, context.Canceled)
}
