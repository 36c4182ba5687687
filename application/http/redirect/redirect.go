// Package redirect decides how to follow redirection responses.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.4
package redirect

import (
	"context"
	"strings"

	"httpwire/application/http"
	"httpwire/application/util/uri"

	"github.com/pkg/errors"
)

const DefaultMaxHops = 5

var ErrTooManyRedirects = errors.New("too many redirects")

// Exchanger sends an encoded request and returns the raw response.
type Exchanger interface {
	Exchange(ctx context.Context, req http.Request, raw []byte) ([]byte, error)
}

type ExchangerFunc func(ctx context.Context, req http.Request, raw []byte) ([]byte, error)

func (f ExchangerFunc) Exchange(ctx context.Context, req http.Request, raw []byte) ([]byte, error) {
	return f(ctx, req, raw)
}

type Policy struct {
	// MaxHops bounds the number of redirects followed by [Policy.Follow].
	// Zero means [DefaultMaxHops]. A negative value disables following,
	// so [Policy.Follow] hands back the redirect itself.
	MaxHops int

	// KeepMethodOnSeeOther resends the original method and body on 303.
	// By default 303 switches to GET without a body.
	KeepMethodOnSeeOther bool

	EncodeOptions http.EncodeOptions

	// ParseOptions is used with Strict turned off, since every response must be inspected.
	ParseOptions http.ParseOptions
}

var DefaultPolicy = Policy{
	MaxHops:       DefaultMaxHops,
	EncodeOptions: http.DefaultEncodeOptions,
	ParseOptions:  http.DefaultParseOptions,
}

func (p Policy) maxHops() int {
	if p.MaxHops == 0 {
		return DefaultMaxHops
	}
	return p.MaxHops
}

// Next returns the request to send in reply to resp, which answered req.
// ok is false when resp is not a redirect to follow.
func (p Policy) Next(req http.Request, resp *http.Response) (next http.Request, ok bool, err error) {
	switch resp.StatusCode {
	case 301, 302, 303, 305:
	default:
		return http.Request{}, false, nil
	}

	location, found := resp.Location()
	if !found || location == "" {
		return http.Request{}, false, nil
	}

	base, err := req.URI()
	if err != nil {
		return http.Request{}, false, errors.Wrap(err, "building base URI")
	}

	target, err := uri.ResolveString(base, location)
	if err != nil {
		return http.Request{}, false, errors.Wrapf(err, "resolving location %q", location)
	}
	if target.Authority == nil || target.Authority.Host == "" {
		return http.Request{}, false, errors.Errorf("location %q has no host", location)
	}

	next = http.Request{
		Method:  req.Method,
		Target:  target.RequestTarget(),
		Host:    target.Authority.HostPort(),
		Scheme:  target.Scheme,
		Headers: req.Headers.Clone(),
		Body:    req.Body,
	}
	// Host follows the new authority.
	next.Headers.Del("Host")
	if !sameOrigin(base, target) {
		for _, name := range credentialFields {
			next.Headers.Del(name)
		}
	}

	if resp.StatusCode == 303 && !p.KeepMethodOnSeeOther {
		next = seeOther(next)
	}

	return next, true, nil
}

// credentialFields are dropped when a redirect leaves the origin of the request.
var credentialFields = []string{"Authorization", "Proxy-Authorization", "Cookie"}

func sameOrigin(a, b uri.URI) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		a.Authority != nil && b.Authority != nil &&
		strings.EqualFold(a.Authority.HostPort(), b.Authority.HostPort())
}

func seeOther(req http.Request) http.Request {
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		return req
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
		http.MethodOptions, http.MethodTrace:
		req.Method = http.MethodGet
		req.Body = nil
		for _, name := range []string{"Content-Length", "Content-Type", "Content-Encoding", "Transfer-Encoding"} {
			req.Headers.Del(name)
		}
	}
	return req
}

// Follow keeps following redirects starting from resp, which answered req,
// and returns the first response that is not a redirect to follow.
func (p Policy) Follow(ctx context.Context, ex Exchanger, req http.Request, resp *http.Response) (*http.Response, error) {
	if p.MaxHops < 0 {
		return resp, nil
	}

	parseOpts := p.ParseOptions
	parseOpts.Strict = false

	for hops := 0; ; hops++ {
		next, ok, err := p.Next(req, resp)
		if err != nil {
			return nil, errors.Wrap(err, "deciding next request")
		}
		if !ok {
			return resp, nil
		}

		if hops >= p.maxHops() {
			return nil, errors.Wrapf(ErrTooManyRedirects, "stopped after %d hops", hops)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := http.EncodeRequest(next, p.EncodeOptions)
		if err != nil {
			return nil, errors.Wrap(err, "encoding redirected request")
		}

		rawResp, err := ex.Exchange(ctx, next, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "exchanging with %s", next.Host)
		}

		resp, _, err = http.ParseResponse(rawResp, parseOpts)
		if err != nil {
			return nil, errors.Wrap(err, "parsing redirected response")
		}

		req = next
	}
}
