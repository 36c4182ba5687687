package http

import (
	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"httpwire/application/util/uri"
)

// Request is a request to be encoded by [EncodeRequest].
//
// Scheme is never written to the wire. Transports and redirects use it to pick ports and resolve references.
type Request struct {
	Method  Method
	Target  string
	Host    string
	Scheme  string
	Headers Headers

	// nil means no body.
	Body []byte
}

func NewRequest(method Method, host, target string) Request {
	return Request{Method: method, Target: target, Host: host, Scheme: "http"}
}

// WithHeader returns a copy of r with the field set, replacing any field of the same name.
func (r Request) WithHeader(name, value string) Request {
	r.Headers = r.Headers.Clone()
	r.Headers.Set(name, value)
	return r
}

// WithBody returns a copy of r carrying body.
func (r Request) WithBody(body []byte) Request {
	if body != nil {
		body = append([]byte{}, body...)
	}
	r.Body = body
	return r
}

// WithJSONBody returns a copy of r carrying v marshaled as JSON.
func (r Request) WithJSONBody(v any) (Request, error) {
	body, err := sonic.Marshal(v)
	if err != nil {
		return Request{}, errors.Wrap(err, "marshaling json body")
	}
	return r.WithHeader("Content-Type", "application/json").WithBody(body), nil
}

// WithQuery returns a copy of r with params appended to its target.
func (r Request) WithQuery(params ...uri.QueryParam) Request {
	r.Target = uri.AppendQuery(r.Target, uri.EncodeQuery(params))
	return r
}

// URI returns the absolute URI that r addresses.
func (r Request) URI() (uri.URI, error) {
	authority, err := uri.ParseAuthority(r.Host)
	if err != nil {
		return uri.URI{}, errors.Wrap(err, "parsing host")
	}

	target, err := uri.Parse(r.Target)
	if err != nil {
		return uri.URI{}, errors.Wrap(err, "parsing target")
	}

	scheme := r.Scheme
	if scheme == "" {
		scheme = "http"
	}

	target.Scheme = scheme
	target.Authority = &authority
	return target, nil
}
