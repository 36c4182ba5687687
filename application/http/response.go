package http

import (
	"mime"
	"strings"

	"httpwire/application/http/cookie"
	"httpwire/application/http/status"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/htmlindex"
)

type Response struct {
	Version      Version
	StatusCode   uint
	ReasonPhrase string
	Headers      Headers

	// Trailers holds the trailer section of a chunked body.
	Trailers Headers

	// Body is nil when the message had no end of header section.
	Body []byte

	// ContentEncoding is the Content-Encoding field as received.
	ContentEncoding string

	// PendingEncoding names the codings still applied to Body, in the order they were applied.
	// It is empty when Body is fully decoded.
	PendingEncoding string
}

func (r *Response) Status() status.Status {
	return status.Status{Code: r.StatusCode, ReasonPhrase: r.ReasonPhrase}
}

func (r *Response) Class() status.Class { return status.ClassOf(r.StatusCode) }

var ErrUnknownCharset = errors.New("unknown charset")

// Text decodes the body into a string using the charset parameter of Content-Type.
// A body without charset is taken as UTF-8.
func (r *Response) Text() (string, error) {
	charset := r.charset()
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		return string(r.Body), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", errors.Wrapf(ErrUnknownCharset, "%q", charset)
	}

	b, err := enc.NewDecoder().Bytes(r.Body)
	if err != nil {
		return "", errors.Wrapf(err, "decoding %s body", charset)
	}

	return string(b), nil
}

func (r *Response) charset() string {
	ct, ok := r.Headers.Get("Content-Type")
	if !ok {
		return ""
	}
	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// JSON unmarshals the body into v.
func (r *Response) JSON(v any) error {
	if r.PendingEncoding != "" {
		return errors.Errorf("body is still encoded with %q", r.PendingEncoding)
	}
	if err := sonic.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(err, "unmarshaling json body")
	}
	return nil
}

// Cookies parses every Set-Cookie field. Malformed ones are ignored.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.2
func (r *Response) Cookies() []cookie.Cookie {
	values := r.Headers.Values("Set-Cookie")
	cookies := make([]cookie.Cookie, 0, len(values))
	for _, v := range values {
		c, err := cookie.Parse(v)
		if err != nil {
			continue
		}
		cookies = append(cookies, c)
	}
	return cookies
}

// Location returns the Location field, which redirects and 201 responses carry.
func (r *Response) Location() (string, bool) { return r.Headers.Get("Location") }
