package http

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
)

// [Major, Minor]
type Version [2]uint

var Version11 = Version{1, 1}

// ParseVersion parses http version text(e.g. "HTTP/1.1") into [Version].
func ParseVersion(b []byte) (Version, error) {
	prefix := []byte("HTTP/")
	if !bytes.HasPrefix(b, prefix) {
		return Version{}, errors.Errorf("http version prefix not found: %s", b)
	}

	first, second, found := bytes.Cut(b[len(prefix):], []byte{'.'})
	if !found {
		return Version{}, errors.Errorf("dot seperator not found on version: %s", b)
	}

	// HTTP-version is exactly one digit for each part.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.3
	if len(first) != 1 || len(second) != 1 {
		return Version{}, errors.Errorf("http version is not in form of DIGIT.DIGIT: %s", b)
	}

	major, err1 := strconv.ParseUint(string(first), 10, 8)
	minor, err2 := strconv.ParseUint(string(second), 10, 8)
	if err1 != nil || err2 != nil {
		return Version{}, errors.Errorf("http version is not convertable to int: %s", b)
	}

	return Version{uint(major), uint(minor)}, nil
}

func (ver Version) Text() []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteString("HTTP/")
	buf.WriteString(strconv.FormatUint(uint64(ver[0]), 10))
	buf.WriteByte('.')
	buf.WriteString(strconv.FormatUint(uint64(ver[1]), 10))
	return buf.Bytes()
}

func (ver Version) String() string { return string(ver.Text()) }

// Method is the closed set of request methods this client sends.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-9
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"
	MethodPatch   Method = "PATCH"
)

var ErrUnknownMethod = errors.New("unknown method")

// ParseMethod accepts a method name in any case.
func ParseMethod(s string) (Method, error) {
	m := Method(bytes.ToUpper([]byte(s)))
	if !m.IsValid() {
		return "", errors.Wrapf(ErrUnknownMethod, "%q", s)
	}
	return m, nil
}

func (m Method) IsValid() bool {
	switch m {
	case MethodGet, MethodHead, MethodPost, MethodPut,
		MethodDelete, MethodOptions, MethodTrace, MethodPatch:
		return true
	}
	return false
}

// ExpectsBody reports whether requests with m carry content by convention,
// so that an empty body is still announced with "Content-Length: 0".
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.6-5
func (m Method) ExpectsBody() bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch:
		return true
	}
	return false
}

func (m Method) String() string { return string(m) }

// DefaultPort returns the port used when a URI of scheme omits one.
func DefaultPort(scheme string) (port string, ok bool) {
	switch scheme {
	case "http", "ws":
		return "80", true
	case "https", "wss":
		return "443", true
	}
	return "", false
}
