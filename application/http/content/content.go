// Package content implements HTTP content codings.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.4.1
package content

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"

	"httpwire/application/util/rule"
	sliceutil "httpwire/lib/slice"

	"github.com/pkg/errors"
)

type Coding string

const (
	CodingIdentity Coding = "identity"
	CodingGzip     Coding = "gzip"
	CodingXGzip    Coding = "x-gzip"
	CodingDeflate  Coding = "deflate"
)

// Codings converts Content-Encoding field values into codings, in the order they were applied.
func Codings(values []string) []Coding {
	codings := make([]Coding, 0, len(values))
	for _, v := range values {
		for _, token := range rule.SplitList(v) {
			codings = append(codings, Coding(token))
		}
	}
	return codings
}

// Label joins codings back into a field value.
func Label(codings []Coding) string {
	return strings.Join(sliceutil.Map(codings, func(c Coding) string { return string(c) }), ", ")
}

// DecodeFunc reverses a single coding which the builtin decoders don't know.
type DecodeFunc func(coding Coding, body []byte) ([]byte, error)

type Decoder interface {
	Coding() Coding
	Decode(body []byte) ([]byte, error)
}

type gzipDecoder struct{ coding Coding }

func (d gzipDecoder) Coding() Coding { return d.coding }

func (d gzipDecoder) Decode(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "reading gzip header")
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "inflating gzip body")
	}

	return out, nil
}

type deflateDecoder struct{}

func (deflateDecoder) Coding() Coding { return CodingDeflate }

// "deflate" is the zlib format, not raw deflate.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.4.1.2
func (deflateDecoder) Decode(body []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "reading zlib header")
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "inflating deflate body")
	}

	return out, nil
}

type CodingPipeliner struct {
	decoders map[Coding]Decoder
	fallback DecodeFunc
}

// NewCodingPipeliner creates pipeliner with builtin decoders and customs.
// fallback, if not nil, is consulted for every coding no decoder is registered for.
func NewCodingPipeliner(customs []Decoder, fallback DecodeFunc) *CodingPipeliner {
	cp := &CodingPipeliner{fallback: fallback}
	cp.decoders = map[Coding]Decoder{
		CodingGzip:    gzipDecoder{coding: CodingGzip},
		CodingXGzip:   gzipDecoder{coding: CodingXGzip},
		CodingDeflate: deflateDecoder{},
	}

	for _, d := range customs {
		cp.decoders[d.Coding()] = d
	}

	return cp
}

var ErrUnsupportedCoding = errors.New("coding is unsupported")

// Decode undoes codings from the last applied one.
// It stops at the first coding it cannot undo and returns the codings still applied to body,
// so the caller can decide what to do with them.
func (cp *CodingPipeliner) Decode(body []byte, codings []Coding) (_ []byte, pending []Coding, _ error) {
	for idx := len(codings) - 1; idx >= 0; idx-- {
		coding := codings[idx]
		if coding == CodingIdentity {
			continue
		}

		var err error
		if d, ok := cp.decoders[coding]; ok {
			body, err = d.Decode(body)
		} else if cp.fallback != nil {
			body, err = cp.fallback(coding, body)
		} else {
			return body, dropIdentity(codings[:idx+1]), nil
		}

		if err != nil {
			return nil, nil, errors.Wrapf(err, "decoding %q", coding)
		}
	}

	return body, nil, nil
}

// DecodeAll works like [CodingPipeliner.Decode],
// but fails with [ErrUnsupportedCoding] instead of leaving codings pending.
func (cp *CodingPipeliner) DecodeAll(body []byte, codings []Coding) ([]byte, error) {
	out, pending, err := cp.Decode(body, codings)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return nil, errors.Wrapf(ErrUnsupportedCoding, "%q", Label(pending))
	}
	return out, nil
}

func dropIdentity(codings []Coding) []Coding {
	out := make([]Coding, 0, len(codings))
	for _, c := range codings {
		if c != CodingIdentity {
			out = append(out, c)
		}
	}
	return out
}
