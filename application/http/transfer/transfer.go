// Package transfer implements HTTP/1.1 transfer codings.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7
package transfer

import (
	"bytes"
	"io"

	"httpwire/application/util/rule"

	"github.com/pkg/errors"
)

type Coding string

const (
	CodingChunked Coding = "chunked"
)

// Codings converts Transfer-Encoding field values into codings, in the order they were applied.
func Codings(values []string) []Coding {
	codings := make([]Coding, 0, len(values))
	for _, v := range values {
		for _, token := range rule.SplitList(v) {
			codings = append(codings, Coding(token))
		}
	}
	return codings
}

// IsChunked reports whether chunked is the final coding.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3-2.4.1
func IsChunked(codings []Coding) bool {
	return len(codings) > 0 && codings[len(codings)-1] == CodingChunked
}

var ErrUnsupportedCoding = errors.New("coding is unsupported")

// Decode undoes the chunked coding of a complete message body.
func Decode(body []byte) (data []byte, trailers []Trailer, err error) {
	cr := NewChunkedReader(bytes.NewReader(body), &trailers)

	data, err = io.ReadAll(cr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading chunked body")
	}

	return data, trailers, nil
}

// Encode applies the chunked coding to data, splitting it into chunks of at most chunkSize bytes.
func Encode(data []byte, chunkSize int, trailers []Trailer) ([]byte, error) {
	if chunkSize <= 0 {
		return nil, errors.Errorf("invalid chunk size: %d", chunkSize)
	}

	var buf bytes.Buffer
	cw := NewChunkedWriter(&buf, &trailers)
	for len(data) > 0 {
		n := min(chunkSize, len(data))
		if _, err := cw.Write(data[:n]); err != nil {
			return nil, errors.Wrap(err, "writing chunk")
		}
		data = data[n:]
	}

	if err := cw.Close(); err != nil {
		return nil, errors.Wrap(err, "closing chunked writer")
	}

	return buf.Bytes(), nil
}
