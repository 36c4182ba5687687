package http

import (
	"bytes"
	"strconv"
	"strings"

	"httpwire/application/http/content"
	"httpwire/application/http/transfer"
	"httpwire/application/util/rule"
	bytesutil "httpwire/util/bytes"

	"github.com/pkg/errors"
)

type ParseOptions struct {
	// Strict turns 4xx and 5xx responses into [*StatusError],
	// and 3xx responses into [OutcomeContinuation].
	Strict bool

	// Decoder undoes content codings other than identity, gzip, x-gzip and deflate.
	// Without it, such a body stays encoded and [Response.PendingEncoding] names the remaining codings.
	Decoder content.DecodeFunc

	// DecodeTransfer removes chunked transfer coding from the body.
	DecodeTransfer bool
}

var DefaultParseOptions = ParseOptions{
	Strict:         false,
	Decoder:        nil,
	DecodeTransfer: true,
}

// Outcome tells a successfully parsed response apart from one asking the caller for further action.
type Outcome uint8

const (
	OutcomeOK Outcome = iota
	OutcomeContinuation
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeContinuation:
		return "continuation"
	}
	return "unknown"
}

// ParseResponse parses a whole HTTP/1.1 response message.
//
// If raw has no empty line ending the header section, headers are parsed as far as possible
// and [Response.Body] is nil.
// raw is never retained.
func ParseResponse(raw []byte, opts ParseOptions) (*Response, Outcome, error) {
	head, body, found := bytes.Cut(raw, rule.HeaderTerminator)

	statusLine, fieldLines, _ := bytesutil.CutLine(head)

	resp := &Response{}
	if err := parseStatusLine(statusLine, resp); err != nil {
		return nil, OutcomeOK, errors.Wrapf(ErrMalformedResponse, "parsing status line: %s", err)
	}

	resp.Headers = parseFields(fieldLines)

	if found {
		resp.Body = bytes.Clone(body)
		if resp.Body == nil {
			resp.Body = []byte{}
		}
		if err := decodeTransfer(resp, opts); err != nil {
			return nil, OutcomeOK, errors.Wrapf(ErrMalformedResponse, "decoding transfer coding: %s", err)
		}
	}

	if err := decodeContent(resp, opts); err != nil {
		return nil, OutcomeOK, errors.Wrapf(ErrMalformedResponse, "decoding content coding: %s", err)
	}

	if !opts.Strict {
		return resp, OutcomeOK, nil
	}

	switch {
	case resp.StatusCode >= 400:
		return nil, OutcomeOK, NewStatusError(resp)
	case resp.StatusCode >= 300:
		return resp, OutcomeContinuation, nil
	}

	return resp, OutcomeOK, nil
}

func parseStatusLine(line []byte, resp *Response) error {
	line = bytes.TrimSuffix(line, []byte{rule.CR})

	parts := bytes.SplitN(line, []byte{rule.SP}, 3)
	if len(parts) < 2 {
		return errors.Errorf("status line is malformed: %q", line)
	}

	ver, err := ParseVersion(parts[0])
	if err != nil {
		return errors.Wrap(err, "parsing version")
	}

	statusCodeStr := string(parts[1])
	statusCode, err := strconv.ParseUint(statusCodeStr, 10, 64)
	if err != nil || len(statusCodeStr) != 3 {
		return errors.Errorf("status code is malformed: %q", statusCodeStr)
	}
	if statusCode < 100 || statusCode > 599 {
		return errors.Errorf("status code is out of range: %d", statusCode)
	}

	resp.Version = ver
	resp.StatusCode = uint(statusCode)

	// reason-phrase is optional.
	if len(parts) == 3 {
		resp.ReasonPhrase = string(parts[2])
	}

	return nil
}

// parseFields collects every well-formed field line. Lines which are not fields are skipped.
func parseFields(block []byte) Headers {
	headers := make(Headers, 0)
	for len(block) > 0 {
		var line []byte
		line, block, _ = bytesutil.CutLine(block)
		line = bytes.TrimSuffix(line, []byte{rule.CR})

		field, err := ParseField(line)
		if err != nil {
			continue
		}
		headers.Add(field.Name, field.Value)
	}
	return headers
}

func decodeTransfer(resp *Response, opts ParseOptions) error {
	codings := transfer.Codings(resp.Headers.Values("Transfer-Encoding"))
	if opts.DecodeTransfer && transfer.IsChunked(codings) && len(resp.Body) > 0 {
		data, trailers, err := transfer.Decode(resp.Body)
		if err != nil {
			return err
		}
		resp.Body = data
		for _, t := range trailers {
			resp.Trailers.Add(t.Name, t.Value)
		}
		return nil
	}

	if len(codings) > 0 {
		// Content-Length is ignored when Transfer-Encoding is present.
		// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3-2.3
		return nil
	}

	if values := resp.Headers.Values("Content-Length"); len(values) > 0 {
		n, err := parseContentLength(values)
		if err != nil {
			return err
		}
		if n < uint64(len(resp.Body)) {
			resp.Body = resp.Body[:n]
		}
	}

	return nil
}

// parseContentLength accepts a list of identical lengths, across one or more fields.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.6-4
func parseContentLength(values []string) (uint64, error) {
	var (
		n     uint64
		found bool
	)
	for _, member := range rule.SplitList(strings.Join(values, ",")) {
		v, err := strconv.ParseUint(member, 10, 63)
		if err != nil {
			return 0, errors.Wrapf(err, "parsing Content-Length %q", member)
		}
		if found && v != n {
			return 0, errors.Errorf("conflicting Content-Length values %d and %d", n, v)
		}
		n, found = v, true
	}
	if !found {
		return 0, errors.New("Content-Length is empty")
	}
	return n, nil
}

func decodeContent(resp *Response, opts ParseOptions) error {
	values := resp.Headers.Values("Content-Encoding")
	if len(values) == 0 {
		return nil
	}

	resp.ContentEncoding = strings.Join(values, ", ")
	// 304, answers to HEAD and most redirects carry the label without a body.
	if len(resp.Body) == 0 {
		return nil
	}

	codings := content.Codings(values)
	body, pending, err := content.NewCodingPipeliner(nil, opts.Decoder).Decode(resp.Body, codings)
	if err != nil {
		return err
	}

	resp.Body = body
	resp.PendingEncoding = content.Label(pending)

	return nil
}
