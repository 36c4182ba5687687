package http

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"

	"httpwire/application/http/transfer"
	"httpwire/application/util/rule"

	"github.com/pkg/errors"
	"golang.org/x/net/idna"
)

const (
	DefaultUserAgent = "httpwire/0.1.0"
	DefaultChunkSize = 16 << 10
)

type EncodeOptions struct {
	// UserAgent is written when the request has no User-Agent field.
	// Empty means [DefaultUserAgent].
	UserAgent string

	// UseSoleLF specifies wheter a single LF character should be used as a line terminator.
	//
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-3
	UseSoleLF bool

	// ChunkSize bounds the chunks of a body sent with the chunked transfer coding.
	// Zero means [DefaultChunkSize].
	ChunkSize int
}

var DefaultEncodeOptions = EncodeOptions{
	UserAgent: DefaultUserAgent,
	UseSoleLF: false,
	ChunkSize: DefaultChunkSize,
}

type messageEncoder struct {
	bw   *bufio.Writer
	opts EncodeOptions
}

func (me *messageEncoder) writeLine(line []byte) error {
	if _, err := me.bw.Write(line); err != nil {
		return errors.Wrap(err, "writing line")
	}

	term := rule.CRLF
	if me.opts.UseSoleLF {
		term = term[1:]
	}

	if _, err := me.bw.Write(term); err != nil {
		return errors.Wrap(err, "writing line terminator")
	}

	return nil
}

func (me *messageEncoder) writeField(name, value string) error {
	return me.writeLine(Field{Name: name, Value: value}.Text())
}

// fixedFields are written right after the request line, in this order.
var fixedFields = []string{"User-Agent", "Accept", "Host"}

// EncodeRequest encodes req into an HTTP/1.1 request message.
//
// User-Agent, Accept and Host always come first. A field in req.Headers with one of those names
// replaces the default value instead of being written twice.
// Content-Length is added for a non-empty body, or for methods expecting one,
// unless req.Headers already frames the body.
// When chunked is the final coding named by Transfer-Encoding, the body is written chunked.
func EncodeRequest(req Request, opts EncodeOptions) ([]byte, error) {
	host, err := validateRequest(req)
	if err != nil {
		return nil, errors.Wrapf(ErrEncoding, "%s", err)
	}

	agent := opts.UserAgent
	if agent == "" {
		agent = DefaultUserAgent
	}
	defaults := map[string]string{"User-Agent": agent, "Accept": "*/*", "Host": host}

	buf := bytes.NewBuffer(nil)
	me := messageEncoder{bw: bufio.NewWriter(buf), opts: opts}

	if err := me.encodeRequestLine(req); err != nil {
		return nil, errors.Wrap(err, "encoding request line")
	}

	for _, name := range fixedFields {
		value, ok := req.Headers.Get(name)
		if !ok {
			value = defaults[name]
		}
		if err := me.writeField(name, value); err != nil {
			return nil, errors.Wrapf(err, "writing %s", name)
		}
	}

	for _, f := range req.Headers {
		if isFixedField(f.Name) {
			continue
		}
		if err := me.writeField(f.Name, f.Value); err != nil {
			return nil, errors.Wrap(err, "writing field")
		}
	}

	if needsContentLength(req) {
		if err := me.writeField("Content-Length", strconv.Itoa(len(req.Body))); err != nil {
			return nil, errors.Wrap(err, "writing Content-Length")
		}
	}

	// The empty line ends the header section.
	if err := me.writeLine(nil); err != nil {
		return nil, errors.Wrap(err, "writing header terminator")
	}

	body := req.Body
	if transfer.IsChunked(transfer.Codings(req.Headers.Values("Transfer-Encoding"))) {
		chunkSize := opts.ChunkSize
		if chunkSize == 0 {
			chunkSize = DefaultChunkSize
		}
		if body, err = transfer.Encode(body, chunkSize, nil); err != nil {
			return nil, errors.Wrapf(ErrEncoding, "chunking request body: %s", err)
		}
	}

	if _, err := me.bw.Write(body); err != nil {
		return nil, errors.Wrap(err, "writing request body")
	}

	if err := me.bw.Flush(); err != nil {
		return nil, errors.Wrap(err, "flushing request")
	}

	return buf.Bytes(), nil
}

func (me *messageEncoder) encodeRequestLine(req Request) error {
	buf := bytes.NewBuffer(nil)

	buf.WriteString(string(req.Method))
	buf.WriteByte(rule.SP)
	buf.WriteString(req.Target)
	buf.WriteByte(rule.SP)
	buf.Write(Version11.Text())

	return me.writeLine(buf.Bytes())
}

func isFixedField(name string) bool {
	for _, fixed := range fixedFields {
		if strings.EqualFold(name, fixed) {
			return true
		}
	}
	return false
}

func needsContentLength(req Request) bool {
	if req.Headers.Has("Content-Length") || req.Headers.Has("Transfer-Encoding") {
		return false
	}
	return len(req.Body) > 0 || req.Method.ExpectsBody()
}

// validateRequest checks req and returns the host to be written.
func validateRequest(req Request) (host string, err error) {
	if !req.Method.IsValid() {
		return "", errors.Errorf("method %q is not supported", req.Method)
	}

	if err := validateTarget(req.Method, req.Target); err != nil {
		return "", err
	}

	for _, f := range req.Headers {
		if !rule.IsValidToken(f.Name) {
			return "", errors.Errorf("field name %q is not a token", f.Name)
		}
		if !rule.IsValidFieldValue(f.Value) {
			return "", errors.Errorf("value of field %q has invalid bytes", f.Name)
		}
	}

	if v, ok := req.Headers.Get("Host"); ok {
		host = v
	} else {
		host = req.Host
	}
	if host == "" {
		return "", errors.New("host is empty")
	}

	if host, err = ASCIIHost(host); err != nil {
		return "", errors.Wrap(err, "converting host")
	}

	return host, nil
}

func validateTarget(method Method, target string) error {
	if target == "" {
		return errors.New("target is empty")
	}

	// asterisk-form is only for server-wide OPTIONS.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3.2.4
	if target == "*" {
		if method != MethodOptions {
			return errors.New("asterisk-form target is only allowed for OPTIONS")
		}
		return nil
	}

	if target[0] != '/' {
		return errors.Errorf("target %q is not in origin-form", target)
	}

	if strings.ContainsAny(target, " \t\r\n") {
		return errors.Errorf("target %q contains whitespace", target)
	}

	return nil
}

// ASCIIHost converts an internationalized host name to its A-label form, keeping the port.
func ASCIIHost(host string) (string, error) {
	if isASCII(host) {
		return host, nil
	}

	name, port := host, ""
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		name, port = host[:idx], host[idx:]
	}

	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return "", errors.Wrapf(err, "host %q", host)
	}

	return ascii + port, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
