package http

import (
	"bytes"
	"io"
	"strings"

	"httpwire/application/util/rule"

	"github.com/pkg/errors"
)

type Field struct{ Name, Value string }

// ParseField parses a field line.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5
func ParseField(fieldLine []byte) (Field, error) {
	name, value, found := bytes.Cut(fieldLine, []byte{':'})
	if !found {
		return Field{}, errors.Errorf("colon seperator not found on header: %q", string(fieldLine))
	}

	if len(name) == 0 {
		return Field{}, errors.New("field name is empty")
	}

	// No whitespace is allowed between field name and colon.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1-2
	if rule.IsOWS(rune(name[len(name)-1])) {
		return Field{}, errors.New("field name has trailing whitespace")
	}

	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1-3
	value = bytes.TrimFunc(value, func(r rune) bool { return rule.IsOWS(r) || r == rune(rule.CR) })

	return Field{Name: string(name), Value: string(value)}, nil
}

func (f Field) Text() []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteString(f.Name)
	buf.WriteString(": ")
	buf.WriteString(f.Value)
	return buf.Bytes()
}

// Headers is an ordered list of fields.
// Names are matched case-insensitively but written as given.
type Headers []Field

// Set overwrites the value of the first field named name, removing any later one.
// The field is appended when not present.
func (h *Headers) Set(name, value string) {
	out := (*h)[:0]
	set := false
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
			continue
		}
		if !set {
			f.Value = value
			out = append(out, f)
			set = true
		}
	}
	if !set {
		out = append(out, Field{Name: name, Value: value})
	}
	*h = out
}

// Add appends a field, keeping every field with the same name.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Field{Name: name, Value: value})
}

func (h *Headers) Del(name string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	*h = out
}

// Get returns the value of the first field named name.
func (h Headers) Get(name string) (value string, ok bool) {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns values of every field named name, in order.
func (h Headers) Values(name string) []string {
	var values []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

func (h Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

func (h Headers) Len() int { return len(h) }

// Fields returns a copy of the fields in order.
func (h Headers) Fields() []Field { return h.Clone() }

func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// ContainsToken reports whether any field named name holds token in its comma separated list.
func (h Headers) ContainsToken(name, token string) bool {
	return rule.ContainsToken(h.Values(name), token)
}

// Text serializes fields as "Name: value" lines terminated by CRLF.
func (h Headers) Text() []byte {
	buf := bytes.NewBuffer(nil)
	_, _ = h.WriteTo(buf)
	return buf.Bytes()
}

func (h Headers) WriteTo(w io.Writer) (n int64, err error) {
	for _, f := range h {
		line := append(f.Text(), rule.CRLF...)
		written, err := w.Write(line)
		n += int64(written)
		if err != nil {
			return n, errors.Wrap(err, "writing field")
		}
	}
	return n, nil
}
