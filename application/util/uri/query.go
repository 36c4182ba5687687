package uri

import (
	"sort"
	"strings"

	"github.com/go-playground/form/v4"
	"github.com/pkg/errors"
)

type QueryParam struct{ Key, Value string }

// EncodeQuery encodes params in order using application/x-www-form-urlencoded,
// which writes space as '+'.
func EncodeQuery(params []QueryParam) string {
	b := new(strings.Builder)
	for idx, p := range params {
		if idx > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeQueryComponent(p.Key))
		b.WriteByte('=')
		b.WriteString(escapeQueryComponent(p.Value))
	}
	return b.String()
}

var queryEncoder = form.NewEncoder()

// QueryParamsOf builds params from the fields of a struct tagged with `form:"..."`.
// Keys are sorted, since struct encoding has no stable order.
func QueryParamsOf(v any) ([]QueryParam, error) {
	values, err := queryEncoder.Encode(v)
	if err != nil {
		return nil, errors.Wrap(err, "encoding form values")
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := make([]QueryParam, 0, len(keys))
	for _, k := range keys {
		for _, v := range values[k] {
			params = append(params, QueryParam{Key: k, Value: v})
		}
	}

	return params, nil
}

// EncodeQueryStruct is a shorthand for [QueryParamsOf] followed by [EncodeQuery].
func EncodeQueryStruct(v any) (string, error) {
	params, err := QueryParamsOf(v)
	if err != nil {
		return "", err
	}
	return EncodeQuery(params), nil
}

// AppendQuery appends an encoded query to a request target.
func AppendQuery(target, query string) string {
	if query == "" {
		return target
	}
	if strings.Contains(target, "?") {
		return target + "&" + query
	}
	return target + "?" + query
}

func hex(c byte) (h [2]byte) {
	const hexSet = "0123456789ABCDEF"
	h[0] = hexSet[c>>4]
	h[1] = hexSet[c&0xF]
	return
}

// Reference: https://url.spec.whatwg.org/#urlencoded-serializing
func escapeQueryComponent(s string) string {
	b := new(strings.Builder)
	b.Grow(len(s))

	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case isUnreserved(c):
			b.WriteByte(c)
		default:
			h := hex(c)
			b.Write([]byte{'%', h[0], h[1]})
		}
	}

	return b.String()
}
