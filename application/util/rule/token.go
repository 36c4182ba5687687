package rule

import (
	"bytes"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.2-2
func IsValidToken(s string) bool {
	return httpguts.ValidHeaderFieldName(s)
}

// IsValidFieldValue reports whether v can be written on a field line as is.
// CR, LF and NUL are rejected to keep header injection out.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.5
func IsValidFieldValue(v string) bool {
	return httpguts.ValidHeaderFieldValue(v)
}

// ContainsToken reports whether the comma separated list holds token.
// Comparison is case-insensitive.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.1
func ContainsToken(values []string, token string) bool {
	return httpguts.HeaderValuesContainsToken(values, token)
}

// SplitList splits a comma separated field value into trimmed, lowercased tokens.
// Empty elements are dropped.
func SplitList(v string) []string {
	parts := strings.Split(v, ",")
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimFunc(part, IsWhitespace)
		if part == "" {
			continue
		}
		tokens = append(tokens, strings.ToLower(part))
	}
	return tokens
}

// Unquote unquotes token if it was quoted with double quotes.
// If quoted string includes escaped character, it will be un-escaped.
func Unquote(token []byte) []byte {
	quoted := false
	if len(token) >= 2 {
		first, last := 0, len(token)-1
		if token[first] == '"' && token[last] == '"' {
			token = token[first+1 : last]
			quoted = true
		}
	}

	if !quoted {
		return bytes.Clone(token)
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(token)))
	for idx := 0; idx < len(token); idx++ {
		c := token[idx]
		if c == '\\' {
			continue
		}
		buf.WriteByte(c)
	}

	return buf.Bytes()
}
