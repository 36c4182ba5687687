// Package cookie parses Set-Cookie field values.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6265
package cookie

import (
	"strconv"
	"strings"
	"time"

	"httpwire/application/util/rule"

	"github.com/pkg/errors"
)

type SameSite uint8

const (
	SameSiteDefault SameSite = iota
	SameSiteLax
	SameSiteStrict
	SameSiteNone
)

type Cookie struct {
	Name  string
	Value string

	Expires time.Time
	// MaxAge is nil when the attribute is absent.
	MaxAge   *int
	Domain   string
	Path     string
	Secure   bool
	HttpOnly bool
	SameSite SameSite

	// Extensions keeps unrecognized attributes as they were sent.
	Extensions []string
}

var ErrMalformedCookie = errors.New("cookie is malformed")

// Parse parses a single Set-Cookie field value.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.2
func Parse(value string) (Cookie, error) {
	pair, attrs, _ := strings.Cut(value, ";")

	name, val, found := strings.Cut(pair, "=")
	if !found {
		return Cookie{}, errors.Wrap(ErrMalformedCookie, "missing '=' in name-value pair")
	}

	name = strings.TrimFunc(name, isWSP)
	if name == "" {
		return Cookie{}, errors.Wrap(ErrMalformedCookie, "empty cookie name")
	}
	if !rule.IsValidToken(name) {
		return Cookie{}, errors.Wrapf(ErrMalformedCookie, "cookie name %q is not a token", name)
	}

	c := Cookie{Name: name, Value: unquote(strings.TrimFunc(val, isWSP))}

	for _, attr := range strings.Split(attrs, ";") {
		attr = strings.TrimFunc(attr, isWSP)
		if attr == "" {
			continue
		}
		c.applyAttribute(attr)
	}

	return c, nil
}

// Unknown or malformed attributes are ignored, as user agents do.
func (c *Cookie) applyAttribute(attr string) {
	key, val, _ := strings.Cut(attr, "=")
	key = strings.TrimFunc(key, isWSP)
	val = strings.TrimFunc(val, isWSP)

	switch strings.ToLower(key) {
	case "expires":
		if t, ok := parseCookieDate(val); ok {
			c.Expires = t
		}
	case "max-age":
		// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.2.2
		n, err := strconv.Atoi(val)
		if err != nil || (val[0] != '-' && !rule.IsDigit(rune(val[0]))) {
			return
		}
		c.MaxAge = &n
	case "domain":
		c.Domain = strings.ToLower(strings.TrimPrefix(val, "."))
	case "path":
		if strings.HasPrefix(val, "/") {
			c.Path = val
		}
	case "secure":
		c.Secure = true
	case "httponly":
		c.HttpOnly = true
	case "samesite":
		switch strings.ToLower(val) {
		case "lax":
			c.SameSite = SameSiteLax
		case "strict":
			c.SameSite = SameSiteStrict
		case "none":
			c.SameSite = SameSiteNone
		}
	default:
		c.Extensions = append(c.Extensions, attr)
	}
}

// Expired reports whether c should be discarded at now.
// Max-Age takes precedence over Expires.
func (c Cookie) Expired(now time.Time) bool {
	if c.MaxAge != nil {
		return *c.MaxAge <= 0
	}
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

var dateLayouts = []string{
	time.RFC1123,
	"Mon, 02-Jan-2006 15:04:05 MST",
	time.RFC850,
	time.ANSIC,
}

func parseCookieDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func isWSP(r rune) bool { return rule.IsOWS(r) }

func unquote(s string) string {
	if len(s) > 1 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
