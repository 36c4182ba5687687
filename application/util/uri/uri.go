package uri

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type URI struct {
	Scheme    string
	Authority *Authority
	Path      string
	Query     *string
	Fragment  *string
}

type Authority struct {
	UserInfo string
	Host     string

	// Port is kept as digits, so the default port and an explicit one can be told apart.
	Port string
}

// HostPort returns "host[:port]", suitable for the Host header field.
func (a Authority) HostPort() string {
	if a.Port == "" {
		return a.Host
	}
	return a.Host + ":" + a.Port
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-4.2
func (u *URI) IsRelativeRef() bool { return u.Scheme == "" }

// RequestTarget returns the origin-form of u.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3.2.1
func (u *URI) RequestTarget() string {
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.Query != nil {
		return path + "?" + *u.Query
	}
	return path
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-5.3
func (u *URI) String() string {
	b := new(strings.Builder)
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteByte(':')
	}

	if u.Authority != nil {
		b.WriteString("//")
		if u.Authority.UserInfo != "" {
			b.WriteString(u.Authority.UserInfo)
			b.WriteByte('@')
		}
		b.WriteString(u.Authority.HostPort())
	}

	b.WriteString(u.Path)

	if u.Query != nil {
		b.WriteByte('?')
		b.WriteString(*u.Query)
	}

	if u.Fragment != nil {
		b.WriteByte('#')
		b.WriteString(*u.Fragment)
	}

	return b.String()
}

// Parse parses a URI reference. Every component must already be percent-encoded.
func Parse(raw string) (URI, error) {
	if containsCTL(raw) {
		return URI{}, errors.New("URI should not contain CTL bytes")
	}

	var uri URI

	scheme, rest, err := cutScheme(raw)
	if err != nil {
		return URI{}, errors.Wrap(err, "getting scheme")
	}
	// Schemes are case-insensitive.
	uri.Scheme = strings.ToLower(scheme)

	if strings.HasPrefix(rest, "//") {
		var authorityRaw string
		authorityRaw, rest = rest[2:], ""
		if i := strings.IndexAny(authorityRaw, "/?#"); i >= 0 {
			authorityRaw, rest = authorityRaw[:i], authorityRaw[i:]
		}

		authority, err := ParseAuthority(authorityRaw)
		if err != nil {
			return URI{}, errors.Wrap(err, "parsing authority")
		}
		uri.Authority = &authority
	}

	path, query, hasQuery, frag, hasFrag := splitPathQueryFrag(rest)

	if err := assertValidPath(path, uri.Authority != nil, uri.IsRelativeRef()); err != nil {
		return URI{}, errors.Wrap(err, "path is not valid")
	}
	uri.Path = path

	if hasQuery {
		if !isQueryFragValid(query) {
			return URI{}, errors.New("query is not valid")
		}
		uri.Query = &query
	}

	if hasFrag {
		if !isQueryFragValid(frag) {
			return URI{}, errors.New("fragment is not valid")
		}
		uri.Fragment = &frag
	}

	return uri, nil
}

// ParseAuthority parses "[userinfo@]host[:port]".
func ParseAuthority(raw string) (Authority, error) {
	var authority Authority

	host := raw
	if i := strings.LastIndexByte(raw, '@'); i >= 0 {
		authority.UserInfo, host = raw[:i], raw[i+1:]
		if !isValidUserInfo(authority.UserInfo) {
			return Authority{}, errors.New("user information is not valid")
		}
	}

	host, port, err := splitHostPort(host)
	if err != nil {
		return Authority{}, errors.Wrap(err, "parsing host")
	}

	if err := assertValidPort(port); err != nil {
		return Authority{}, errors.Wrap(err, "parsing port")
	}

	// reg-name is case-insensitive.
	authority.Host = strings.ToLower(host)
	authority.Port = port

	return authority, nil
}

func cutScheme(raw string) (scheme, rest string, err error) {
	// A colon after the first '/', '?' or '#' belongs to the rest of the reference.
	end := strings.IndexAny(raw, "/?#")
	if end < 0 {
		end = len(raw)
	}

	idx := strings.IndexByte(raw[:end], ':')
	if idx < 0 {
		return "", raw, nil
	}

	scheme, rest = raw[:idx], raw[idx+1:]
	if err := assertValidScheme(scheme); err != nil {
		return "", "", err
	}

	return scheme, rest, nil
}

func splitHostPort(raw string) (host, port string, err error) {
	host = raw
	if strings.HasPrefix(raw, "[") {
		// IP Literal.
		idx := strings.LastIndexByte(raw, ']')
		if idx < 0 {
			return "", "", errors.New("missing ']' in IP Literal")
		}

		var rest string
		host, rest = raw[:idx+1], raw[idx+1:]
		if rest != "" {
			var found bool
			if port, found = strings.CutPrefix(rest, ":"); !found {
				return "", "", errors.New("unexpected bytes after IP Literal")
			}
		}
	} else if idx := strings.LastIndexByte(raw, ':'); idx >= 0 {
		host, port = raw[:idx], raw[idx+1:]
	}

	if err := assertValidHost(host); err != nil {
		return "", "", errors.Wrap(err, "host is not valid")
	}

	return host, port, nil
}

func assertValidPort(port string) error {
	// An empty port means the scheme's default.
	// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.2.3
	if port == "" {
		return nil
	}

	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return errors.Wrap(err, "port is not a 16-bit number")
	}
	if port[0] == '0' && !(n == 0 && len(port) == 1) {
		return errors.New("port has leading zero")
	}

	return nil
}

func splitPathQueryFrag(raw string) (path, query string, hasQuery bool, frag string, hasFrag bool) {
	if idx := strings.IndexByte(raw, '#'); idx >= 0 {
		frag, hasFrag = raw[idx+1:], true
		raw = raw[:idx]
	}

	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		query, hasQuery = raw[idx+1:], true
		raw = raw[:idx]
	}

	return raw, query, hasQuery, frag, hasFrag
}
