package uri

import (
	"strings"

	"github.com/pkg/errors"
)

var ErrRelativeBase = errors.New("base URI cannot be a relative reference")

// Resolve resolves ref against base.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-5.2.2
func Resolve(base, ref URI) (URI, error) {
	if base.IsRelativeRef() {
		return URI{}, ErrRelativeBase
	}

	out := ref
	switch {
	case out.Scheme != "":
	case out.Authority != nil:
		out.Scheme = base.Scheme
	case out.Path != "":
		out.Scheme, out.Authority = base.Scheme, base.Authority
		if !strings.HasPrefix(out.Path, "/") {
			out.Path = mergePath(base, out.Path)
		}
	default:
		out.Scheme, out.Authority, out.Path = base.Scheme, base.Authority, base.Path
		if out.Query == nil {
			out.Query = base.Query
		}
	}

	out.Path = removeDotSegments(out.Path)

	return out, nil
}

// ResolveString parses ref and resolves it against base.
func ResolveString(base URI, ref string) (URI, error) {
	parsed, err := Parse(ref)
	if err != nil {
		return URI{}, errors.Wrap(err, "parsing reference")
	}
	return Resolve(base, parsed)
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-5.2.3
func mergePath(base URI, refPath string) string {
	if base.Authority != nil && base.Path == "" {
		return "/" + refPath
	}

	if idx := strings.LastIndexByte(base.Path, '/'); idx >= 0 {
		return base.Path[:idx+1] + refPath
	}

	return refPath
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-5.2.4
func removeDotSegments(path string) string {
	out := make([]string, 0, strings.Count(path, "/")+1)
	pop := func() {
		if len(out) > 0 {
			out = out[:len(out)-1]
		}
	}

	for len(path) > 0 {
		switch {
		case strings.HasPrefix(path, "../"):
			path = path[3:]
		case strings.HasPrefix(path, "./"):
			path = path[2:]
		case strings.HasPrefix(path, "/./"):
			path = path[2:]
		case path == "/.":
			path = "/"
		case strings.HasPrefix(path, "/../"):
			pop()
			path = path[3:]
		case path == "/..":
			pop()
			path = "/"
		case path == "." || path == "..":
			path = ""
		default:
			// Move the first segment, with its leading '/', to the output.
			idx := strings.IndexByte(path[1:], '/') + 1
			if idx == 0 {
				idx = len(path)
			}
			out = append(out, path[:idx])
			path = path[idx:]
		}
	}

	return strings.Join(out, "")
}
