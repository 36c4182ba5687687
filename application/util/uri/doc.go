// Package uri implements URI references as used by HTTP request targets and Location fields.
//
// Components are kept in their escaped form, so a parsed URI serializes back without loss.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc3986
//
// - https://url.spec.whatwg.org/#application/x-www-form-urlencoded
package uri
