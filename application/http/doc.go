// Package http implements the client side of the HTTP/1.1 message syntax.
//
// Requests are encoded with [EncodeRequest] and responses are parsed with [ParseResponse].
// Both work on whole messages in memory and never touch a connection.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110
//
// - https://datatracker.ietf.org/doc/html/rfc9112
package http
