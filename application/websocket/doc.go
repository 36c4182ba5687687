// Package websocket implements the client side of the WebSocket protocol:
// the opening handshake and the framing layer.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6455
package websocket
