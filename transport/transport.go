// Package transport defines the byte streams requests and frames travel over.
// Implementations live in subpackages. The encoders and parsers never touch them.
package transport

type Protocol string

const (
	TCP  Protocol = "tcp"
	Pipe Protocol = "pipe"
)

// Addr is an endpoint of a connection. [net.Addr] satisfies it.
type Addr interface {
	Network() string
	String() string
}
