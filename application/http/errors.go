package http

import (
	"fmt"

	"httpwire/application/http/status"

	"github.com/pkg/errors"
)

var (
	ErrMalformedResponse = errors.New("response is malformed")
	ErrEncoding          = errors.New("request cannot be encoded")
)

// StatusError is returned by strict parsing for 4xx and 5xx responses.
// Status carries the canned reason of the code, not the phrase the server sent.
type StatusError struct {
	Status   status.Status
	Response *Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", status.ClassOf(e.Status.Code), e.Status)
}

func (e *StatusError) Class() status.Class { return status.ClassOf(e.Status.Code) }

// NewStatusError reports resp as a failure, with the canned reason of its code.
func NewStatusError(resp *Response) *StatusError {
	return &StatusError{
		Status:   status.Status{Code: resp.StatusCode, ReasonPhrase: status.Reason(resp.StatusCode)},
		Response: resp,
	}
}
