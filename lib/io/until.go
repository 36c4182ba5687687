package iolib

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// UntilReader is a reader which can also be consumed up to a delimiter.
// Bytes read past the delimiter are kept and served by the next Read.
type UntilReader struct {
	r io.Reader

	pending []byte
}

func NewUntilReader(r io.Reader) *UntilReader {
	return &UntilReader{r: r}
}

func (ur *UntilReader) Read(p []byte) (n int, err error) {
	if len(ur.pending) > 0 {
		n = copy(p, ur.pending)
		ur.pending = ur.pending[n:]
		return n, nil
	}

	return ur.r.Read(p)
}

// Buffered returns the number of bytes already read from the source but not consumed.
func (ur *UntilReader) Buffered() int { return len(ur.pending) }

var (
	ErrZeroLenDelim  = errors.New("delim has zero length")
	ErrLimitExceeded = errors.New("delim not found within limit")
)

// ReadUntil reads until delim. The output will include delim.
// When the source fails before delim, everything read so far is returned with the error.
func (ur *UntilReader) ReadUntil(delim []byte) ([]byte, error) {
	return ur.ReadUntilLimit(delim, 0)
}

// ReadUntilLimit works like [UntilReader.ReadUntil],
// but gives up with [ErrLimitExceeded] once limit bytes were read without delim.
// Zero limit means no limit.
func (ur *UntilReader) ReadUntilLimit(delim []byte, limit uint) ([]byte, error) {
	if len(delim) == 0 {
		return nil, ErrZeroLenDelim
	}

	acc := ur.pending
	ur.pending = nil

	temp := make([]byte, 1024)
	searchFrom := 0
	for {
		if idx := bytes.Index(acc[searchFrom:], delim); idx >= 0 {
			end := searchFrom + idx + len(delim)
			if limit > 0 && uint(end) > limit {
				return acc, ErrLimitExceeded
			}
			if end < len(acc) {
				ur.pending = bytes.Clone(acc[end:])
			}
			return acc[:end:end], nil
		}

		if limit > 0 && uint(len(acc)) >= limit {
			return acc, ErrLimitExceeded
		}

		// Delim could straddle two reads.
		searchFrom = max(0, len(acc)-len(delim)+1)

		n, err := ur.r.Read(temp)
		acc = append(acc, temp[:n]...)
		if err != nil {
			if idx := bytes.Index(acc[searchFrom:], delim); idx >= 0 {
				end := searchFrom + idx + len(delim)
				if limit > 0 && uint(end) > limit {
					return acc, ErrLimitExceeded
				}
				ur.pending = bytes.Clone(acc[end:])
				return acc[:end:end], nil
			}
			return acc, err
		}
	}
}
