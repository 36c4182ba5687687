package iolib

import (
	"io"

	"github.com/pkg/errors"
)

// LimitReader creates new [LimitedReader]
func LimitReader(r io.Reader, n uint) io.Reader { return &LimitedReader{R: r, N: n} }

// LimitedReader is uint port of [io.LimitedReader]
type LimitedReader struct {
	R io.Reader // underlying reader
	N uint      // max bytes remaining
}

func (l *LimitedReader) Read(p []byte) (n int, err error) {
	if l.N == 0 {
		return 0, io.EOF
	}
	if uint(len(p)) > l.N {
		p = p[:l.N]
	}
	n, err = l.R.Read(p)
	l.N -= uint(n)
	return
}

var ErrTooLarge = errors.New("read exceeds size limit")

// ReadAllLimit reads r until EOF.
// It fails with [ErrTooLarge] when more than limit bytes are available. Zero limit means no limit.
func ReadAllLimit(r io.Reader, limit uint) ([]byte, error) {
	if limit == 0 {
		return io.ReadAll(r)
	}

	b, err := io.ReadAll(LimitReader(r, limit+1))
	if err != nil {
		return b, err
	}
	if uint(len(b)) > limit {
		return b[:limit], ErrTooLarge
	}

	return b, nil
}
