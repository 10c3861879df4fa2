package transport

import (
	"errors"
	"io"
)

// ErrUnsupportedTarget is returned for target types the opener cannot
// handle.
var ErrUnsupportedTarget = errors.New("transport: unsupported target type")

// emptyReader backs Stderr() on PTY transports where stderr is merged into
// the PTY stream.
type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, io.EOF }
