package edge

import (
	"errors"
)

// ErrCancelled is returned from the Edge interface when operations are performed on the edge after it has been cancelled.
var ErrCancelled = errors.New("edge cancelled")

// ErrClosed is returned from Put once the producer has marked the edge done.
var ErrClosed = errors.New("edge done, cannot put")
