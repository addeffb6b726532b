package hpsem

import "errors"

// ErrTimeout is returned by Wait when the deadline elapses with no post.
var ErrTimeout = errors.New("hpsem: timeout")
