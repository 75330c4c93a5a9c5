package client

import "errors"

var (
	// ErrNotAuthorized is returned by Connect when the relay rejects the
	// signed challenge.
	ErrNotAuthorized = errors.New("relay rejected authentication: not authorized")

	// ErrNotConnected is returned when a call is attempted without an
	// authenticated connection.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned by Connect when a connection is
	// already active. A messenger owns at most one connection at a time.
	ErrAlreadyConnected = errors.New("already connected")
)
