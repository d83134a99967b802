package protocol

import "errors"

var (
	// ErrNoData indicates the server reply carried no body.
	ErrNoData = errors.New("no data response from server")
	// ErrNoThread indicates a non-terminal reply arrived without a thread id.
	ErrNoThread = errors.New("no thread information received")
	// ErrNoVerifier indicates no challenge verifier is stored for the
	// conversation being closed.
	ErrNoVerifier = errors.New("no verifier found for conversation")
)
