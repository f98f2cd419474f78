package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/credential"
)

var (
	// ErrCredentialRejected is returned to the immediate caller of a domain
	// request the upstream rejected on authorization grounds. The session
	// itself is invalidated centrally.
	ErrCredentialRejected = api.ErrUnauthorized
	// ErrOperationFailed marks a non-2xx, non-401 upstream response, such as
	// bad login credentials or a registration conflict.
	ErrOperationFailed = api.ErrOperationFailed
	// ErrTransport marks a request that never produced a response.
	ErrTransport = api.ErrTransport
	// ErrMalformedResponse marks a 2xx response that could not be decoded.
	ErrMalformedResponse = api.ErrMalformedResponse
	// ErrStoreUnavailable wraps credential store I/O failures.
	ErrStoreUnavailable = credential.ErrStoreUnavailable

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrClientClosed is returned by operations on a closed Client.
	ErrClientClosed = errors.New("client closed")
	// ErrMissingCredentials is returned when login or register input is blank.
	ErrMissingCredentials = errors.New("email and password are required")
	// ErrRehydrateTimeout is recorded when startup rehydration exceeds its deadline.
	ErrRehydrateTimeout = errors.New("rehydration timed out")
)
