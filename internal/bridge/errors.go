package bridge

import "errors"

// Error taxonomy per spec §7.
var (
	ErrValidationFailed = errors.New("bridge: validation failed")
	ErrInvalidProof     = errors.New("bridge: invalid merkle proof")
	ErrWorkerTimeout    = errors.New("bridge: worker chunk timed out")
	ErrUnknownOperation = errors.New("bridge: unknown operation")
	ErrClosed           = errors.New("bridge: batcher closed")
)
