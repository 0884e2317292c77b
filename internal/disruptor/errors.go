package disruptor

import "errors"

// ErrWorkerLost is surfaced to an event's callback/Result when the worker
// that owned it crashed before completion (spec §7). It is never retried
// automatically — retry is the caller's responsibility.
var ErrWorkerLost = errors.New("disruptor: worker lost")
