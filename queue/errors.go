package queue

import "errors"

var (
	// ErrBadStatus is returned by Clean when asked to delete rows in a
	// non-terminal status.
	ErrBadStatus = errors.New("queue: bad status for clean")

	// ErrBadBatch is returned by Claim when batchSize is negative.
	ErrBadBatch = errors.New("queue: bad batch size")
)
