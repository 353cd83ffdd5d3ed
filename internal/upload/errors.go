package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when an attempt is stopped by Cancel, Reset or its context.
	ErrCancelled = errors.New("upload cancelled")
	// ErrNoSession is returned by Retry when no file has been selected.
	ErrNoSession = errors.New("no upload session")
	// ErrUploadInProgress is returned when an attempt is already running.
	ErrUploadInProgress = errors.New("upload already in progress")
	// ErrNothingToRetry is returned by Retry when the last attempt did not fail.
	ErrNothingToRetry = errors.New("last upload did not fail")
)

// ChunkUploadError is a failed upload of one chunk. The scheduler retries it
// until the attempt cap is reached.
type ChunkUploadError struct {
	Index   int
	Attempt int
	Err     error
}

func (e *ChunkUploadError) Error() string {
	return fmt.Sprintf("chunk %d attempt %d: %v", e.Index, e.Attempt, e.Err)
}

func (e *ChunkUploadError) Unwrap() error {
	return e.Err
}

// ChunksFailedError reports the chunks that exhausted their retries in one attempt.
type ChunksFailedError struct {
	Indexes []int
	Errs    []*ChunkUploadError
}

func (e *ChunksFailedError) Error() string {
	return fmt.Sprintf("%d chunk(s) failed: %v", len(e.Indexes), e.Indexes)
}

func (e *ChunksFailedError) Unwrap() []error {
	out := make([]error, len(e.Errs))
	for i, err := range e.Errs {
		out[i] = err
	}
	return out
}

// NegotiationError is a failure of the pre-upload check. The attempt is aborted.
type NegotiationError struct {
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiate: %v", e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

// MergeError is a failure to assemble chunks that were all uploaded. It is not retried.
type MergeError struct {
	Err error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge: %v", e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}
