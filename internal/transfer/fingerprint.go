package transfer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
)

// Fingerprint computes the MD5 hex digest of the whole file, streaming it chunk
// by chunk in index order. onProgress, if set, receives round((i+1)/N*100)
// after each chunk.
func Fingerprint(ctx context.Context, file File, chunkSize int64, onProgress func(percent int)) (string, error) {
	chunks, err := Split(file.Size(), chunkSize)
	if err != nil {
		return "", err
	}
	reader := NewChunkReader(file, chunkSize)
	h := md5.New()
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		buf, release, err := reader.Read(c)
		if err != nil {
			return "", err
		}
		h.Write(buf)
		release()
		if onProgress != nil {
			onProgress(hashPercent(i+1, len(chunks)))
		}
	}
	if len(chunks) == 0 && onProgress != nil {
		onProgress(100)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashPercent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// HashResult is the final message of a HashJob.
type HashResult struct {
	Fingerprint string
	Err         error
}

// HashJob computes a fingerprint on its own goroutine. It shares no state with
// the caller beyond the progress channel and the result returned by Wait.
type HashJob struct {
	progress chan int
	done     chan struct{}
	res      HashResult
}

// StartFingerprint launches a fingerprint worker for file.
func StartFingerprint(ctx context.Context, file File, chunkSize int64) *HashJob {
	job := &HashJob{
		progress: make(chan int, 16),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(job.done)
		defer close(job.progress)
		fp, err := Fingerprint(ctx, file, chunkSize, job.report)
		if err != nil {
			err = fmt.Errorf("fingerprint %s: %w", file.Name(), err)
		}
		job.res = HashResult{Fingerprint: fp, Err: err}
	}()
	return job
}

// report queues p without blocking. When the consumer lags the oldest queued
// value is dropped, so the newest value, and finally 100, always arrives.
func (j *HashJob) report(p int) {
	for {
		select {
		case j.progress <- p:
			return
		default:
		}
		select {
		case <-j.progress:
		default:
		}
	}
}

// Progress yields hashing percentages and is closed when hashing finishes.
func (j *HashJob) Progress() <-chan int {
	return j.progress
}

// Wait blocks until the worker has finished.
func (j *HashJob) Wait() (string, error) {
	<-j.done
	return j.res.Fingerprint, j.res.Err
}
