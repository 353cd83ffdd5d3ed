package termio

import (
	"io"
	"os"
	"sync"
	"time"
)

const queueSize = 1024

// writer queues writes to a file and performs them on its own goroutine so a
// slow terminal never stalls upload or stream callbacks.
type writer struct {
	file  *os.File
	ch    chan []byte
	flush chan chan struct{}
}

func (w *writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	w.ch <- buf
	return len(p), nil
}

func (w *writer) File() *os.File {
	return w.file
}

func (w *writer) run() {
	for {
		select {
		case buf := <-w.ch:
			_, _ = w.file.Write(buf)
		case ack := <-w.flush:
			// Drain what was queued before the flush request.
			for n := len(w.ch); n > 0; n-- {
				_, _ = w.file.Write(<-w.ch)
			}
			close(ack)
		}
	}
}

// sync waits until every write queued before the call has reached the file,
// or timeout elapses.
func (w *writer) sync(timeout time.Duration) {
	ack := make(chan struct{})
	select {
	case w.flush <- ack:
	case <-time.After(timeout):
		return
	}
	select {
	case <-ack:
	case <-time.After(timeout):
	}
}

type manager struct {
	once   sync.Once
	stdout *writer
	stderr *writer
}

var global manager

func Init() {
	global.once.Do(func() {
		global.stdout = newWriter(os.Stdout)
		global.stderr = newWriter(os.Stderr)
	})
}

func newWriter(f *os.File) *writer {
	w := &writer{
		file:  f,
		ch:    make(chan []byte, queueSize),
		flush: make(chan chan struct{}),
	}
	go w.run()
	return w
}

func Stdout() io.Writer {
	Init()
	return global.stdout
}

func Stderr() io.Writer {
	Init()
	return global.stderr
}

func StdoutFile() *os.File {
	Init()
	return global.stdout.file
}

func StderrFile() *os.File {
	Init()
	return global.stderr.file
}

// Flush blocks until queued output is written, waiting at most a second per
// stream. Call it before os.Exit.
func Flush() {
	Init()
	global.stdout.sync(time.Second)
	global.stderr.sync(time.Second)
}

// IsTTY reports whether f is a character device.
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
