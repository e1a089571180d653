// Package asyncbufio provides a bounded, asynchronous writer: callers hand it
// byte slices without blocking and a goroutine owns the slow underlying writer.
package asyncbufio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBackpressure is returned by Write when the queue is full. The Writer then
// refuses all writes until a Flush succeeds.
var ErrBackpressure = errors.New("asyncbufio: write queue is full")

// ErrClosed is returned by operations on a closed Writer.
var ErrClosed = errors.New("asyncbufio: writer is closed")

// Writer provides asynchronous writing to an underlying io.Writer using a bounded channel.
type Writer struct {
	writer        *bufio.Writer // Buffered writer: this does the writing
	flushNow      chan struct{} // Channel to signal the underlying writer to flush itself
	flushComplete chan error    // Channel to report that a requested flush is complete
	quit          chan struct{} // Closed by Close to stop the writeLoop
	done          chan struct{} // Closed by the writeLoop when it exits
	datachannel   chan []byte   // Channel to hold data before writing it
	flushInterval time.Duration // Interval for flushing the writer periodically
	closeOnce     sync.Once

	stalled atomic.Bool  // set on ErrBackpressure, cleared by a successful Flush
	queued  atomic.Int64 // items accepted by Write
	flushed atomic.Int64 // items known to have reached the underlying writer

	errLock sync.Mutex
	err     error // first error from the underlying writer
}

// Options tune a Writer. Zero values select the defaults.
type Options struct {
	ChannelDepth  int           // maximum queued items (default 1024)
	BufferSize    int           // bufio buffer size in bytes (default 64 kB)
	FlushInterval time.Duration // periodic flush (default 1 s)
}

// NewWriter creates a new Writer instance with the given channel depth and flush interval.
func NewWriter(w io.Writer, channelDepth int, flushInterval time.Duration) *Writer {
	return NewWriterOptions(w, Options{ChannelDepth: channelDepth, FlushInterval: flushInterval})
}

// NewWriterOptions creates a new Writer instance configured by opt.
func NewWriterOptions(w io.Writer, opt Options) *Writer {
	if opt.ChannelDepth <= 0 {
		opt.ChannelDepth = 1024
	}
	if opt.BufferSize <= 0 {
		opt.BufferSize = 64 * 1024
	}
	if opt.FlushInterval <= 0 {
		opt.FlushInterval = time.Second
	}
	aw := &Writer{
		writer:        bufio.NewWriterSize(w, opt.BufferSize),
		datachannel:   make(chan []byte, opt.ChannelDepth),
		flushNow:      make(chan struct{}),
		flushComplete: make(chan error),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		flushInterval: opt.FlushInterval,
	}

	go aw.writeLoop()
	return aw
}

// Write queues p for later writing and never blocks. The caller must not modify
// p afterwards. Write fails with ErrBackpressure when the queue is full (and
// keeps failing until a Flush succeeds), or with the first error the
// underlying writer returned.
func (aw *Writer) Write(p []byte) (int, error) {
	if aw.isClosed() {
		return 0, ErrClosed
	}
	if err := aw.Err(); err != nil {
		return 0, err
	}
	if aw.stalled.Load() {
		return 0, ErrBackpressure
	}
	select {
	case aw.datachannel <- p:
		aw.queued.Add(1)
		return len(p), nil
	default:
		aw.stalled.Store(true)
		return 0, ErrBackpressure
	}
}

// Flush writes everything queued so far to the underlying writer. It blocks
// until the flush is complete, and clears the stalled state if it succeeds.
func (aw *Writer) Flush() error {
	select {
	case aw.flushNow <- struct{}{}:
	case <-aw.done:
		return ErrClosed
	}
	err := <-aw.flushComplete
	if err == nil {
		aw.stalled.Store(false)
	}
	return err
}

// Close flushes remaining data and waits for the writeLoop to finish. It does
// not close the underlying writer. Calling Close more than once is harmless.
func (aw *Writer) Close() error {
	aw.closeOnce.Do(func() { close(aw.quit) })
	<-aw.done
	return aw.Err()
}

// Err returns the first error reported by the underlying writer, if any.
func (aw *Writer) Err() error {
	aw.errLock.Lock()
	defer aw.errLock.Unlock()
	return aw.err
}

// Stalled reports whether the writer is refusing writes after a full queue.
func (aw *Writer) Stalled() bool {
	return aw.stalled.Load()
}

// Queued returns the number of items accepted by Write.
func (aw *Writer) Queued() int64 {
	return aw.queued.Load()
}

// Flushed returns the number of items known to be in the underlying writer,
// i.e. written and then flushed without error.
func (aw *Writer) Flushed() int64 {
	return aw.flushed.Load()
}

func (aw *Writer) isClosed() bool {
	select {
	case <-aw.quit:
		return true
	default:
		return false
	}
}

func (aw *Writer) setErr(err error) {
	aw.errLock.Lock()
	defer aw.errLock.Unlock()
	if aw.err == nil {
		aw.err = fmt.Errorf("asyncbufio: %w", err)
	}
}

// writeLoop is a goroutine that continuously moves data from the channel to the writer.
func (aw *Writer) writeLoop() {
	ticker := time.NewTicker(aw.flushInterval) // Ticker to flush periodically
	defer ticker.Stop()
	defer close(aw.done)

	var pending int64 // items in aw.writer not yet flushed
	for {
		select {
		case data := <-aw.datachannel:
			aw.write(data, &pending)

		case <-aw.flushNow:
			aw.flush(&pending)
			// Signal whoever requested this that flushing is done
			aw.flushComplete <- aw.Err()

		case <-aw.quit:
			aw.flush(&pending)
			return

		case <-ticker.C:
			aw.flush(&pending)
		}
	}
}

func (aw *Writer) write(data []byte, pending *int64) {
	if _, err := aw.writer.Write(data); err != nil {
		aw.setErr(err)
		return
	}
	*pending++
}

func (aw *Writer) flush(pending *int64) {
	// This loop empties the aw.datachannel channel before finally
	// calling the underlying writer's Flush() method
	for {
		select {
		case data := <-aw.datachannel:
			aw.write(data, pending)
		default:
			if err := aw.writer.Flush(); err != nil {
				aw.setErr(err)
				return
			}
			aw.flushed.Add(*pending)
			*pending = 0
			return
		}
	}
}
