package bcifile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bcilog/bcilog/asyncbufio"
)

// ErrBackpressure is returned by Writer.Write when the bounded record queue is
// full because the disk is not keeping up.
var ErrBackpressure = asyncbufio.ErrBackpressure

// ErrClosed is returned by operations on a closed Writer.
var ErrClosed = asyncbufio.ErrClosed

// WriteError reports a failure of the underlying file. Records is the number
// of records known to be on disk, so the file is valid up to
// HEADERLEN + Records*RECORDLEN bytes.
type WriteError struct {
	Records int64
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing records failed after %d good records: %v", e.Records, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// WriterConfig sizes the Writer's queue and flushing.
type WriterConfig struct {
	QueueDepth    int           // records held in memory before ErrBackpressure
	BufferSize    int           // bytes of write buffering in front of the file
	FlushInterval time.Duration // periodic flush of buffered records
}

// Writer serializes samples to a .bci stream. Write never blocks on the disk:
// records are queued and a goroutine owns the underlying file.
type Writer struct {
	Filename string
	Header   Header

	out       io.Writer
	aw        *asyncbufio.Writer
	closeOnce sync.Once
	closeErr  error
}

// Create creates (or truncates) filename and writes the header.
func Create(filename string, config WriterConfig) (*Writer, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, config)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%v, filename: <%v>", err, filename)
	}
	w.Filename = filename
	return w, nil
}

// NewWriter writes the header to out and returns a Writer appending records to
// it. If out is an io.Closer, Close closes it.
func NewWriter(out io.Writer, config WriterConfig) (*Writer, error) {
	w := &Writer{Header: DefaultHeader(), out: out}
	if _, err := out.Write(w.Header.Bytes()); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	w.aw = asyncbufio.NewWriterOptions(out, asyncbufio.Options{
		ChannelDepth:  config.QueueDepth,
		BufferSize:    config.BufferSize,
		FlushInterval: config.FlushInterval,
	})
	return w, nil
}

// Write queues one record. It fails with ErrBackpressure once the queue is
// full, and keeps failing that way until a Flush succeeds. A failure of the
// file itself is a *WriteError.
func (w *Writer) Write(s *Sample) error {
	_, err := w.aw.Write(AppendRecord(nil, s))
	return w.wrap(err)
}

// Flush blocks until every queued record has been handed to the file.
func (w *Writer) Flush() error {
	return w.wrap(w.aw.Flush())
}

// Close flushes the remaining records and closes the file.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		err := w.wrap(w.aw.Close())
		if f, ok := w.out.(*os.File); ok {
			if serr := f.Sync(); serr != nil && err == nil {
				err = &WriteError{Records: w.Records(), Err: serr}
			}
		}
		if c, ok := w.out.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = &WriteError{Records: w.Records(), Err: cerr}
			}
		}
		w.closeErr = err
	})
	return w.closeErr
}

// Records returns the number of records known to be written to the file.
func (w *Writer) Records() int64 {
	return w.aw.Flushed()
}

// Queued returns the number of records accepted by Write.
func (w *Writer) Queued() int64 {
	return w.aw.Queued()
}

// ValidLength is the file length implied by Records.
func (w *Writer) ValidLength() int64 {
	return HEADERLEN + w.Records()*RECORDLEN
}

func (w *Writer) wrap(err error) error {
	if err == nil || errors.Is(err, ErrBackpressure) || errors.Is(err, ErrClosed) {
		return err
	}
	return &WriteError{Records: w.Records(), Err: err}
}
