package bcifile

import (
	"bufio"
	"errors"
	"io"
	"os"
)

// Reader reads samples from a .bci file. Any trailing partial record left by
// an unclean shutdown is ignored.
type Reader struct {
	Header        Header
	TrailingBytes int // length of an incomplete final record, once reached

	r       *bufio.Reader
	file    *os.File
	buf     [RECORDLEN]byte
	nread   int
	stopErr error
}

// OpenReader opens fileName and parses its header.
func OpenReader(fileName string) (*Reader, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader parses the header from in and returns a Reader for its records.
func NewReader(in io.Reader) (*Reader, error) {
	r := &Reader{r: bufio.NewReader(in)}
	hbuf := make([]byte, HEADERLEN)
	if _, err := io.ReadFull(r.r, hbuf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.New("file is shorter than a .bci header")
		}
		return nil, err
	}
	h, err := ParseHeader(hbuf)
	if err != nil {
		return nil, err
	}
	r.Header = h
	return r, nil
}

// Close closes the underlying file, if the Reader opened it.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Next returns the next complete record, or io.EOF after the last one.
func (r *Reader) Next() (Sample, error) {
	if r.stopErr != nil {
		return Sample{}, r.stopErr
	}
	n, err := io.ReadFull(r.r, r.buf[:])
	switch {
	case err == nil:
		r.nread++
		return ParseRecord(r.buf[:])
	case errors.Is(err, io.ErrUnexpectedEOF):
		r.TrailingBytes = n
		r.stopErr = io.EOF
	default:
		r.stopErr = err
	}
	return Sample{}, r.stopErr
}

// Records returns how many complete records Next has returned.
func (r *Reader) Records() int {
	return r.nread
}

// ReadAll returns every remaining complete record.
func (r *Reader) ReadAll() ([]Sample, error) {
	var out []Sample
	for {
		s, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}
