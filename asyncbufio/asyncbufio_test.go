package asyncbufio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	f, err := os.CreateTemp("", "example")
	require.NoError(t, err)
	defer os.Remove(f.Name()) // clean up

	var expected bytes.Buffer
	w := NewWriter(f, 100, time.Second)
	for i := range 100 {
		sometext := fmt.Appendf(nil, "Line of text %3d\n", i)
		expected.Write(sometext)
		if _, err := w.Write(sometext); err != nil {
			t.Fatalf("Write(%d) returned %v", i, err)
		}
		if i%25 == 19 {
			require.NoError(t, w.Flush())
		}
	}
	w.Write([]byte("Last line\n"))
	expected.WriteString("Last line\n")
	require.NoError(t, w.Close())
	f.Close()

	actual, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, expected.String(), string(actual))
	assert.Equal(t, int64(101), w.Queued())
	assert.Equal(t, int64(101), w.Flushed())

	assert.ErrorIs(t, w.Flush(), ErrClosed, "Flush after Close")
	_, err = w.Write([]byte("too late"))
	assert.ErrorIs(t, err, ErrClosed, "Write after Close")
}

func TestCloseTwice(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 100, time.Second)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestPeriodicFlush(t *testing.T) {
	var buf safeBuffer
	w := NewWriter(&buf, 10, 10*time.Millisecond)
	defer w.Close()
	w.Write([]byte("tick"))
	assert.Eventually(t, func() bool { return buf.String() == "tick" },
		time.Second, 5*time.Millisecond, "ticker did not flush")
}

type safeBuffer struct {
	sync.Mutex
	buf bytes.Buffer
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.Lock()
	defer s.Unlock()
	return s.buf.Write(p)
}

func (s *safeBuffer) String() string {
	s.Lock()
	defer s.Unlock()
	return s.buf.String()
}

// stallWriter blocks every Write until release is closed.
type stallWriter struct {
	release chan struct{}
	buf     bytes.Buffer
}

func (s *stallWriter) Write(p []byte) (int, error) {
	<-s.release
	return s.buf.Write(p)
}

func TestBackpressure(t *testing.T) {
	const depth = 4
	sink := &stallWriter{release: make(chan struct{})}
	// A buffer smaller than one item makes every item go straight to the sink.
	w := NewWriterOptions(sink, Options{ChannelDepth: depth, BufferSize: 16, FlushInterval: time.Hour})
	defer w.Close()

	item := bytes.Repeat([]byte{'x'}, 32)
	accepted := 0
	var err error
	for i := 0; i < depth+2; i++ {
		if _, err = w.Write(item); err != nil {
			break
		}
		accepted++
	}
	require.ErrorIs(t, err, ErrBackpressure)
	assert.True(t, w.Stalled())
	assert.GreaterOrEqual(t, accepted, depth)
	assert.LessOrEqual(t, accepted, depth+1)

	// Stays refused until flushed, even though nothing has changed.
	_, err = w.Write(item)
	assert.ErrorIs(t, err, ErrBackpressure)

	close(sink.release)
	require.NoError(t, w.Flush())
	assert.False(t, w.Stalled())
	_, err = w.Write(item)
	assert.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, (accepted+1)*len(item), sink.buf.Len())
	assert.Equal(t, int64(accepted+1), w.Flushed())
}

type failWriter struct{ n int }

func (f *failWriter) Write(p []byte) (int, error) {
	if f.n == 0 {
		return 0, errors.New("disk full")
	}
	f.n--
	return len(p), nil
}

func TestWriteError(t *testing.T) {
	w := NewWriterOptions(&failWriter{n: 2}, Options{BufferSize: 16})
	item := bytes.Repeat([]byte{'y'}, 32)
	for i := 0; i < 3; i++ {
		_, err := w.Write(item)
		require.NoError(t, err)
	}
	err := w.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.LessOrEqual(t, w.Flushed(), int64(2))

	_, err = w.Write(item)
	assert.Error(t, err, "Write after a failed write")
	assert.Error(t, w.Close())
}
