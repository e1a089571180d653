package bcifile

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSample(i int) *Sample {
	s := &Sample{Timestamp: uint32(1000 + i)}
	for c := range s.Channels {
		s.Channels[c] = int32((i+1)*(c+1)) * (1 - 2*int32(c%2))
	}
	if i%3 == 1 {
		s.Flags = GapBefore
	}
	if i%5 == 4 {
		s.Flags |= Partial
	}
	return s
}

func TestHeader(t *testing.T) {
	b := DefaultHeader().Bytes()
	require.Len(t, b, HEADERLEN)
	assert.Equal(t, []byte("BCIL"), b[:4])

	h, err := ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, DefaultHeader(), h)
	assert.EqualValues(t, 16, h.Nchan)
	assert.EqualValues(t, 2000, h.SampleRate)
	assert.EqualValues(t, 53, h.RecordLen)

	var headertests = []struct {
		name   string
		mangle func([]byte)
	}{
		{"magic", func(b []byte) { b[0] = 'X' }},
		{"version", func(b []byte) { b[5] = 9 }},
		{"nchan", func(b []byte) { b[7] = 8 }},
		{"value length", func(b []byte) { b[12] = 4 }},
		{"record length", func(b []byte) { b[13] = 70 }},
	}
	for _, ht := range headertests {
		bad := DefaultHeader().Bytes()
		ht.mangle(bad)
		if _, err := ParseHeader(bad); err == nil {
			t.Errorf("ParseHeader with bad %s succeeded, want error", ht.name)
		}
	}
	if _, err := ParseHeader(b[:10]); err == nil {
		t.Errorf("ParseHeader of a short header succeeded, want error")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	s := Sample{Timestamp: 0xfedcba98, Flags: GapBefore | Partial}
	for i := range s.Channels {
		s.Channels[i] = int32(i*100000) - 800000
	}
	s.Channels[0] = -(1 << 23)
	s.Channels[15] = 1<<23 - 1

	b := AppendRecord([]byte{0xee}, &s)
	require.Len(t, b, 1+RECORDLEN)
	assert.Equal(t, byte(0xee), b[0])
	assert.Equal(t, []byte{0xfe, 0xdc, 0xba, 0x98}, b[1:5], "timestamp is big-endian")
	assert.Equal(t, byte(0x03), b[RECORDLEN])

	got, err := ParseRecord(b[1:])
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = ParseRecord(b[1:RECORDLEN])
	assert.Error(t, err)
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "none", Flags(0).String())
	assert.Equal(t, "gap_before", GapBefore.String())
	assert.Equal(t, "gap_before|partial", (GapBefore | Partial).String())
	assert.Equal(t, "partial|0x80", (Partial | 0x80).String())
	assert.True(t, (GapBefore | Partial).Partial())
	assert.False(t, GapBefore.Partial())
}

func TestWriteRead(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "run.bci")
	w, err := Create(fname, WriterConfig{QueueDepth: 64, FlushInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	const nrec = 500
	var want []Sample
	for i := 0; i < nrec; i++ {
		s := testSample(i)
		want = append(want, *s)
		require.NoError(t, w.Write(s))
		if i%50 == 49 {
			require.NoError(t, w.Flush())
		}
	}
	require.NoError(t, w.Close())
	assert.EqualValues(t, nrec, w.Records())
	assert.EqualValues(t, HEADERLEN+nrec*RECORDLEN, w.ValidLength())
	assert.ErrorIs(t, w.Write(testSample(0)), ErrClosed)
	assert.NoError(t, w.Close(), "second Close")

	info, err := os.Stat(fname)
	require.NoError(t, err)
	assert.EqualValues(t, w.ValidLength(), info.Size())

	r, err := OpenReader(fname)
	require.NoError(t, err)
	defer r.Close()
	got, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, nrec, r.Records())
	assert.Zero(t, r.TrailingBytes)
}

// A crash can leave part of a record at the end; readers stop before it.
func TestReadTruncated(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(DefaultHeader().Bytes())
	for i := 0; i < 3; i++ {
		buf.Write(AppendRecord(nil, testSample(i)))
	}
	full := buf.Bytes()

	for cut := 0; cut < RECORDLEN; cut++ {
		data := full[:len(full)-cut]
		r, err := NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		got, err := r.ReadAll()
		require.NoError(t, err)
		wantN := 3
		wantTrailing := 0
		if cut > 0 {
			wantN = 2
			wantTrailing = RECORDLEN - cut
		}
		assert.Len(t, got, wantN, "cut %d bytes", cut)
		assert.Equal(t, wantTrailing, r.TrailingBytes, "cut %d bytes", cut)
		_, err = r.Next()
		assert.Equal(t, io.EOF, err)
	}
}

func TestCannotOpenNonBCI(t *testing.T) {
	fileName := "bcifile.go"
	if _, err := OpenReader(fileName); err == nil {
		t.Errorf("Opened non-BCI file '%s' without error, expected error", fileName)
	}
	fileName = "doesnt exist and can\not exist"
	if _, err := OpenReader(fileName); err == nil {
		t.Errorf("Opened non-existent file '%s' without error, expected error", fileName)
	}
	if _, err := NewReader(bytes.NewReader([]byte("BCIL"))); err == nil {
		t.Errorf("NewReader on a short header succeeded, want error")
	}
	if _, err := Create(filepath.Join(t.TempDir(), "no", "such", "dir.bci"), WriterConfig{}); err == nil {
		t.Errorf("Create in a missing directory succeeded, want error")
	}
}

type stallWriter struct {
	release chan struct{}
	buf     bytes.Buffer
	armed   bool
}

func (s *stallWriter) Write(p []byte) (int, error) {
	if s.armed {
		<-s.release
	}
	return s.buf.Write(p)
}

func TestWriterBackpressure(t *testing.T) {
	sink := &stallWriter{release: make(chan struct{})}
	w, err := NewWriter(sink, WriterConfig{QueueDepth: 8, BufferSize: 1, FlushInterval: time.Hour})
	require.NoError(t, err)
	sink.armed = true // header went through; now stall the disk

	var werr error
	for i := 0; i < 20 && werr == nil; i++ {
		werr = w.Write(testSample(i))
	}
	require.ErrorIs(t, werr, ErrBackpressure)
	assert.ErrorIs(t, w.Write(testSample(0)), ErrBackpressure, "writes stay refused until flushed")

	close(sink.release)
	require.NoError(t, w.Flush())
	assert.NoError(t, w.Write(testSample(1)))
	require.NoError(t, w.Close())
	assert.Equal(t, HEADERLEN+int(w.Records())*RECORDLEN, sink.buf.Len())
}

type brokenDisk struct{ ok int }

func (b *brokenDisk) Write(p []byte) (int, error) {
	if b.ok <= 0 {
		return 0, errors.New("I/O error")
	}
	b.ok--
	return len(p), nil
}

func TestWriterIOError(t *testing.T) {
	_, err := NewWriter(&brokenDisk{}, WriterConfig{})
	assert.Error(t, err, "header write failure")

	// Header plus two records succeed, then the disk fails.
	w, err := NewWriter(&brokenDisk{ok: 3}, WriterConfig{BufferSize: 1, FlushInterval: time.Hour})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write(testSample(i)))
	}
	err = w.Flush()
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.LessOrEqual(t, we.Records, int64(2))
	assert.Contains(t, we.Error(), "I/O error")

	err = w.Write(testSample(3))
	assert.ErrorAs(t, err, &we)
	assert.ErrorAs(t, w.Close(), &we)
}
