package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/bcilog/bcilog/bcifile"
)

func TestSummarize(t *testing.T) {
	samples := []bcifile.Sample{
		{Timestamp: 4294967290},
		{Timestamp: 4294967295, Flags: bcifile.GapBefore},
		{Timestamp: 3, Flags: bcifile.GapBefore | bcifile.Partial},
		{Timestamp: 4},
	}
	s := summarize(samples)
	assert.Equal(t, 4, s.records)
	assert.Equal(t, 1, s.partial)
	assert.Equal(t, 2, s.gaps)
	assert.Equal(t, 1, s.rollovers)
	assert.Equal(t, uint32(4294967290), s.first)
	assert.Equal(t, uint32(4), s.last)
}

func TestSummaryRate(t *testing.T) {
	rate, ok := summarize([]bcifile.Sample{{Timestamp: 1000}, {Timestamp: 1000}}).rate()
	assert.False(t, ok, "all records in one millisecond")
	assert.Zero(t, rate)
	_, ok = summarize([]bcifile.Sample{{Timestamp: 7}}).rate()
	assert.False(t, ok, "single record")
	_, ok = summarize([]bcifile.Sample{{Timestamp: 4294967295}, {Timestamp: 1}}).rate()
	assert.False(t, ok, "rollover")

	rate, ok = summarize([]bcifile.Sample{{Timestamp: 1000}, {Timestamp: 1001}, {Timestamp: 1002}}).rate()
	assert.True(t, ok)
	assert.Equal(t, 1000.0, rate)
}

func TestReadFileNpy(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "x.bci")
	w, err := bcifile.Create(fname, bcifile.WriterConfig{})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		s := bcifile.Sample{Timestamp: uint32(1000 + i)}
		for c := range s.Channels {
			s.Channels[c] = int32(i*100 + c)
		}
		require.NoError(t, w.Write(&s))
	}
	require.NoError(t, w.Close())

	npyname := filepath.Join(dir, "x.npy")
	require.NoError(t, readFile(fname, 2, npyname))

	f, err := os.Open(npyname)
	require.NoError(t, err)
	defer f.Close()
	var m mat.Dense
	require.NoError(t, npyio.Read(f, &m))
	r, c := m.Dims()
	assert.Equal(t, 10, r)
	assert.Equal(t, bcifile.NCHAN, c)
	assert.Equal(t, 905.0, m.At(9, 5))

	assert.Error(t, readFile(filepath.Join(dir, "missing.bci"), 0, ""))
}
