package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcilog/bcilog"
	"github.com/bcilog/bcilog/bcifile"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	ce := bcilog.NewControlError(bcilog.Rejected, "configure", errors.New("no board"))
	assert.Equal(t, 3, exitCode(ce))
	assert.Equal(t, 3, exitCode(fmt.Errorf("session: %w", ce)))
	assert.Equal(t, 1, exitCode(&bcifile.WriteError{Records: 10, Err: errors.New("disk full")}))
	assert.Equal(t, 1, exitCode(bcifile.ErrBackpressure))
}

func TestMakeFileExist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	fullname, err := makeFileExist(dir, "config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), fullname)
	assert.FileExists(t, fullname)

	// An existing file is left alone.
	require.NoError(t, os.WriteFile(fullname, []byte("board: {}\n"), 0664))
	_, err = makeFileExist(dir, "config.yaml")
	require.NoError(t, err)
	contents, err := os.ReadFile(fullname)
	require.NoError(t, err)
	assert.Equal(t, "board: {}\n", string(contents))
}
