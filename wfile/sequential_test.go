package wfile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialFile_ReadAdvancesCursor(t *testing.T) {
	f := newTestFile(t, 4096, 4096*8)
	w := NewWritableFile(f)
	require.NoError(t, w.Append(context.Background(), make([]byte, 4096*2)))
	require.NoError(t, w.Close(context.Background()))

	s := NewSequentialFile(f)
	buf := make([]byte, 4096)

	n, err := s.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)

	n, err = s.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)
}

func TestSequentialFile_SkipAdvancesCursorWithoutReading(t *testing.T) {
	f := newTestFile(t, 4096, 4096*8)
	w := NewWritableFile(f)
	require.NoError(t, w.Append(context.Background(), make([]byte, 4096*2)))
	require.NoError(t, w.Close(context.Background()))

	s := NewSequentialFile(f)
	s.Skip(4096)

	buf := make([]byte, 4096)
	n, err := s.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)
}

func TestSequentialFile_UniqueIDMatchesFile(t *testing.T) {
	f := newTestFile(t, 4096, 4096*8)
	s := NewSequentialFile(f)
	assert.Equal(t, f.UniqueID(), s.UniqueID())
}
