package wfile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/zonefs/zerrors"
)

func TestWritableFile_AppendGrowsFile(t *testing.T) {
	f := newTestFile(t, 4096, 4096*8)
	w := NewWritableFile(f)

	require.NoError(t, w.Append(context.Background(), make([]byte, 4096)))
	assert.EqualValues(t, 4096, f.FileSize())
}

func TestWritableFile_PositionedAppendRequiresCurrentEOF(t *testing.T) {
	f := newTestFile(t, 4096, 4096*8)
	w := NewWritableFile(f)

	require.NoError(t, w.PositionedAppend(context.Background(), make([]byte, 100), 0))

	err := w.PositionedAppend(context.Background(), make([]byte, 100), 0)
	assert.ErrorIs(t, err, zerrors.ErrNotSupported)
}

func TestWritableFile_TruncateOnlyAcceptsCurrentSize(t *testing.T) {
	f := newTestFile(t, 4096, 4096*8)
	w := NewWritableFile(f)
	require.NoError(t, w.Append(context.Background(), make([]byte, 100)))

	assert.NoError(t, w.Truncate(context.Background(), 100))
	assert.ErrorIs(t, w.Truncate(context.Background(), 10), zerrors.ErrNotSupported)
}

func TestWritableFile_SyncFlushesTailWithoutErasingIt(t *testing.T) {
	f := newTestFile(t, 4096, 4096*8)
	w := NewWritableFile(f)
	require.NoError(t, w.Append(context.Background(), make([]byte, 100)))

	require.NoError(t, w.Sync(context.Background()))
	assert.Len(t, f.Extents(), 1)
	assert.EqualValues(t, 4096, f.FileSize())
}

func TestWritableFile_CloseReleasesZoneHold(t *testing.T) {
	f := newTestFile(t, 4096, 4096*8)
	w := NewWritableFile(f)
	require.NoError(t, w.Append(context.Background(), make([]byte, 100)))

	require.NoError(t, w.Close(context.Background()))
	assert.Nil(t, f.ActiveZone())
}

func TestWritableFile_SetMinMaxKeyAndLevelForwardsToFile(t *testing.T) {
	f := newTestFile(t, 4096, 4096*8)
	w := NewWritableFile(f)

	w.SetMinMaxKeyAndLevel([]byte("a"), []byte("z"), 3)
	smallest, largest := f.KeyRange()
	assert.Equal(t, []byte("a"), smallest)
	assert.Equal(t, []byte("z"), largest)
	assert.EqualValues(t, 3, f.Level())
}

func TestWritableFile_UniqueIDMatchesFile(t *testing.T) {
	f := newTestFile(t, 4096, 4096*8)
	w := NewWritableFile(f)
	assert.Equal(t, f.UniqueID(), w.UniqueID())
}
