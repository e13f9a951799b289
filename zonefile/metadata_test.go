package zonefile

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/zonefs/zerrors"
)

func TestRecord_EncodeDecodeRoundTrip(t *testing.T) {
	cases := []*Record{
		{Tag: tagFileCreate, FileID: 1, Filename: "000001.sst", ZoneID: 3, Level: 2, Lifetime: 1},
		{Tag: tagExtentAppend, FileID: 1, ZoneID: 3, Start: 4096, Length: 4096},
		{Tag: tagExtentInvalidate, FileID: 1, ZoneID: 3, Start: 4096, Length: 4096},
		{Tag: tagFileRename, FileID: 1, Filename: "000001.sst", NewName: "000001.sst.renamed"},
		{Tag: tagFileDelete, FileID: 1},
		{Tag: tagSnapshot, FileID: 1, Filename: "000001.sst", FileSize: 8192, Level: 5},
	}

	for _, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, want.EncodeTo(&buf))

		got, err := DecodeFrom(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeFrom_EmptyReaderReturnsEOF(t *testing.T) {
	_, err := DecodeFrom(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestDecodeFrom_TornRecordIsCorruption(t *testing.T) {
	r := &Record{Tag: tagFileCreate, FileID: 1, Filename: "a.sst"}
	var buf bytes.Buffer
	require.NoError(t, r.EncodeTo(&buf))

	torn := buf.Bytes()[:buf.Len()-2]
	_, err := DecodeFrom(bytes.NewReader(torn))
	assert.ErrorIs(t, err, zerrors.ErrCorruption)
}

func TestDecodeFrom_UnknownTagIsCorruption(t *testing.T) {
	r := &Record{Tag: tagFileCreate, FileID: 1, Filename: "a.sst"}
	var buf bytes.Buffer
	require.NoError(t, r.EncodeTo(&buf))

	raw := buf.Bytes()
	raw[4] = 0xFF // tag byte follows the 4-byte length prefix
	_, err := DecodeFrom(bytes.NewReader(raw))
	assert.ErrorIs(t, err, zerrors.ErrCorruption)
}

func TestRecord_MultipleRecordsReadInOrder(t *testing.T) {
	var buf bytes.Buffer
	r1 := &Record{Tag: tagFileCreate, FileID: 1, Filename: "a.sst"}
	r2 := &Record{Tag: tagFileDelete, FileID: 1}
	require.NoError(t, r1.EncodeTo(&buf))
	require.NoError(t, r2.EncodeTo(&buf))

	got1, err := DecodeFrom(&buf)
	require.NoError(t, err)
	assert.Equal(t, r1, got1)

	got2, err := DecodeFrom(&buf)
	require.NoError(t, err)
	assert.Equal(t, r2, got2)

	_, err = DecodeFrom(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestMemJournal_RecordsReturnsSnapshotInOrder(t *testing.T) {
	j := NewMemJournal()
	r1 := &Record{Tag: tagFileCreate, FileID: 1, Filename: "a.sst"}
	r2 := &Record{Tag: tagExtentAppend, FileID: 1, ZoneID: 2, Start: 0, Length: 4096}

	require.NoError(t, j.WriteRecord(r1))
	require.NoError(t, j.WriteRecord(r2))
	require.NoError(t, j.Sync())

	records := j.Records()
	require.Len(t, records, 2)
	assert.Same(t, r1, records[0])
	assert.Same(t, r2, records[1])
}
