package zonefile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/INLOpen/zonefs/zerrors"
)

// recordTag identifies the kind of a metadata journal record. Unknown
// tags encountered during recovery are a hard corruption error: the
// journal has no forward-compatible skip mechanism, mirroring the
// teacher's WAL which also refuses to guess at unrecognized entries.
type recordTag uint8

const (
	tagFileCreate recordTag = iota + 1
	tagExtentAppend
	tagExtentInvalidate
	tagFileRename
	tagFileDelete
	tagSnapshot
)

// Record is one entry appended to the metadata journal. Not every field
// is meaningful for every Tag; EncodeTo/DecodeFrom write and read every
// field regardless, leaving the unused ones at their zero values.
type Record struct {
	Tag       recordTag
	FileID    uint64
	Filename  string
	ZoneID    uint32
	Start     uint64
	Length    uint32
	Lifetime  int32
	Level     int32
	FileSize  uint64
	NewName   string
}

// EncodeTo appends the wire encoding of r to w. The format is a 4-byte
// big-endian length prefix followed by a payload of the tag byte and
// the field list, the same
// length-prefix-then-payload shape the teacher's WAL uses for its entry
// bodies so a corrupt trailing record is detectable by a short read
// rather than misparsed as a different record.
func (r *Record) EncodeTo(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteByte(byte(r.Tag))
	writeUvarint(&buf, r.FileID)
	writeString(&buf, r.Filename)
	writeUvarint(&buf, uint64(r.ZoneID))
	writeUvarint(&buf, r.Start)
	writeUvarint(&buf, uint64(r.Length))
	writeUvarint(&buf, uint64(r.Lifetime))
	writeUvarint(&buf, uint64(r.Level))
	writeUvarint(&buf, r.FileSize)
	writeString(&buf, r.NewName)

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// DecodeFrom reads one record previously written by EncodeTo. It
// returns io.EOF only when called exactly at a record boundary with no
// more data; a partial record at EOF is reported as ErrCorruption so
// callers can distinguish a clean end of journal from a torn write.
func DecodeFrom(r io.Reader) (*Record, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, zerrors.ErrCorruption
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, zerrors.ErrCorruption
	}

	br := bufio.NewReader(bytes.NewReader(body))
	tagByte, err := br.ReadByte()
	if err != nil {
		return nil, zerrors.ErrCorruption
	}
	rec := &Record{Tag: recordTag(tagByte)}
	if rec.Tag < tagFileCreate || rec.Tag > tagSnapshot {
		return nil, zerrors.ErrCorruption
	}

	var errs [9]error
	rec.FileID, errs[0] = binary.ReadUvarint(br)
	rec.Filename, errs[1] = readString(br)
	var zoneID, length, lifetime, level uint64
	zoneID, errs[2] = binary.ReadUvarint(br)
	rec.Start, errs[3] = binary.ReadUvarint(br)
	length, errs[4] = binary.ReadUvarint(br)
	lifetime, errs[5] = binary.ReadUvarint(br)
	level, errs[6] = binary.ReadUvarint(br)
	rec.FileSize, errs[7] = binary.ReadUvarint(br)
	rec.NewName, errs[8] = readString(br)
	for _, e := range errs {
		if e != nil {
			return nil, zerrors.ErrCorruption
		}
	}
	rec.ZoneID = uint32(zoneID)
	rec.Length = uint32(length)
	rec.Lifetime = int32(lifetime)
	rec.Level = int32(level)
	return rec, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bufio.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// MetadataWriter persists Records durably. The zone core depends only
// on this narrow interface; where the journal itself lives (a reserved
// metadata zone on the real device, a plain file in tests) is the
// caller's concern.
type MetadataWriter interface {
	WriteRecord(r *Record) error
	Sync() error
}

// MemJournal is an in-memory MetadataWriter for tests: it keeps every
// record appended, in order, with no durability guarantee.
type MemJournal struct {
	mu      sync.Mutex
	records []*Record
}

// NewMemJournal returns an empty MemJournal.
func NewMemJournal() *MemJournal {
	return &MemJournal{}
}

func (j *MemJournal) WriteRecord(r *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, r)
	return nil
}

func (j *MemJournal) Sync() error { return nil }

// Records returns a snapshot of every record appended so far.
func (j *MemJournal) Records() []*Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*Record, len(j.records))
	copy(out, j.records)
	return out
}
