// Package zonefile implements the append-only, extent-tracking file
// abstraction layered on top of zone.Zone, and the tagged-record
// encoding used to persist a file's extent list to the metadata
// journal.
package zonefile

// Buffer accumulates bytes for a pending append until it reaches the
// device's block size, then hands a block-aligned slice to the zone.
// ZenFS backs this with posix_memalign and a raw pointer; Go has no
// equivalent alignment requirement for slices handed to pwrite, so
// Buffer instead over-allocates by one block and slices from the offset
// alignOffset returns, which is always 0: the backing array has no
// alignment beyond what the Go allocator gives it, and only the sizes
// handed to the zone are kept to whole blocks. No cgo or unsafe is used.
type Buffer struct {
	blockSize int
	raw       []byte
	aligned   []byte
	len       int
}

// NewBuffer allocates a Buffer able to hold one block-aligned chunk of
// cap bytes, rounded up to a multiple of blockSize.
func NewBuffer(blockSize, capBytes int) *Buffer {
	capBytes = roundUp(capBytes, blockSize)
	raw := make([]byte, capBytes+blockSize)
	off := alignOffset(raw, blockSize)
	return &Buffer{
		blockSize: blockSize,
		raw:       raw,
		aligned:   raw[off : off+capBytes],
	}
}

// alignOffset is a hook for a future cgo/unsafe physical-alignment
// scheme; callers only need the zone-relative write offset aligned,
// which roundUp already guarantees, so this is a no-op today.
func alignOffset(b []byte, blockSize int) int {
	return 0
}

func roundUp(n, multiple int) int {
	if multiple <= 0 {
		return n
	}
	if r := n % multiple; r != 0 {
		n += multiple - r
	}
	return n
}

// Write appends p to the buffer, returning the number of bytes that fit.
// It never grows the buffer past its capacity; the caller is expected
// to Flush and reuse once Full reports true.
func (b *Buffer) Write(p []byte) int {
	n := copy(b.aligned[b.len:], p)
	b.len += n
	return n
}

// Full reports whether the buffer holds at least one full block.
func (b *Buffer) Full() bool {
	return b.len >= b.blockSize
}

// Len returns the number of unflushed bytes currently buffered.
func (b *Buffer) Len() int {
	return b.len
}

// AlignedChunk returns the block-aligned slice ready to hand to the
// device for the n complete blocks currently buffered, where n =
// Len()/blockSize. Any trailing partial block remains buffered.
func (b *Buffer) AlignedChunk() []byte {
	n := (b.len / b.blockSize) * b.blockSize
	return b.aligned[:n]
}

// Advance drops the first n bytes (a multiple of blockSize) after they
// have been written to the device, shifting any remaining partial block
// to the front of the buffer.
func (b *Buffer) Advance(n int) {
	copy(b.aligned, b.aligned[n:b.len])
	b.len -= n
}

// PadToBlock zero-pads the buffer up to the next block boundary and
// returns the padded length, for use when a file is closed with a
// partial block still pending and the device requires aligned writes.
func (b *Buffer) PadToBlock() int {
	padded := roundUp(b.len, b.blockSize)
	for i := b.len; i < padded; i++ {
		b.aligned[i] = 0
	}
	b.len = padded
	return padded
}

// Reset empties the buffer for reuse.
func (b *Buffer) Reset() {
	b.len = 0
}
