package zonefile

import (
	"io"

	"github.com/INLOpen/zonefs/zbd"
	"github.com/INLOpen/zonefs/zerrors"
	"github.com/INLOpen/zonefs/zone"
)

// ZoneResolver resolves the numeric zone ids a Record carries back into
// the live *zone.Zone the metadata journal referenced. Only
// device.ZoneDevice has the registry required to do this, so Replay
// takes the resolver as a narrow interface rather than importing the
// device package, the same dependency-direction the rest of this
// package already uses for ZoneAllocator.
type ZoneResolver interface {
	ResolveZone(id uint32) (*zone.Zone, bool)
}

// newZoneFileWithID constructs a ZoneFile carrying a caller-supplied
// id instead of the next counter value, and advances the counter past
// it. Replay uses this to preserve a recovered file's original
// identity so later records in the same journal that reference its
// FileID keep resolving to it, and so files created after recovery
// never collide with a recovered id.
func newZoneFileWithID(id uint64, dev zbd.Device, alloc ZoneAllocator, filename string, lifetime zone.LifetimeHint, level int32) *ZoneFile {
	f := NewZoneFile(dev, alloc, filename, lifetime, level)
	f.id = id
	for {
		cur := nextFileID.Load()
		if id < cur || nextFileID.CompareAndSwap(cur, id+1) {
			break
		}
	}
	return f
}

// Replay reconstructs the live file registry from a metadata journal
// record stream, resolving every record's ZoneID through resolver. It
// is the crash-recovery counterpart of EncodeTo / EncodeUpdateTo /
// EncodeInvalidateTo / EncodeDeleteTo: replaying the exact record
// sequence a prior run journaled reproduces that run's registry,
// including files deleted before the crash.
//
// A tagSnapshot record resets the file named in it to the extent list
// that follows, discarding anything recovered for it so far; this lets
// a periodic snapshot bound how much of the journal a restart must
// replay.
func Replay(r io.Reader, dev zbd.Device, alloc ZoneAllocator, resolver ZoneResolver) (map[string]*ZoneFile, error) {
	byID := make(map[uint64]*ZoneFile)
	byName := make(map[string]*ZoneFile)

	for {
		rec, err := DecodeFrom(r)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		switch rec.Tag {
		case tagFileCreate, tagSnapshot:
			// EncodeUpdateTo heads every incremental update with a
			// create record; for a file already recovered it only
			// introduces the extents that follow.
			if rec.Tag == tagFileCreate && byID[rec.FileID] != nil {
				continue
			}
			f := newZoneFileWithID(rec.FileID, dev, alloc, rec.Filename, zone.LifetimeHint(rec.Lifetime), rec.Level)
			byID[rec.FileID] = f
			byName[rec.Filename] = f

		case tagExtentAppend:
			f := byID[rec.FileID]
			if f == nil {
				return nil, zerrors.ErrCorruption
			}
			z, ok := resolver.ResolveZone(rec.ZoneID)
			if !ok {
				return nil, zerrors.ErrCorruption
			}
			f.MergeUpdate([]*zone.Extent{{Start: rec.Start, Length: rec.Length, Zone: z}})

		case tagExtentInvalidate:
			f := byID[rec.FileID]
			if f == nil {
				return nil, zerrors.ErrCorruption
			}
			z, ok := resolver.ResolveZone(rec.ZoneID)
			if !ok {
				return nil, zerrors.ErrCorruption
			}
			for _, e := range f.Extents() {
				if e.Zone == z && e.Start == rec.Start && e.Length == rec.Length {
					e.Invalidate()
					break
				}
			}

		case tagFileRename:
			f := byID[rec.FileID]
			if f == nil {
				return nil, zerrors.ErrCorruption
			}
			delete(byName, f.Filename())
			f.Rename(rec.NewName)
			byName[rec.NewName] = f

		case tagFileDelete:
			f := byID[rec.FileID]
			if f == nil {
				return nil, zerrors.ErrCorruption
			}
			f.InvalidateAll()
			delete(byID, rec.FileID)
			delete(byName, f.Filename())

		default:
			return nil, zerrors.ErrCorruption
		}
	}

	return byName, nil
}
