// Package zbd defines the narrow contract the core consumes from the raw
// zoned block device driver. The actual hardware driver is out of scope;
// SimDevice is a file-backed stand-in so the rest of the module has
// something real to exercise in tests and in the bundled cmd/zonectl
// tool.
package zbd

import "context"

// ZoneType distinguishes data zones, metadata zones, and conventional
// (non-sequential) zones reported by the device.
type ZoneType int

const (
	ZoneTypeData ZoneType = iota
	ZoneTypeMeta
	ZoneTypeConventional
)

// ZoneCondition mirrors the subset of ZBD zone states the core cares
// about; it is the device's own notion of state, independent of the
// higher-level EMPTY/OPEN/FULL state machine zone.Zone layers on top.
type ZoneCondition int

const (
	ZoneConditionEmpty ZoneCondition = iota
	ZoneConditionImplicitOpen
	ZoneConditionExplicitOpen
	ZoneConditionClosed
	ZoneConditionFull
	ZoneConditionOffline
	ZoneConditionReadOnly
)

// ZoneReport is one entry of the device's zone enumeration, consumed once
// when the device is opened.
type ZoneReport struct {
	ID        uint32
	Start     uint64
	Length    uint64
	Type      ZoneType
	Condition ZoneCondition
	// WritePointer is the device-reported write pointer, relative to
	// Start; nonzero only when reopening a device with pre-existing data.
	WritePointer uint64
}

// Device is the contract the core consumes from the raw ZBD driver.
// Writes succeed only at the zone's current write pointer and advance it
// by exactly the bytes submitted; a write that straddles the end of a
// zone's capacity fails rather than spanning into the next zone.
type Device interface {
	// Report enumerates all zones on the device in ascending start order.
	Report(ctx context.Context) ([]ZoneReport, error)

	// BlockSize returns the device's required I/O alignment in bytes.
	BlockSize() uint32

	// WriteAt performs a direct-I/O write of buf at the absolute device
	// offset off, which must equal the zone's current write pointer and
	// must be block-size aligned, as must len(buf).
	WriteAt(ctx context.Context, zoneID uint32, off uint64, buf []byte) (int, error)

	// ReadAt performs a read of up to len(buf) bytes starting at the
	// absolute device offset off. direct requests unbuffered I/O; the
	// simulated device treats both paths identically.
	ReadAt(ctx context.Context, off uint64, buf []byte, direct bool) (int, error)

	// ResetZone issues a zone reset, returning the write pointer to the
	// zone's start and its capacity to the zone's maximum.
	ResetZone(ctx context.Context, zoneID uint32) error

	// FinishZone forces a zone to the FULL condition without writing
	// further data, wasting whatever capacity remained ahead of the
	// write pointer.
	FinishZone(ctx context.Context, zoneID uint32) error

	// OpenZone requests an explicit-open write token from the device.
	OpenZone(ctx context.Context, zoneID uint32) error

	// CloseZone releases a write token previously obtained via OpenZone.
	CloseZone(ctx context.Context, zoneID uint32) error

	// Close releases any resources (file handles, locks) held by the
	// device implementation.
	Close() error
}
