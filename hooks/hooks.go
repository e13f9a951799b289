// Package hooks provides a priority-ordered event bus that lets external
// collaborators (the LSM engine above, metrics, tests) observe zone and
// file lifecycle transitions inside the core without the core importing
// them back. Pre-events are always synchronous and can cancel the
// in-flight operation by returning an error; Post-events may opt into
// asynchronous delivery.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// EventType identifies the kind of a hook event.
type EventType string

const (
	// Zone lifecycle.
	EventPreZoneReset   EventType = "PreZoneReset"
	EventPostZoneReset  EventType = "PostZoneReset"
	EventPostZoneFinish EventType = "PostZoneFinish"
	EventPostZoneFull   EventType = "PostZoneFull"

	// Allocation lifecycle.
	EventPreAllocateZone  EventType = "PreAllocateZone"
	EventPostAllocateZone EventType = "PostAllocateZone"

	// Extent lifecycle.
	EventOnExtentInvalidate EventType = "OnExtentInvalidate"
	EventOnExtentRelocate   EventType = "OnExtentRelocate"

	// Cleaner lifecycle.
	EventPreClean  EventType = "PreClean"
	EventPostClean EventType = "PostClean"

	// Metadata journal lifecycle.
	EventPostJournalPersist EventType = "PostJournalPersist"

	// Device lifecycle.
	EventPreDeviceOpen   EventType = "PreDeviceOpen"
	EventPostDeviceOpen  EventType = "PostDeviceOpen"
	EventPreDeviceClose  EventType = "PreDeviceClose"
	EventPostDeviceClose EventType = "PostDeviceClose"
)

// HookManager manages listener registration and event dispatch.
type HookManager interface {
	// Register adds a listener for a specific event type, ordered by priority.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event, synchronously
	// for Pre-events and listeners that request synchronous delivery.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete.
	Stop()
}

// HookEvent is the interface every event object implements.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// BaseEvent is the default HookEvent implementation.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// HookListener is implemented by anything that wants to observe events.
type HookListener interface {
	// OnEvent is invoked when a registered event fires. An error from a
	// Pre-event listener cancels the operation that raised the event.
	OnEvent(ctx context.Context, event HookEvent) error
	// Priority orders listeners for the same event; lower runs first.
	Priority() int
	// IsAsync requests asynchronous delivery for Post-events. Ignored for
	// Pre-events, which are always synchronous so they can cancel.
	IsAsync() bool
}

// PreZoneResetPayload carries the zone about to be reset.
type PreZoneResetPayload struct {
	ZoneID int
}

func NewPreZoneResetEvent(p PreZoneResetPayload) HookEvent {
	return &BaseEvent{eventType: EventPreZoneReset, payload: p}
}

// PostZoneResetPayload carries the zone that was reset.
type PostZoneResetPayload struct {
	ZoneID int
}

func NewPostZoneResetEvent(p PostZoneResetPayload) HookEvent {
	return &BaseEvent{eventType: EventPostZoneReset, payload: p}
}

// PostZoneFinishPayload carries the zone that was finished.
type PostZoneFinishPayload struct {
	ZoneID        int
	WastedCapacity int64
}

func NewPostZoneFinishEvent(p PostZoneFinishPayload) HookEvent {
	return &BaseEvent{eventType: EventPostZoneFinish, payload: p}
}

// PostZoneFullPayload is raised when an append fills a zone to capacity.
type PostZoneFullPayload struct {
	ZoneID int
}

func NewPostZoneFullEvent(p PostZoneFullPayload) HookEvent {
	return &BaseEvent{eventType: EventPostZoneFull, payload: p}
}

// PreAllocateZonePayload carries the allocation request.
type PreAllocateZonePayload struct {
	FileID  uint64
	Level   int
	Lifetime int
}

func NewPreAllocateZoneEvent(p PreAllocateZonePayload) HookEvent {
	return &BaseEvent{eventType: EventPreAllocateZone, payload: p}
}

// PostAllocateZonePayload carries the allocation outcome.
type PostAllocateZonePayload struct {
	FileID uint64
	ZoneID int
	Step   string // which allocator policy step satisfied the request
}

func NewPostAllocateZoneEvent(p PostAllocateZonePayload) HookEvent {
	return &BaseEvent{eventType: EventPostAllocateZone, payload: p}
}

// ExtentInvalidatePayload carries an extent transitioning valid->invalid.
type ExtentInvalidatePayload struct {
	ZoneID   int
	FileID   uint64
	Length   uint32
}

func NewOnExtentInvalidateEvent(p ExtentInvalidatePayload) HookEvent {
	return &BaseEvent{eventType: EventOnExtentInvalidate, payload: p}
}

// ExtentRelocatePayload carries an extent copied by the cleaner.
type ExtentRelocatePayload struct {
	FileID     uint64
	FromZoneID int
	ToZoneID   int
	Length     uint32
}

func NewOnExtentRelocateEvent(p ExtentRelocatePayload) HookEvent {
	return &BaseEvent{eventType: EventOnExtentRelocate, payload: p}
}

// PreCleanPayload carries the cleaning pass's target.
type PreCleanPayload struct {
	TargetZones int
}

func NewPreCleanEvent(p PreCleanPayload) HookEvent {
	return &BaseEvent{eventType: EventPreClean, payload: p}
}

// PostCleanPayload carries the cleaning pass's outcome.
type PostCleanPayload struct {
	ZonesReset   int
	BytesCopied  int64
	FilesTouched int
}

func NewPostCleanEvent(p PostCleanPayload) HookEvent {
	return &BaseEvent{eventType: EventPostClean, payload: p}
}

// PostJournalPersistPayload carries the file whose extents were just made
// durable in the metadata journal.
type PostJournalPersistPayload struct {
	FileID             uint64
	SyncedExtentCount int
}

func NewPostJournalPersistEvent(p PostJournalPersistPayload) HookEvent {
	return &BaseEvent{eventType: EventPostJournalPersist, payload: p}
}

// DeviceLifecyclePayload is the empty payload for device open/close events.
type DeviceLifecyclePayload struct{}

func NewPreDeviceOpenEvent() HookEvent {
	return &BaseEvent{eventType: EventPreDeviceOpen, payload: DeviceLifecyclePayload{}}
}

func NewPostDeviceOpenEvent() HookEvent {
	return &BaseEvent{eventType: EventPostDeviceOpen, payload: DeviceLifecyclePayload{}}
}

func NewPreDeviceCloseEvent() HookEvent {
	return &BaseEvent{eventType: EventPreDeviceClose, payload: DeviceLifecyclePayload{}}
}

func NewPostDeviceCloseEvent() HookEvent {
	return &BaseEvent{eventType: EventPostDeviceClose, payload: DeviceLifecyclePayload{}}
}

// listenerWithPriority wraps a listener with its priority for ordered insertion.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is the concrete HookManager implementation.
type DefaultHookManager struct {
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewHookManager creates a DefaultHookManager. A nil logger discards output.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

// Register adds a listener for eventType, maintaining priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{listener: listener, priority: listener.Priority()}

	l := m.listeners[eventType]
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority >= item.priority
	})
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item
	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners, ok := m.listeners[event.Type()]
	m.mu.RUnlock()

	if !ok || len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()

		if isPreHook || !isListenerAsync {
			if isPreHook && isListenerAsync {
				m.logger.Warn("listener for pre-hook requested async execution, pre-hooks are always synchronous", "event", event.Type(), "priority", item.priority)
			}
			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
		} else {
			m.wg.Add(1)
			go func(currentItem *listenerWithPriority) {
				defer m.wg.Done()
				if err := currentItem.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("error from asynchronous post-hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
				}
			}(item)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
