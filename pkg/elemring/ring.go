// Package elemring implements a fixed-capacity circular buffer of
// fixed-size elements for one producer and one consumer, where either side
// may run in an interrupt context.
//
// The buffer never blocks: writes fail when there is not enough free space
// and reads fail when there is not enough buffered data, always
// all-or-nothing. One slot is sacrificed so that a full buffer is
// distinguishable from an empty one: with capacity slots, at most
// capacity-1 elements are buffered at a time.
//
// Cursor arithmetic is unsigned modulo capacity throughout. A cursor is
// published only after every element copy it covers has completed, inside a
// critical section supplied at construction, so the other side never
// observes a half-written slot.
package elemring

import (
	"math"
	"sync/atomic"

	"github.com/pkg/errors"

	"elemring/pkg/critical"
)

// Ring is a single-producer single-consumer circular element buffer.
//
// read is the slot the next read returns; write is the slot the next write
// fills. Both stay in [0, capacity). The buffer is empty iff read == write.
// The cursors are atomic so the lock-free count queries can observe a
// cursor the other side publishes without a data race; mutual exclusion of
// the copy-then-publish sequences still comes from the critical section.
type Ring struct {
	storage  []byte
	capacity uint32
	elemSize uint32
	read     atomic.Uint32
	write    atomic.Uint32
	cs       critical.Section
}

// Option configures a Ring at creation.
type Option func(*Ring)

// WithSection injects the critical-section provider. The default is a
// PreemptLock; tests inject instrumented sections.
func WithSection(cs critical.Section) Option {
	return func(r *Ring) {
		if cs != nil {
			r.cs = cs
		}
	}
}

// New creates a ring with the given number of slots and bytes per element.
// Storage is zero-filled and both cursors start at 0.
func New(capacity, elemSize uint32, opts ...Option) (*Ring, error) {
	if capacity < 2 || elemSize == 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "capacity=%d elemSize=%d", capacity, elemSize)
	}
	if capacity > math.MaxUint32/elemSize {
		return nil, errors.Wrapf(ErrInvalidConfig, "%d slots of %d bytes overflow the storage size", capacity, elemSize)
	}
	r := &Ring{
		storage:  make([]byte, capacity*elemSize),
		capacity: capacity,
		elemSize: elemSize,
		cs:       critical.NewPreemptLock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// slot returns slot i of the backing storage as an elemSize-byte span.
// All storage access goes through here; the offset cannot leave the span.
func (r *Ring) slot(i uint32) []byte {
	off := i * r.elemSize
	return r.storage[off : off+r.elemSize]
}

func (r *Ring) occupied() uint32 {
	return (r.write.Load() + r.capacity - r.read.Load()) % r.capacity
}

// Size returns the number of slots.
func (r *Ring) Size() uint32 {
	return r.capacity
}

// SizeInBytes returns the backing storage size.
func (r *Ring) SizeInBytes() uint32 {
	return r.capacity * r.elemSize
}

// ElementSize returns the byte width of one element.
func (r *Ring) ElementSize() uint32 {
	return r.elemSize
}

// DataCount returns the number of buffered elements. No lock is taken: the
// cursors are read atomically and only ever advanced after the data they
// cover is in place, so the count is at worst momentarily stale, never
// ahead of the data.
func (r *Ring) DataCount() uint32 {
	if r == nil {
		return 0
	}
	return r.occupied()
}

// SpaceCount returns the number of elements that can currently be written.
// One slot is always reserved, so this is capacity-1-DataCount.
func (r *Ring) SpaceCount() uint32 {
	if r == nil {
		return 0
	}
	return r.capacity - 1 - r.occupied()
}

// Write copies count elements from src into the ring. It writes all of them
// or none: if fewer than count slots are free it returns
// ErrInsufficientSpace and the ring is untouched. Task context only.
func (r *Ring) Write(src []byte, count uint32) (uint32, error) {
	if err := r.checkArgs(src, count); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	// Only this producer grows occupied; a concurrent reader can only free
	// more space. Checking before entering the section is therefore safe.
	if free := r.SpaceCount(); free < count {
		return 0, errors.Wrapf(ErrInsufficientSpace, "write of %d elements, %d free", count, free)
	}
	r.cs.Enter()
	r.copyIn(src, count)
	r.cs.Exit()
	return count, nil
}

// WriteFromISR is Write for the mirrored role where the producer is an
// interrupt handler. Same contract, interrupt-safe critical section.
func (r *Ring) WriteFromISR(src []byte, count uint32) (uint32, error) {
	if err := r.checkArgs(src, count); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	if free := r.SpaceCount(); free < count {
		return 0, errors.Wrapf(ErrInsufficientSpace, "write of %d elements, %d free", count, free)
	}
	state := r.cs.EnterFromISR()
	r.copyIn(src, count)
	r.cs.ExitFromISR(state)
	return count, nil
}

// Read copies count elements from the ring into dst and consumes them.
// All-or-nothing: if fewer than count elements are buffered it returns
// ErrInsufficientData and the ring is untouched. Task context only.
func (r *Ring) Read(dst []byte, count uint32) (uint32, error) {
	if err := r.checkArgs(dst, count); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	if have := r.DataCount(); have < count {
		return 0, errors.Wrapf(ErrInsufficientData, "read of %d elements, %d buffered", count, have)
	}
	r.cs.Enter()
	r.copyOut(dst, count, true)
	r.cs.Exit()
	return count, nil
}

// ReadFromISR is Read with the interrupt-safe critical-section pair, legal
// from an interrupt handler.
func (r *Ring) ReadFromISR(dst []byte, count uint32) (uint32, error) {
	if err := r.checkArgs(dst, count); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	if have := r.DataCount(); have < count {
		return 0, errors.Wrapf(ErrInsufficientData, "read of %d elements, %d buffered", count, have)
	}
	state := r.cs.EnterFromISR()
	r.copyOut(dst, count, true)
	r.cs.ExitFromISR(state)
	return count, nil
}

// Peek copies count elements into dst without consuming them. Same
// availability contract and critical-region discipline as Read.
func (r *Ring) Peek(dst []byte, count uint32) (uint32, error) {
	if err := r.checkArgs(dst, count); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	if have := r.DataCount(); have < count {
		return 0, errors.Wrapf(ErrInsufficientData, "peek of %d elements, %d buffered", count, have)
	}
	r.cs.Enter()
	r.copyOut(dst, count, false)
	r.cs.Exit()
	return count, nil
}

// Flush discards everything buffered. It takes the task-context critical
// section, so it serializes against an in-progress write or read instead of
// racing with it. Task context only.
func (r *Ring) Flush() {
	if r == nil {
		return
	}
	r.cs.Enter()
	r.read.Store(r.write.Load())
	r.cs.Exit()
}

func (r *Ring) checkArgs(data []byte, count uint32) error {
	if r == nil || data == nil {
		return ErrInvalidArgument
	}
	// 64-bit so an absurd count cannot wrap the needed length past the check
	need := uint64(count) * uint64(r.elemSize)
	if uint64(len(data)) < need {
		return errors.Wrapf(ErrInvalidArgument, "need %d data bytes for %d elements, have %d", need, count, len(data))
	}
	return nil
}

// copyIn copies count elements from src into the slots starting at the
// write cursor, then publishes the cursor. Caller holds the section.
func (r *Ring) copyIn(src []byte, count uint32) {
	idx := r.write.Load()
	for i := uint32(0); i < count; i++ {
		copy(r.slot(idx), src[i*r.elemSize:(i+1)*r.elemSize])
		idx++
		if idx == r.capacity {
			idx = 0
		}
	}
	// Published last, with an atomic store: a reader computing DataCount
	// from the write cursor must never see a slot as available before its
	// contents are in place.
	r.write.Store(idx)
}

// copyOut copies count elements starting at the read cursor into dst.
// With consume set it publishes the advanced read cursor; Peek leaves it.
// Caller holds the section.
func (r *Ring) copyOut(dst []byte, count uint32, consume bool) {
	idx := r.read.Load()
	for i := uint32(0); i < count; i++ {
		copy(dst[i*r.elemSize:(i+1)*r.elemSize], r.slot(idx))
		idx++
		if idx == r.capacity {
			idx = 0
		}
	}
	if consume {
		// Symmetric to copyIn: the writer must not see a slot as free while
		// it is still being copied out.
		r.read.Store(idx)
	}
}
