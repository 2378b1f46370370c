package elemring_test

import (
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elemring/pkg/critical"
	"elemring/pkg/elemring"
)

func TestMultiByteElements_RoundTrip(t *testing.T) {
	r, err := elemring.New(8, 8)
	require.NoError(t, err)

	src := make([]byte, 5*8)
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint64(src[i*8:], uint64(i)*0x0101010101010101)
	}
	n, err := r.Write(src, 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, n)

	dst := make([]byte, 5*8)
	n, err = r.Read(dst, 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, n)
	require.Equal(t, src, dst)
}

func TestPeek_DoesNotConsume(t *testing.T) {
	r, err := elemring.New(4, 2)
	require.NoError(t, err)

	_, err = r.Write([]byte{1, 2, 3, 4}, 2)
	require.NoError(t, err)

	dst := make([]byte, 4)
	n, err := r.Peek(dst, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Equal(t, []byte{1, 2, 3, 4}, dst)
	require.EqualValues(t, 2, r.DataCount())

	// a second peek sees the same elements
	dst2 := make([]byte, 4)
	_, err = r.Peek(dst2, 2)
	require.NoError(t, err)
	require.Equal(t, dst, dst2)

	// reading afterwards consumes them
	n, err = r.Read(dst, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.EqualValues(t, 0, r.DataCount())

	_, err = r.Peek(dst, 1)
	require.ErrorIs(t, err, elemring.ErrInsufficientData)
}

func TestInvalidArguments(t *testing.T) {
	r, err := elemring.New(4, 4)
	require.NoError(t, err)

	_, err = r.Write(nil, 1)
	require.ErrorIs(t, err, elemring.ErrInvalidArgument)

	_, err = r.Read(nil, 1)
	require.ErrorIs(t, err, elemring.ErrInvalidArgument)

	// source shorter than count*elemSize
	_, err = r.Write(make([]byte, 7), 2)
	require.ErrorIs(t, err, elemring.ErrInvalidArgument)

	_, err = r.Read(make([]byte, 3), 1)
	require.ErrorIs(t, err, elemring.ErrInvalidArgument)

	var nilRing *elemring.Ring
	_, err = nilRing.Write(make([]byte, 4), 1)
	require.ErrorIs(t, err, elemring.ErrInvalidArgument)
	assert.EqualValues(t, 0, nilRing.DataCount())
	assert.EqualValues(t, 0, nilRing.SpaceCount())
}

func TestZeroCount_NoOp(t *testing.T) {
	r, err := elemring.New(4, 1)
	require.NoError(t, err)

	n, err := r.Write(make([]byte, 1), 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	n, err = r.Read(make([]byte, 1), 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
	require.EqualValues(t, 0, r.DataCount())
}

func TestISRVariants_TokenDiscipline(t *testing.T) {
	trace := critical.NewTraceSection(critical.NewPreemptLock())
	r, err := elemring.New(8, 1, elemring.WithSection(trace))
	require.NoError(t, err)

	_, err = r.WriteFromISR([]byte{1, 2, 3}, 3)
	require.NoError(t, err)

	dst := make([]byte, 3)
	n, err := r.ReadFromISR(dst, 3)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.Equal(t, []byte{1, 2, 3}, dst)

	// rejected ISR ops never touch the section
	_, err = r.ReadFromISR(dst, 1)
	require.ErrorIs(t, err, elemring.ErrInsufficientData)

	require.EqualValues(t, 2, trace.ISREnters())
	require.EqualValues(t, 2, trace.ISRExits())
	require.EqualValues(t, 0, trace.BadTokens())
	require.EqualValues(t, 0, trace.Enters())
}

func TestTaskVariants_SectionHeld(t *testing.T) {
	trace := critical.NewTraceSection(critical.NewPreemptLock())
	r, err := elemring.New(8, 2, elemring.WithSection(trace))
	require.NoError(t, err)

	_, err = r.Write([]byte{1, 1, 2, 2}, 2)
	require.NoError(t, err)
	dst := make([]byte, 2)
	_, err = r.Read(dst, 1)
	require.NoError(t, err)
	_, err = r.Peek(dst, 1)
	require.NoError(t, err)
	r.Flush()

	require.EqualValues(t, 4, trace.Enters())
	require.EqualValues(t, 4, trace.Exits())
	require.EqualValues(t, 0, trace.ISREnters())
}

// A task-context producer against a consumer draining through the
// interrupt-safe path. Every element is sequence-numbered; the consumer
// must see each exactly once, in order, never torn.
func TestInterleavedProducerConsumer(t *testing.T) {
	const total = 20000
	const elemSize = 4

	r, err := elemring.New(8, elemSize)
	require.NoError(t, err)

	done := make(chan []uint32)
	go func() {
		got := make([]uint32, 0, total)
		dst := make([]byte, elemSize)
		for len(got) < total {
			if _, err := r.ReadFromISR(dst, 1); err != nil {
				runtime.Gosched()
				continue
			}
			got = append(got, binary.LittleEndian.Uint32(dst))
		}
		done <- got
	}()

	src := make([]byte, elemSize)
	for i := uint32(0); i < total; i++ {
		binary.LittleEndian.PutUint32(src, i)
		for {
			if _, err := r.Write(src, 1); err == nil {
				break
			}
			runtime.Gosched()
		}
	}

	got := <-done
	require.Len(t, got, total)
	for i, v := range got {
		require.EqualValues(t, i, v, "element %d lost, duplicated, or torn", i)
	}
}

// The count queries take no lock, so they must stay safe to call while
// both sides are publishing cursors, and every value they return must be
// in range even when it is momentarily stale.
func TestCountQueries_DuringTraffic(t *testing.T) {
	const total = 5000
	const capacity = 8

	r, err := elemring.New(capacity, 1)
	require.NoError(t, err)

	stop := make(chan struct{})
	var outOfRange atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if r.DataCount() > capacity-1 || r.SpaceCount() > capacity-1 {
				outOfRange.Add(1)
			}
		}
	}()

	consumed := make(chan struct{})
	go func() {
		dst := make([]byte, 1)
		for n := 0; n < total; {
			if _, err := r.ReadFromISR(dst, 1); err != nil {
				runtime.Gosched()
				continue
			}
			n++
		}
		close(consumed)
	}()

	src := make([]byte, 1)
	for i := 0; i < total; i++ {
		src[0] = byte(i)
		for {
			if _, err := r.Write(src, 1); err == nil {
				break
			}
			runtime.Gosched()
		}
	}
	<-consumed
	close(stop)
	wg.Wait()

	require.EqualValues(t, 0, outOfRange.Load(), "count query returned a value outside [0, capacity-1]")
}

// count*elemSize can exceed 32 bits; the argument check must reject the
// request rather than let the product wrap.
func TestHugeCount_Rejected(t *testing.T) {
	r, err := elemring.New(4, 8)
	require.NoError(t, err)

	// 1<<30 elements of 8 bytes wraps to 0 in uint32 arithmetic
	_, err = r.Write(make([]byte, 32), 1<<30)
	require.ErrorIs(t, err, elemring.ErrInvalidArgument)

	_, err = r.Read(make([]byte, 32), 1<<29)
	require.ErrorIs(t, err, elemring.ErrInvalidArgument)

	require.EqualValues(t, 0, r.DataCount())
	require.EqualValues(t, 3, r.SpaceCount())
}
