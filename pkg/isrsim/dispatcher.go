// Package isrsim simulates the hardware interrupt source the buffer is
// designed to exchange data with. A Dispatcher queues raised interrupt
// requests and services them on a single goroutine, one handler at a time,
// matching the single-core model where interrupt handlers never run in
// parallel with each other.
package isrsim

import (
	"log"
	"os"
	"sync"

	"github.com/gammazero/deque"

	"elemring/pkg/elemring"
)

var logger = log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lshortfile) // TODO: provide config

// Request is one raised interrupt: the line it arrived on and how many
// elements the device wants serviced.
type Request struct {
	Line  int
	Count uint32
}

// ISR is the view a handler gets: the request that raised it and only the
// interrupt-safe buffer operations, so a handler cannot call the
// task-context API by accident.
type ISR struct {
	Req  Request
	ring *elemring.Ring
}

func (i ISR) Read(dst []byte, count uint32) (uint32, error) {
	return i.ring.ReadFromISR(dst, count)
}

func (i ISR) Write(src []byte, count uint32) (uint32, error) {
	return i.ring.WriteFromISR(src, count)
}

func (i ISR) DataCount() uint32   { return i.ring.DataCount() }
func (i ISR) SpaceCount() uint32  { return i.ring.SpaceCount() }
func (i ISR) ElementSize() uint32 { return i.ring.ElementSize() }

// Handler services one interrupt request.
type Handler func(isr ISR)

// Dispatcher delivers raised requests to registered handlers in FIFO order.
type Dispatcher struct {
	ring *elemring.Ring

	mu       sync.Mutex
	pending  deque.Deque[Request]
	handlers map[int]Handler
	closed   bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

func New(ring *elemring.Ring) *Dispatcher {
	d := &Dispatcher{
		ring:     ring,
		handlers: make(map[int]Handler),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	d.wg.Add(1)
	go d.service()
	return d
}

// Register installs the handler for an interrupt line, replacing any
// previous one.
func (d *Dispatcher) Register(line int, h Handler) {
	d.mu.Lock()
	d.handlers[line] = h
	d.mu.Unlock()
}

// Raise queues an interrupt request. It never blocks; delivery happens on
// the service goroutine.
func (d *Dispatcher) Raise(line int, count uint32) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pending.PushBack(Request{Line: line, Count: count})
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of requests not yet serviced.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.Len()
}

// Close stops the service goroutine after the in-flight handler, if any,
// returns. Requests still pending are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
}

func (d *Dispatcher) service() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
			d.drain()
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if d.pending.Len() == 0 {
			d.mu.Unlock()
			return
		}
		req := d.pending.PopFront()
		h := d.handlers[req.Line]
		d.mu.Unlock()

		if h == nil {
			logger.Printf("spurious interrupt on line %d dropped\n", req.Line)
			continue
		}
		h(ISR{Req: req, ring: d.ring})
	}
}
