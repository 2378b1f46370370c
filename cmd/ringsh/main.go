package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"elemring/pkg/elemring"
	"elemring/pkg/isrsim"
	"elemring/pkg/repl"
)

// Interrupt line the drain handler is registered on.
const drainLine = 0

// The core never blocks, so waiting for space is a caller-level loop.
const (
	writeAttempts = 5
	writeBackoff  = 20 * time.Millisecond
)

func main() {
	capacity := flag.Uint("capacity", 16, "number of slots")
	elemSize := flag.Uint("elemsize", 4, "bytes per element")
	flag.Parse()

	ring, err := elemring.New(uint32(*capacity), uint32(*elemSize))
	if err != nil {
		fmt.Println(err)
		return
	}

	disp := isrsim.New(ring)
	defer disp.Close()
	disp.Register(drainLine, drainHandler)

	r := repl.NewRepl()
	r.AddCommand("write", writeHandler(ring), "Writes text into the ring, zero-padded to whole elements. usage: write <text>")
	r.AddCommand("read", readHandler(ring), "Reads n elements. usage: read <n>")
	r.AddCommand("peek", peekHandler(ring), "Reads n elements without consuming them. usage: peek <n>")
	r.AddCommand("irq", irqHandler(disp), "Raises a simulated interrupt that drains n elements. usage: irq <n>")
	r.AddCommand("flush", flushHandler(ring), "Discards all buffered elements. usage: flush")
	r.AddCommand("stats", statsHandler(ring, disp), "Prints ring and dispatcher state. usage: stats")

	if err := r.Run("ringsh> "); err != nil {
		fmt.Println(err)
	}
}

// drainHandler runs in the simulated interrupt context and consumes the
// requested number of elements through the ISR read path.
func drainHandler(isr isrsim.ISR) {
	count := isr.Req.Count
	if count == 0 {
		return
	}
	dst := make([]byte, count*isr.ElementSize())
	n, err := isr.Read(dst, count)
	if err != nil {
		fmt.Printf("\nirq: %v\n", err)
		return
	}
	fmt.Printf("\nirq: drained %d elements: %q\n", n, dst)
}

func writeHandler(ring *elemring.Ring) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.SplitN(input, " ", 2)
		if len(args) != 2 || args[1] == "" {
			return fmt.Errorf("usage: write <text>")
		}
		elemSize := ring.ElementSize()
		src := []byte(args[1])
		count := (uint32(len(src)) + elemSize - 1) / elemSize
		padded := make([]byte, count*elemSize)
		copy(padded, src)

		var n uint32
		var err error
		for attempt := 0; attempt < writeAttempts; attempt++ {
			n, err = ring.Write(padded, count)
			if !errors.Is(err, elemring.ErrInsufficientSpace) {
				break
			}
			time.Sleep(writeBackoff)
		}
		if err != nil {
			return err
		}
		io.WriteString(config.Writer, fmt.Sprintf("wrote %d elements (%d bytes)\n", n, n*elemSize))
		return nil
	}
}

func readHandler(ring *elemring.Ring) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		count, err := parseCount(input, "read")
		if err != nil {
			return err
		}
		dst := make([]byte, count*ring.ElementSize())
		n, err := ring.Read(dst, count)
		if err != nil {
			return err
		}
		io.WriteString(config.Writer, fmt.Sprintf("read %d elements: %q\n", n, dst))
		return nil
	}
}

func peekHandler(ring *elemring.Ring) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		count, err := parseCount(input, "peek")
		if err != nil {
			return err
		}
		dst := make([]byte, count*ring.ElementSize())
		n, err := ring.Peek(dst, count)
		if err != nil {
			return err
		}
		io.WriteString(config.Writer, fmt.Sprintf("peeked %d elements: %q\n", n, dst))
		return nil
	}
}

func irqHandler(disp *isrsim.Dispatcher) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		count, err := parseCount(input, "irq")
		if err != nil {
			return err
		}
		disp.Raise(drainLine, count)
		io.WriteString(config.Writer, fmt.Sprintf("raised irq line %d for %d elements\n", drainLine, count))
		return nil
	}
}

func flushHandler(ring *elemring.Ring) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		if len(strings.Fields(input)) != 1 {
			return fmt.Errorf("usage: flush")
		}
		ring.Flush()
		io.WriteString(config.Writer, "flushed\n")
		return nil
	}
}

func statsHandler(ring *elemring.Ring, disp *isrsim.Dispatcher) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		if len(strings.Fields(input)) != 1 {
			return fmt.Errorf("usage: stats")
		}
		io.WriteString(config.Writer, fmt.Sprintf(
			"slots=%d elemsize=%d bytes=%d data=%d space=%d irq_pending=%d\n",
			ring.Size(), ring.ElementSize(), ring.SizeInBytes(),
			ring.DataCount(), ring.SpaceCount(), disp.Pending()))
		return nil
	}
}

func parseCount(input, usage string) (uint32, error) {
	args := strings.Fields(input)
	if len(args) != 2 {
		return 0, fmt.Errorf("usage: %s <n>", usage)
	}
	n, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("usage: %s <n>", usage)
	}
	return uint32(n), nil
}
