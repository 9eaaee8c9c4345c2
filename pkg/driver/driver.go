// Package driver runs a Console at a fixed logical rate. The Console itself
// performs no locking, so the driver is the synchronization point: key
// notifications from any goroutine go through a single event channel that the
// tick loop drains before each step, guaranteeing every notification is
// visible to the step that follows it.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/chip8"
	"gochip8/pkg/display"
)

// KeyQuit is the out-of-band pseudo-key that stops the loop. The interpreter
// never sees it; it is purely a driver convention.
const KeyQuit uint8 = 0xFF

// Event is a key transition delivered to the tick loop.
type Event struct {
	Key  uint8
	Down bool
}

// Renderer consumes the lit-pixel set whenever the screen changes.
type Renderer interface {
	Render(pixels []display.Pixel) error
}

// Driver owns one Console and steps it at a fixed rate.
type Driver struct {
	console  *chip8.Console
	renderer Renderer
	logger   *log.Logger
	clockHz  int

	// Events is the single queue feeding key transitions into the loop.
	// Producers may send from any goroutine; closing it stops the loop.
	Events chan Event
}

// New returns a Driver stepping console clockHz times per second.
func New(console *chip8.Console, renderer Renderer, clockHz int, logger *log.Logger) *Driver {
	return &Driver{
		console:  console,
		renderer: renderer,
		logger:   logger,
		clockHz:  clockHz,
		Events:   make(chan Event, 16),
	}
}

// Run steps the Console until the program exits, a fatal interpreter error
// occurs, the quit pseudo-key arrives, the Events channel closes, or ctx is
// cancelled. Rendering happens only on draw signals. Renderer failures are
// surfaced through the same error channel as interpreter faults.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(d.clockHz))
	defer ticker.Stop()

	d.logger.Debug("driver started", log.Int("clock_hz", d.clockHz))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-d.Events:
			if !ok || d.apply(ev) {
				return nil
			}

		case <-ticker.C:
			// Drain queued key transitions so they land before this step.
			if d.drain() {
				return nil
			}

			sig, err := d.console.Step()
			if err != nil {
				return err
			}

			switch sig.Kind {
			case chip8.SignalDraw:
				if err := d.renderer.Render(sig.Pixels); err != nil {
					return fmt.Errorf("rendering: %w", err)
				}
			case chip8.SignalExit:
				d.logger.Debug("program exited")
				return nil
			}
		}
	}
}

// apply feeds one event to the Console and reports whether it was a quit.
func (d *Driver) apply(ev Event) bool {
	if ev.Key == KeyQuit {
		d.logger.Debug("quit requested")
		return true
	}
	if ev.Down {
		d.console.KeyPress(ev.Key)
	} else {
		d.console.KeyRelease(ev.Key)
	}
	return false
}

func (d *Driver) drain() (quit bool) {
	for {
		select {
		case ev, ok := <-d.Events:
			if !ok || d.apply(ev) {
				return true
			}
		default:
			return false
		}
	}
}
