// Package indicator drives the camera tally LED.
package indicator

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/SharedCam/internal/debug"
	"github.com/cjeanneret/SharedCam/internal/hw/gpio"
)

// Tally is a single status LED on a GPIO pin. Pin 0 disables it.
type Tally struct {
	gpio gpio.Driver
	pin  int

	mu  sync.Mutex
	on  bool
	gen int // bumped on every Set so a pending pulse restore can tell it is stale
}

// NewTally configures pin as an output and switches the LED off.
func NewTally(g gpio.Driver, pin int) (*Tally, error) {
	t := &Tally{gpio: g, pin: pin}
	if pin == 0 {
		debug.Verbose("Tally LED disabled")
		return t, nil
	}
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("tally: setup pin %d: %w", pin, err)
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, fmt.Errorf("tally: pin %d: %w", pin, err)
	}
	return t, nil
}

// Enabled reports whether the LED is wired.
func (t *Tally) Enabled() bool { return t.pin != 0 }

// On reports the last level set.
func (t *Tally) On() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.on
}

// Set switches the LED.
func (t *Tally) Set(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	return t.write(on)
}

func (t *Tally) write(on bool) error {
	t.on = on
	if t.pin == 0 {
		return nil
	}
	if err := t.gpio.WritePin(t.pin, gpio.Level(on)); err != nil {
		return fmt.Errorf("tally: pin %d: %w", t.pin, err)
	}
	return nil
}

// Pulse inverts the LED for d, then restores it unless Set was called in
// between.
func (t *Tally) Pulse(d time.Duration) {
	t.mu.Lock()
	gen := t.gen
	prev := t.on
	if err := t.write(!prev); err != nil {
		debug.Error(err)
	}
	t.mu.Unlock()

	time.AfterFunc(d, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.gen != gen {
			return
		}
		if err := t.write(prev); err != nil {
			debug.Error(err)
		}
	})
}
