package display

import (
	"fmt"
	"sync"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// MotionSensor reports whether the PIR sensor currently sees movement.
type MotionSensor interface {
	Motion() (bool, error)
}

// Backlight drives the panel backlight.
type Backlight interface {
	SetBacklight(on bool) error
}

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// GPIOPins reads the PIR sensor and drives the backlight through periph.io.
type GPIOPins struct {
	pir       gpio.PinIO
	backlight gpio.PinIO
}

// OpenGPIO resolves the named pins (e.g. "GPIO4", "GPIO18") and configures
// them. The backlight starts switched on.
func OpenGPIO(pirName, backlightName string) (*GPIOPins, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("initialise gpio host: %w", err)
	}
	pir := gpioreg.ByName(pirName)
	if pir == nil {
		return nil, fmt.Errorf("pir pin %q not found", pirName)
	}
	if err := pir.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure pir pin %s: %w", pirName, err)
	}
	backlight := gpioreg.ByName(backlightName)
	if backlight == nil {
		return nil, fmt.Errorf("backlight pin %q not found", backlightName)
	}
	if err := backlight.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("configure backlight pin %s: %w", backlightName, err)
	}
	return &GPIOPins{pir: pir, backlight: backlight}, nil
}

// Motion implements MotionSensor.
func (p *GPIOPins) Motion() (bool, error) {
	return p.pir.Read() == gpio.High, nil
}

// SetBacklight implements Backlight.
func (p *GPIOPins) SetBacklight(on bool) error {
	return p.backlight.Out(gpio.Level(on))
}

// MockPins stands in for the GPIO header on development machines. Motion is
// reported by default so the screen stays on.
type MockPins struct {
	motion    atomic.Bool
	backlight atomic.Bool
}

// NewMockPins returns mock pins with motion active and the backlight on.
func NewMockPins() *MockPins {
	p := &MockPins{}
	p.motion.Store(true)
	p.backlight.Store(true)
	return p
}

// SetMotion changes the simulated PIR level.
func (p *MockPins) SetMotion(active bool) { p.motion.Store(active) }

// BacklightOn reports the last level written to the backlight.
func (p *MockPins) BacklightOn() bool { return p.backlight.Load() }

// Motion implements MotionSensor.
func (p *MockPins) Motion() (bool, error) { return p.motion.Load(), nil }

// SetBacklight implements Backlight.
func (p *MockPins) SetBacklight(on bool) error {
	p.backlight.Store(on)
	return nil
}
