// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package linearstage

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

var (
	// ErrInvalidSetting is returned by New when an Opts field is out of
	// range or a required pin is missing.
	ErrInvalidSetting = errors.New("linearstage: invalid setting")

	// ErrInvalidSpeed is returned when a motion-initiating call is given a
	// speed that is not strictly positive.
	ErrInvalidSpeed = errors.New("linearstage: speed must be positive")

	// ErrBusy is returned when a motion operation is requested while
	// another one is still in flight. Motions are never queued or
	// interleaved; callers retry after the active operation completes.
	ErrBusy = errors.New("linearstage: a motion operation is already active")

	// ErrClosed is returned by motion operations after Close.
	ErrClosed = errors.New("linearstage: device is closed")
)

// stepsPerRevValues are the accepted microstepping resolutions: a 200
// full-step motor behind the standard 1, 2, 4, ... 128 microstep divisors.
var stepsPerRevValues = map[int]struct{}{
	200: {}, 400: {}, 800: {}, 1600: {}, 3200: {}, 6400: {}, 12800: {}, 25600: {},
}

// Direction selects which way the carriage travels along the screw.
type Direction int

const (
	// Forward moves the carriage toward the maximum limit switch. DIR is
	// driven high.
	Forward Direction = iota
	// Reverse moves the carriage toward the minimum limit switch. DIR is
	// driven low.
	Reverse
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "reverse"
}

// Opts holds the construction options for a stage. The values are fixed for
// the life of the device.
type Opts struct {
	// Pulse is the step pin. One low→high→low pulse is one motor step.
	Pulse gpio.PinOut
	// Dir is the direction pin.
	Dir gpio.PinOut
	// Enable is the driver enable pin, active-low. Optional; leave nil if
	// the driver is hard-wired enabled.
	Enable gpio.PinOut
	// MinLimit and MaxLimit are the travel limit switch pins, active-low.
	MinLimit gpio.PinIO
	MaxLimit gpio.PinIO

	// StepsPerRev is the driver's microstepping resolution. It must be one
	// of 200, 400, 800, 1600, 3200, 6400, 12800 or 25600.
	StepsPerRev int
	// ThreadsPerInch converts screw revolutions to linear travel.
	ThreadsPerInch float64
	// Accel is the acceleration ramp in steps/s².
	Accel float64

	// Logger receives lifecycle and rejected-input messages. Defaults to a
	// production logger named "linearstage".
	Logger golog.Logger
}

func (o *Opts) validate() error {
	if o.Pulse == nil || o.Dir == nil {
		return errors.Wrap(ErrInvalidSetting, "pulse and direction pins are required")
	}
	if o.MinLimit == nil || o.MaxLimit == nil {
		return errors.Wrap(ErrInvalidSetting, "both limit switch pins are required")
	}
	if _, ok := stepsPerRevValues[o.StepsPerRev]; !ok {
		return errors.Wrapf(ErrInvalidSetting, "steps per revolution %d is not a supported microstepping resolution", o.StepsPerRev)
	}
	if o.ThreadsPerInch <= 0 {
		return errors.Wrapf(ErrInvalidSetting, "threads per inch %f must be positive", o.ThreadsPerInch)
	}
	if o.Accel <= 0 {
		return errors.Wrapf(ErrInvalidSetting, "acceleration %f must be positive", o.Accel)
	}
	return nil
}

// Dev is a handle to one linear stage axis.
type Dev struct {
	opts Opts
	log  golog.Logger

	// mu guards position, the observer lists and the busy/closed latches.
	// It is held only for the few instructions of each update so readers
	// never stall the pulse loop.
	mu       sync.Mutex
	position int64
	onMin    []func()
	onMax    []func()
	busy     bool // the single-active-motion latch
	closed   bool

	targetRPM     atomic.Uint64 // math.Float64bits
	stopRequested atomic.Bool
	minTriggered  atomic.Bool // written only by the min limit monitor
	maxTriggered  atomic.Bool // written only by the max limit monitor

	// wait is the pulse-loop delay primitive, swapped out in tests.
	wait func(time.Duration)

	motionWG    sync.WaitGroup
	monitorStop chan struct{}
	monitorWG   sync.WaitGroup
	closeOnce   sync.Once
	closeErr    error
}

// New returns a stage driving the given pins.
//
// The pulse and direction pins are driven low, the enable pin (if any) is
// left de-energized, and the limit pins are configured as pulled-up inputs
// with edge detection. A limit switch already held at construction time is
// observed immediately.
func New(opts *Opts) (*Dev, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	d := &Dev{
		opts:        *opts,
		log:         opts.Logger,
		wait:        spinWait,
		monitorStop: make(chan struct{}),
	}
	if d.log == nil {
		d.log = golog.NewLogger("linearstage")
	}

	// On a partial initialization failure the pins configured so far are
	// released again, like Close would.
	var configured []conn.Resource
	fail := func(err error) (*Dev, error) {
		for _, r := range configured {
			err = multierr.Append(err, r.Halt())
		}
		return nil, err
	}

	if err := opts.Pulse.Out(gpio.Low); err != nil {
		return fail(errors.Wrap(err, "linearstage: initializing pulse pin"))
	}
	configured = append(configured, opts.Pulse)
	if err := opts.Dir.Out(gpio.Low); err != nil {
		return fail(errors.Wrap(err, "linearstage: initializing direction pin"))
	}
	configured = append(configured, opts.Dir)
	if opts.Enable != nil {
		if err := opts.Enable.Out(gpio.High); err != nil {
			return fail(errors.Wrap(err, "linearstage: de-energizing driver"))
		}
		configured = append(configured, opts.Enable)
	}

	for _, lp := range []struct {
		pin  gpio.PinIO
		flag *atomic.Bool
	}{
		{opts.MinLimit, &d.minTriggered},
		{opts.MaxLimit, &d.maxTriggered},
	} {
		if err := lp.pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
			return fail(errors.Wrapf(err, "linearstage: configuring limit pin %s", lp.pin.Name()))
		}
		configured = append(configured, lp.pin)
		lp.flag.Store(lp.pin.Read() == gpio.Low)
	}

	d.monitorWG.Add(2)
	go d.watchLimit(opts.MinLimit, &d.minTriggered, d.minObservers)
	go d.watchLimit(opts.MaxLimit, &d.maxTriggered, d.maxObservers)

	return d, nil
}

// MoveDistance moves the carriage by inches (negative toward the minimum
// limit) at rpm, accelerating and decelerating per the configured ramp.
//
// It blocks until the motion completes, is stopped, or ctx is cancelled; both
// of the latter decelerate rather than halting abruptly and return nil. The
// final position reflects the steps actually issued.
func (d *Dev) MoveDistance(ctx context.Context, inches, rpm float64) error {
	if rpm <= 0 {
		return ErrInvalidSpeed
	}
	steps := int(math.Round(inches * d.opts.ThreadsPerInch * float64(d.opts.StepsPerRev)))
	if steps == 0 {
		return nil
	}
	dir := Forward
	if steps < 0 {
		dir = Reverse
		steps = -steps
	}
	return d.motion(ctx, dir, steps, rpm)
}

// RunToLimit runs the carriage toward the limit switch in dir until that
// switch triggers (or Stop/ctx intervenes), then decelerates within the
// capped overshoot budget.
//
// Position is not reset on arrival; homing is RunToLimit toward the minimum
// followed by an explicit ResetPosition.
func (d *Dev) RunToLimit(ctx context.Context, dir Direction, rpm float64) error {
	if rpm <= 0 {
		return ErrInvalidSpeed
	}
	return d.motion(ctx, dir, unboundedSteps, rpm)
}

// Home composes the homing sequence: run to the minimum limit switch, then
// zero the position there. The reset is the same explicit ResetPosition a
// caller would otherwise issue.
func (d *Dev) Home(ctx context.Context, rpm float64) error {
	if err := d.RunToLimit(ctx, Reverse, rpm); err != nil {
		return err
	}
	if !d.IsMinLimitTriggered() {
		// Stopped or cancelled short of the switch; position stays unknown.
		return nil
	}
	d.ResetPosition()
	return nil
}

// motion acquires the single-motion latch and runs the pulse executor. The
// latch, the closed flag and the WaitGroup registration move together under
// mu, so Close either sees this motion in the WaitGroup or this motion sees
// closed.
func (d *Dev) motion(ctx context.Context, dir Direction, steps int, rpm float64) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.busy {
		d.mu.Unlock()
		return ErrBusy
	}
	d.busy = true
	d.motionWG.Add(1)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.stopRequested.Store(false)
		d.busy = false
		d.mu.Unlock()
		d.motionWG.Done()
	}()
	return d.run(ctx, dir, steps, rpm)
}

// Stop requests a graceful stop of the in-flight motion operation and
// returns immediately. The motion decelerates within its ramp budget; the
// request is cleared automatically when the operation returns. With no
// motion in flight Stop is a no-op and the request flag stays false.
func (d *Dev) Stop() {
	d.mu.Lock()
	if d.busy {
		d.stopRequested.Store(true)
	}
	d.mu.Unlock()
}

// SetTargetSpeed retargets the speed of the in-flight (and any future)
// motion. The change takes effect at the next constant-speed-phase check;
// acceleration and deceleration ramps in progress are not disturbed. A
// non-positive rpm is logged and ignored.
func (d *Dev) SetTargetSpeed(rpm float64) {
	if rpm <= 0 {
		d.log.Warnf("ignoring target speed %.2f RPM: must be positive", rpm)
		return
	}
	d.targetRPM.Store(math.Float64bits(rpm))
}

// TargetSpeed returns the current target speed in RPM. It is zero before the
// first motion operation.
func (d *Dev) TargetSpeed() float64 {
	return math.Float64frombits(d.targetRPM.Load())
}

// ResetPosition declares the current carriage position to be zero. It is
// safe at any time, including mid-motion, though doing so mid-motion makes
// the position of that motion's remaining steps relative to the new zero.
func (d *Dev) ResetPosition() {
	d.mu.Lock()
	d.position = 0
	d.mu.Unlock()
}

// PositionSteps returns the carriage position as the signed sum of all steps
// issued since the last ResetPosition.
func (d *Dev) PositionSteps() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

// PositionInches returns the carriage position in inches from the last
// ResetPosition.
func (d *Dev) PositionInches() float64 {
	return float64(d.PositionSteps()) / float64(d.opts.StepsPerRev) / d.opts.ThreadsPerInch
}

// IsMinLimitTriggered reports whether the minimum travel switch is held.
func (d *Dev) IsMinLimitTriggered() bool {
	return d.minTriggered.Load()
}

// IsMaxLimitTriggered reports whether the maximum travel switch is held.
func (d *Dev) IsMaxLimitTriggered() bool {
	return d.maxTriggered.Load()
}

// OnMinLimitChange registers f to run on every minimum limit transition,
// in either direction. f runs on the monitor goroutine and must not block;
// it carries no payload, so re-read IsMinLimitTriggered for the new state.
func (d *Dev) OnMinLimitChange(f func()) {
	d.mu.Lock()
	d.onMin = append(d.onMin, f)
	d.mu.Unlock()
}

// OnMaxLimitChange registers f to run on every maximum limit transition.
func (d *Dev) OnMaxLimitChange(f func()) {
	d.mu.Lock()
	d.onMax = append(d.onMax, f)
	d.mu.Unlock()
}

func (d *Dev) minObservers() []func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]func(){}, d.onMin...)
}

func (d *Dev) maxObservers() []func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]func(){}, d.onMax...)
}

// String returns a description of the stage wiring.
//
// String implements conn.Resource.
func (d *Dev) String() string {
	return fmt.Sprintf("linearstage{pulse: %s, dir: %s}", d.opts.Pulse.Name(), d.opts.Dir.Name())
}

// Halt requests a graceful stop of any in-flight motion, like Stop.
//
// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	d.Stop()
	return nil
}

// Close cancels any in-flight motion, waits for it to decelerate out, stops
// the limit monitors and releases the pins. Close is idempotent: the pins
// are halted exactly once.
func (d *Dev) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		if d.busy {
			d.stopRequested.Store(true)
		}
		d.mu.Unlock()
		d.motionWG.Wait()
		close(d.monitorStop)
		d.monitorWG.Wait()

		err := multierr.Combine(
			d.opts.Pulse.Halt(),
			d.opts.Dir.Halt(),
			d.opts.MinLimit.Halt(),
			d.opts.MaxLimit.Halt(),
		)
		if d.opts.Enable != nil {
			err = multierr.Append(err, d.opts.Enable.Halt())
		}
		d.closeErr = err
	})
	return d.closeErr
}

var _ conn.Resource = &Dev{}
