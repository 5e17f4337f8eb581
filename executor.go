// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package linearstage

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"

	"github.com/carriageworks/linearstage/ramp"
)

// unboundedSteps marks a run-to-limit operation, which has no step budget.
const unboundedSteps = -1

// run executes one motion operation end to end: direction setup, driver
// enable, the step/delay loop, position updates, and the stop/cancel paths.
// totalSteps == unboundedSteps runs until the limit switch for dir triggers.
//
// A stop request, context cancellation or (on unbounded runs) a limit switch
// all take the same deceleration path; none of them is an error. The only
// errors out of here are pin failures, and the enable pin is de-energized on
// every exit path regardless.
func (d *Dev) run(ctx context.Context, dir Direction, totalSteps int, rpm float64) (err error) {
	bounded := totalSteps != unboundedSteps

	var plan ramp.Plan
	if bounded {
		plan = ramp.PlanMove(totalSteps, rpm, d.opts.StepsPerRev, d.opts.Accel)
	} else {
		plan = ramp.PlanRun(rpm, d.opts.StepsPerRev, d.opts.Accel)
	}
	d.targetRPM.Store(math.Float64bits(rpm))

	dirLevel := gpio.High
	if dir == Reverse {
		dirLevel = gpio.Low
	}
	if err := d.opts.Dir.Out(dirLevel); err != nil {
		return errors.Wrap(err, "linearstage: setting direction")
	}

	if d.opts.Enable != nil {
		// Active-low: energize before the first pulse...
		if err := d.opts.Enable.Out(gpio.Low); err != nil {
			return errors.Wrap(err, "linearstage: energizing driver")
		}
		// ...and de-energize on every exit path, fault or not.
		defer func() {
			if eerr := d.opts.Enable.Out(gpio.High); eerr != nil {
				err = multierr.Append(err, errors.Wrap(eerr, "linearstage: de-energizing driver"))
			}
		}()
	}

	var (
		delay     = plan.InitialDelay
		issued    = 0
		rampIdx   = 0  // steps of speed above rest; what a full stop costs
		decelLeft = -1 // steps left in a latched deceleration; -1 = not latched
		lastRPM   = rpm
	)

	for {
		if bounded && issued == totalSteps {
			break
		}

		// Latch the composite stop condition once: Stop(), the caller's
		// context, or (for unbounded runs) the limit switch ahead.
		if decelLeft < 0 && d.stopCondition(ctx, dir, bounded) {
			decelLeft = rampIdx
			if decelLeft > plan.DecelSteps {
				decelLeft = plan.DecelSteps
			}
			if bounded {
				if remaining := totalSteps - issued; decelLeft > remaining {
					decelLeft = remaining
				}
			}
		}
		if decelLeft == 0 {
			break
		}

		switch {
		case decelLeft > 0:
			delay = ramp.Lengthen(delay, maxInt(rampIdx, 1))
			if rampIdx > 0 {
				rampIdx--
			}
			decelLeft--

		case bounded && totalSteps-issued <= plan.DecelSteps:
			// Natural deceleration tail of a bounded move.
			delay = ramp.Lengthen(delay, maxInt(rampIdx, 1))
			if rampIdx > 0 {
				rampIdx--
			}

		case issued < plan.AccelSteps:
			rampIdx++
			delay = ramp.Shorten(delay, rampIdx)
			if delay < plan.TargetDelay {
				delay = plan.TargetDelay
			}

		default:
			// Constant-speed phase: the only point where a retarget is
			// picked up, so ramps in progress are never disturbed.
			if rpm := d.TargetSpeed(); rpm != lastRPM {
				lastRPM = rpm
				plan.Retarget(rpm, d.opts.StepsPerRev, d.opts.Accel)
				if !bounded && plan.DecelSteps > ramp.DecelCap {
					plan.DecelSteps = ramp.DecelCap
				}
				if bounded {
					if remaining := totalSteps - issued; plan.DecelSteps > remaining {
						plan.DecelSteps = remaining
					}
				}
			}
			switch {
			case delay > plan.TargetDelay:
				rampIdx++
				delay = ramp.Shorten(delay, rampIdx)
				if delay < plan.TargetDelay {
					delay = plan.TargetDelay
				}
			case delay < plan.TargetDelay:
				delay = ramp.Lengthen(delay, maxInt(rampIdx, 1))
				if rampIdx > 0 {
					rampIdx--
				}
				if delay > plan.TargetDelay {
					delay = plan.TargetDelay
				}
			}
		}

		if err := d.pulse(delay); err != nil {
			return err
		}
		issued++
		d.commitStep(dir)
	}
	return nil
}

// stopCondition composes the reasons the current motion should wind down.
func (d *Dev) stopCondition(ctx context.Context, dir Direction, bounded bool) bool {
	if d.stopRequested.Load() || ctx.Err() != nil {
		return true
	}
	if bounded {
		// Bounded moves ignore the limit switches; the caller asked for a
		// distance inside known travel.
		return false
	}
	if dir == Forward {
		return d.maxTriggered.Load()
	}
	return d.minTriggered.Load()
}

// pulse emits one symmetric step pulse whose period is delayUS microseconds.
func (d *Dev) pulse(delayUS float64) error {
	half := time.Duration(delayUS/2*1000) * time.Nanosecond
	if err := d.opts.Pulse.Out(gpio.High); err != nil {
		return errors.Wrap(err, "linearstage: pulse high")
	}
	d.wait(half)
	if err := d.opts.Pulse.Out(gpio.Low); err != nil {
		return errors.Wrap(err, "linearstage: pulse low")
	}
	d.wait(half)
	return nil
}

// commitStep records one issued step, immediately after its pulse and before
// the next delay begins.
func (d *Dev) commitStep(dir Direction) {
	d.mu.Lock()
	if dir == Forward {
		d.position++
	} else {
		d.position--
	}
	d.mu.Unlock()
}

// spinWait busy-polls the monotonic clock for d. Step delays sit between
// time.Sleep's practical resolution and the sub-millisecond jitter bound the
// motor needs, so the accuracy is bought with CPU time: one core runs hot
// for the duration of a motion operation.
func spinWait(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
