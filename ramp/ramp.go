// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ramp

import "math"

// DecelCap bounds the deceleration tail of an unbounded run. The total travel
// of a run toward a limit switch is not known in advance, so once a stop
// condition is seen the motor is brought to rest within at most this many
// steps, bounding the overshoot distance.
const DecelCap = 300

// InitialDelay returns the delay in microseconds before the first step when
// accelerating from rest at accel steps/s².
func InitialDelay(accel float64) float64 {
	return 0.676 * math.Sqrt(2/accel) * 1e6
}

// TargetDelay returns the steady-state per-step delay in microseconds for a
// speed of rpm with the given steps per revolution.
func TargetDelay(rpm float64, stepsPerRev int) float64 {
	return 1e6 / (rpm * float64(stepsPerRev) / 60)
}

// AccelSteps returns the number of steps needed to reach rpm from rest at
// accel steps/s².
func AccelSteps(rpm float64, stepsPerRev int, accel float64) int {
	rate := rpm * float64(stepsPerRev) / 60
	return int(rate * rate / (2 * accel))
}

// Shorten returns the delay for acceleration step n (n ≥ 1) given the delay
// of the previous step. The result strictly decreases with n, asymptotically
// approaching the target delay. Callers clamp at the target delay so that
// floating-point drift can never push the motor past the requested speed.
func Shorten(delay float64, n int) float64 {
	return delay - 2*delay/float64(4*n+1)
}

// Lengthen returns the delay while decelerating with m steps remaining
// (m ≥ 1) given the delay of the previous step. It is the exact inverse of
// Shorten, so a deceleration retraces the acceleration curve back to rest.
func Lengthen(delay float64, m int) float64 {
	return delay + 2*delay/float64(4*m-1)
}

// A Plan holds the phase boundaries and delay endpoints for one motion
// operation. A Plan is derived fresh at the start of each motion and
// recomputed with Retarget when the target speed changes mid-flight.
type Plan struct {
	// AccelSteps is the length of the acceleration phase in steps.
	AccelSteps int
	// DecelSteps is the length of the deceleration phase in steps. For
	// bounded moves it mirrors AccelSteps unless the move is too short to
	// reach full speed; for unbounded runs it is capped at DecelCap.
	DecelSteps int
	// InitialDelay is the first-step delay in microseconds.
	InitialDelay float64
	// TargetDelay is the steady-state delay in microseconds. Step delays
	// never go below it.
	TargetDelay float64
}

// PlanMove computes the profile for a bounded move of totalSteps steps. A
// move too short to reach full speed gets a symmetric ramp with no constant
// phase: the acceleration half is totalSteps/2 (integer division) and the
// deceleration half takes the remainder.
func PlanMove(totalSteps int, rpm float64, stepsPerRev int, accel float64) Plan {
	p := Plan{
		AccelSteps:   AccelSteps(rpm, stepsPerRev, accel),
		InitialDelay: InitialDelay(accel),
		TargetDelay:  TargetDelay(rpm, stepsPerRev),
	}
	p.DecelSteps = p.AccelSteps
	if 2*p.AccelSteps > totalSteps {
		p.AccelSteps = totalSteps / 2
		p.DecelSteps = totalSteps - p.AccelSteps
	}
	return p
}

// PlanRun computes the profile for an unbounded run toward a limit switch.
func PlanRun(rpm float64, stepsPerRev int, accel float64) Plan {
	p := Plan{
		AccelSteps:   AccelSteps(rpm, stepsPerRev, accel),
		InitialDelay: InitialDelay(accel),
		TargetDelay:  TargetDelay(rpm, stepsPerRev),
	}
	p.DecelSteps = p.AccelSteps
	if p.DecelSteps > DecelCap {
		p.DecelSteps = DecelCap
	}
	return p
}

// Retarget updates the speed-dependent fields for a new target rpm. Delays of
// steps already elapsed are not affected; the executor ramps the current
// delay toward the new TargetDelay. The caller re-applies its own bound
// (remaining steps or DecelCap) to DecelSteps afterwards.
func (p *Plan) Retarget(rpm float64, stepsPerRev int, accel float64) {
	p.TargetDelay = TargetDelay(rpm, stepsPerRev)
	p.DecelSteps = AccelSteps(rpm, stepsPerRev, accel)
}
