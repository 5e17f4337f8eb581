// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package linearstage drives a lead-screw linear actuator: a stepper motor
// behind a step/direction driver (A4988, DRV8825 and similar) moving a
// carriage between two travel limit switches.
//
// The package owns the motion core only: acceleration profiles (see the ramp
// subpackage), the real-time pulse loop, position tracking, limit-switch
// monitoring and graceful stop/cancel. Pins are consumed through
// periph.io/x/conn/v3/gpio, so anything that exposes gpio.PinIO works: host
// GPIO via periph.io/x/host/v3, an I/O expander, or gpiotest fakes during
// development.
//
// # Timing
//
// Step delays run from hundreds of microseconds to low milliseconds. The
// pulse loop busy-polls the monotonic clock between edges instead of
// sleeping; time.Sleep granularity at that scale produces audible speed
// ripple and lost torque. The trade-off is one core kept busy for the
// duration of a motion operation.
//
// # Concurrency
//
// One motion operation runs at a time; starting a second one fails with
// ErrBusy. Position, target speed, the stop request and the limit-switch
// flags may be read from any goroutine while a motion is in flight.
//
// # Wiring
//
// Forward is the direction that drives the carriage toward the maximum limit
// switch and is signalled with DIR high. Limit switches are wired active-low
// (normally-open to ground with a pull-up). The optional enable pin follows
// the A4988 convention: low energizes the driver.
package linearstage
