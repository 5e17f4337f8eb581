// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ramp computes per-step pulse timing for constant-acceleration
// stepper motion.
//
// It implements David Austin's discretized ramp approximation ("Generate
// stepper-motor speed profiles in real time", Embedded Systems Programming,
// January 2005), which derives each step delay from the previous one with a
// single division, avoiding a square root per step. That keeps the cost of
// computing the next delay far below the delay itself even at high step
// rates.
//
// All delays are expressed in microseconds as float64 so that the recurrence
// accumulates no integer truncation error across a ramp.
package ramp
