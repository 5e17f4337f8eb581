// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ramp

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestReferenceProfile(t *testing.T) {
	// 60 RPM at 400 steps/rev is 400 steps/s; 5000 steps/s² needs 16 steps
	// to get there.
	const (
		rpm   = 60.
		spr   = 400
		accel = 5000.
	)

	if got := AccelSteps(rpm, spr, accel); got != 16 {
		t.Errorf("AccelSteps() = %d, want 16", got)
	}
	if got := TargetDelay(rpm, spr); math.Abs(got-2500) > 0.5 {
		t.Errorf("TargetDelay() = %f, want 2500 ±0.5", got)
	}
	if got := InitialDelay(accel); math.Abs(got-13520) > 0.5 {
		t.Errorf("InitialDelay() = %f, want 13520 ±0.5", got)
	}
}

func TestPlanMove(t *testing.T) {
	for _, test := range []struct {
		name       string
		totalSteps int
		rpm        float64
		want       Plan
	}{
		{
			name:       "long move has full ramps",
			totalSteps: 2000,
			rpm:        60,
			want:       Plan{AccelSteps: 16, DecelSteps: 16, InitialDelay: 13520, TargetDelay: 2500},
		},
		{
			name:       "short move splits evenly",
			totalSteps: 21,
			rpm:        60,
			want:       Plan{AccelSteps: 10, DecelSteps: 11, InitialDelay: 13520, TargetDelay: 2500},
		},
		{
			name:       "single step decelerates",
			totalSteps: 1,
			rpm:        60,
			want:       Plan{AccelSteps: 0, DecelSteps: 1, InitialDelay: 13520, TargetDelay: 2500},
		},
		{
			name:       "boundary move keeps full ramps",
			totalSteps: 32,
			rpm:        60,
			want:       Plan{AccelSteps: 16, DecelSteps: 16, InitialDelay: 13520, TargetDelay: 2500},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got := PlanMove(test.totalSteps, test.rpm, 400, 5000)
			if diff := cmp.Diff(got, test.want, cmpopts.EquateApprox(0, 0.01)); diff != "" {
				t.Errorf("PlanMove() difference (-got +want):\n%s", diff)
			}
		})
	}
}

func TestPlanMoveSplitInvariant(t *testing.T) {
	// Whenever the ramps do not fit, the split must cover the whole move and
	// put the floor half into acceleration.
	for _, totalSteps := range []int{1, 2, 3, 5, 7, 15, 31} {
		p := PlanMove(totalSteps, 60, 400, 5000)
		if p.AccelSteps+p.DecelSteps != totalSteps {
			t.Errorf("PlanMove(%d): accel %d + decel %d != total", totalSteps, p.AccelSteps, p.DecelSteps)
		}
		if p.AccelSteps != totalSteps/2 {
			t.Errorf("PlanMove(%d): accel = %d, want %d", totalSteps, p.AccelSteps, totalSteps/2)
		}
	}
}

func TestPlanRunCapsDeceleration(t *testing.T) {
	// 600 RPM at 400 steps/rev with a soft 100 steps/s² ramp would need
	// 80000 steps to wind down; the cap keeps overshoot bounded.
	p := PlanRun(600, 400, 100)
	if p.DecelSteps != DecelCap {
		t.Errorf("PlanRun() DecelSteps = %d, want %d", p.DecelSteps, DecelCap)
	}

	// A gentle run that stops within the cap keeps its natural length.
	p = PlanRun(60, 400, 5000)
	if p.DecelSteps != 16 {
		t.Errorf("PlanRun() DecelSteps = %d, want 16", p.DecelSteps)
	}
}

func TestShortenApproachesTargetDelay(t *testing.T) {
	const (
		rpm   = 60.
		spr   = 400
		accel = 5000.
	)
	target := TargetDelay(rpm, spr)
	delay := InitialDelay(accel)
	prev := delay
	for n := 1; n <= AccelSteps(rpm, spr, accel); n++ {
		delay = Shorten(delay, n)
		if delay >= prev {
			t.Fatalf("Shorten() not strictly decreasing at n=%d: %f >= %f", n, delay, prev)
		}
		prev = delay
	}
	// Austin's approximation lands within a few percent of the closed form.
	if math.Abs(delay-target)/target > 0.05 {
		t.Errorf("final accel delay = %f, want within 5%% of %f", delay, target)
	}
}

func TestLengthenInvertsShorten(t *testing.T) {
	delay := 2500.
	for m := 1; m <= 50; m++ {
		if got := Lengthen(Shorten(delay, m), m); math.Abs(got-delay) > 1e-6 {
			t.Errorf("Lengthen(Shorten(d, %d), %d) = %f, want %f", m, m, got, delay)
		}
	}
}

func TestRetarget(t *testing.T) {
	p := PlanMove(2000, 60, 400, 5000)
	p.Retarget(120, 400, 5000)
	if math.Abs(p.TargetDelay-1250) > 0.5 {
		t.Errorf("Retarget() TargetDelay = %f, want 1250 ±0.5", p.TargetDelay)
	}
	if p.DecelSteps != 64 {
		t.Errorf("Retarget() DecelSteps = %d, want 64", p.DecelSteps)
	}
	// Elapsed-phase bookkeeping is untouched.
	if p.AccelSteps != 16 {
		t.Errorf("Retarget() AccelSteps = %d, want 16", p.AccelSteps)
	}
}
