// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package linearstage

import (
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// monitorEdgeTimeout bounds each WaitForEdge call so the monitor notices
// monitorStop promptly even on pins that never see another edge.
const monitorEdgeTimeout = 100 * time.Millisecond

// watchLimit keeps flag in sync with one limit switch and notifies observers
// on every transition. It is the sole writer of flag; the pulse executor and
// the IsMin/MaxLimitTriggered accessors only read it.
//
// Switches are active-low, so a Low read means the carriage is on the switch.
// The level is re-read after each edge rather than trusting the edge
// direction, which also debounces chatter into at most one notification per
// settled level.
func (d *Dev) watchLimit(p gpio.PinIO, flag *atomic.Bool, observers func() []func()) {
	defer d.monitorWG.Done()
	for {
		select {
		case <-d.monitorStop:
			return
		default:
		}
		p.WaitForEdge(monitorEdgeTimeout)
		triggered := p.Read() == gpio.Low
		if flag.Swap(triggered) == triggered {
			continue
		}
		d.log.Debugw("limit switch transition", "pin", p.Name(), "triggered", triggered)
		for _, f := range observers() {
			f()
		}
	}
}
