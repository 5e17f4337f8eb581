// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command example homes a linear stage and moves the carriage a requested
// distance, decelerating to a stop on SIGINT.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/edaniels/golog"

	"github.com/carriageworks/linearstage"
)

func main() {
	var (
		pulsePin = flag.String("pulse", "GPIO17", "step pulse pin")
		dirPin   = flag.String("dir", "GPIO27", "direction pin")
		enPin    = flag.String("enable", "GPIO22", "driver enable pin, active-low (empty to skip)")
		minPin   = flag.String("min", "GPIO23", "minimum limit switch pin")
		maxPin   = flag.String("max", "GPIO24", "maximum limit switch pin")
		spr      = flag.Int("spr", 400, "steps per revolution incl. microstepping")
		tpi      = flag.Float64("tpi", 5, "lead screw threads per inch")
		accel    = flag.Float64("accel", 5000, "acceleration in steps/s²")
		inches   = flag.Float64("move", 1.0, "distance to move after homing, in inches")
		rpm      = flag.Float64("rpm", 60, "motor speed in RPM")
	)
	flag.Parse()

	logger := golog.NewLogger("example")

	if _, err := host.Init(); err != nil {
		logger.Fatal(err)
	}

	opts := &linearstage.Opts{
		Pulse:          gpioreg.ByName(*pulsePin),
		Dir:            gpioreg.ByName(*dirPin),
		MinLimit:       gpioreg.ByName(*minPin),
		MaxLimit:       gpioreg.ByName(*maxPin),
		StepsPerRev:    *spr,
		ThreadsPerInch: *tpi,
		Accel:          *accel,
		Logger:         logger,
	}
	if *enPin != "" {
		opts.Enable = gpioreg.ByName(*enPin)
	}

	stage, err := linearstage.New(opts)
	if err != nil {
		logger.Fatal(err)
	}
	defer stage.Close()

	// Ctrl-C decelerates the current motion instead of killing the process
	// mid-step.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		logger.Info("interrupt received, stopping")
		stage.Stop()
	}()

	ctx := context.Background()

	logger.Infow("homing", "rpm", *rpm)
	if err := stage.Home(ctx, *rpm); err != nil {
		logger.Fatal(err)
	}
	if !stage.IsMinLimitTriggered() {
		logger.Info("homing interrupted, position unknown; exiting")
		return
	}

	logger.Infow("moving", "inches", *inches, "rpm", *rpm)
	if err := stage.MoveDistance(ctx, *inches, *rpm); err != nil {
		logger.Fatal(err)
	}

	fmt.Printf("carriage at %.3f in (%d steps)\n", stage.PositionInches(), stage.PositionSteps())
}
