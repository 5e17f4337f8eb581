// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package linearstage_test

import (
	"context"
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/carriageworks/linearstage"
)

func Example() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	stage, err := linearstage.New(&linearstage.Opts{
		Pulse:          gpioreg.ByName("GPIO17"),
		Dir:            gpioreg.ByName("GPIO27"),
		Enable:         gpioreg.ByName("GPIO22"),
		MinLimit:       gpioreg.ByName("GPIO23"),
		MaxLimit:       gpioreg.ByName("GPIO24"),
		StepsPerRev:    400,
		ThreadsPerInch: 5,
		Accel:          5000,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer stage.Close()

	// Find the minimum limit switch and zero the position there.
	if err := stage.Home(context.Background(), 30); err != nil {
		log.Fatal(err)
	}

	if err := stage.MoveDistance(context.Background(), 1.5, 60); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("carriage at %.3f in\n", stage.PositionInches())
}
