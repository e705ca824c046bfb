// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"os"
	"runtime"

	"github.com/juju/clock"
	"github.com/juju/loggo"

	"github.com/juju/vsphere-integrator/cmd"
	"github.com/juju/vsphere-integrator/internal/hooktool"
)

var logger = loggo.GetLogger("juju.vsphere.cmd.integrator")

// exitPanic is the value that is returned when we exit due to an
// unhandled panic.
const exitPanic = 3

func main() {
	os.Exit(Main(os.Args))
}

// Main is not redundant with main(), because it provides an entry point
// for testing with arbitrary command line arguments.
func Main(args []string) int {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			buf = buf[:runtime.Stack(buf, false)]
			logger.Criticalf("Unhandled panic: \n%v\n%s", r, buf)
			os.Exit(exitPanic)
		}
	}()

	command := newHookCommand(args[0], os.Getenv, hooktool.DefaultRunner{}, clock.WallClock)
	return cmd.Main(context.Background(), command, args, os.Stderr)
}
