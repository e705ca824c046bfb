// Copyright 2012-2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cmd is a minimal command framework over gnuflag.
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("juju.vsphere.cmd")

// Exit codes returned by Main.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Info holds everything necessary to describe a Command's intent and usage.
type Info struct {
	// Name is the Command's name.
	Name string

	// Args describes the command's expected arguments.
	Args string

	// Purpose is a short explanation of the Command's purpose.
	Purpose string

	// Doc is the long documentation for the Command.
	Doc string
}

// Usage combines Name and Args to describe the Command's intended usage.
func (i *Info) Usage() string {
	if i.Args == "" {
		return i.Name + " [options]"
	}
	return fmt.Sprintf("%s [options] %s", i.Name, i.Args)
}

// Command is implemented by types that interpret command-line arguments.
type Command interface {
	// Info returns information about the command.
	Info() *Info

	// SetFlags adds the command's options to f.
	SetFlags(f *gnuflag.FlagSet)

	// Init is called with the positional arguments left after parsing.
	Init(args []string) error

	// Run executes the command according to the options and positional
	// arguments interpreted by Parse.
	Run(ctx context.Context) error
}

// NewFlagSet returns a FlagSet initialized for use with c.
func NewFlagSet(c Command, stderr io.Writer) *gnuflag.FlagSet {
	f := gnuflag.NewFlagSet(c.Info().Name, gnuflag.ContinueOnError)
	f.SetOutput(stderr)
	f.Usage = func() { PrintUsage(c, stderr) }
	c.SetFlags(f)
	return f
}

// PrintUsage prints usage information for c to w.
func PrintUsage(c Command, w io.Writer) {
	i := c.Info()
	fmt.Fprintf(w, "usage: %s\n", i.Usage())
	if i.Purpose != "" {
		fmt.Fprintf(w, "purpose: %s\n", i.Purpose)
	}
	fmt.Fprintf(w, "\noptions:\n")
	f := gnuflag.NewFlagSet(i.Name, gnuflag.ContinueOnError)
	f.SetOutput(w)
	c.SetFlags(f)
	f.PrintDefaults()
	if i.Doc != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(i.Doc))
	}
}

// Parse parses args on c. This must be called before c is Run.
func Parse(c Command, args []string, stderr io.Writer) error {
	f := NewFlagSet(c, stderr)
	if err := f.Parse(true, args); err != nil {
		return err
	}
	return c.Init(f.Args())
}

// CheckEmpty is a utility function that returns an error if args is not empty.
func CheckEmpty(args []string) error {
	if len(args) != 0 {
		return errors.Errorf("unrecognised args: %s", args)
	}
	return nil
}

// Main parses and runs c with the arguments following the program name,
// and returns the exit code.
func Main(ctx context.Context, c Command, args []string, stderr io.Writer) int {
	if err := Parse(c, args[1:], stderr); err == gnuflag.ErrHelp {
		return ExitOK
	} else if err != nil {
		fmt.Fprintf(stderr, "ERROR %v\n", err)
		return ExitUsage
	}
	if err := c.Run(ctx); err != nil {
		logger.Debugf("%s command failed: %s", c.Info().Name, errors.ErrorStack(err))
		fmt.Fprintf(stderr, "ERROR %v\n", err)
		return ExitError
	}
	return ExitOK
}
