// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"

	"github.com/juju/vsphere-integrator/cmd"
	"github.com/juju/vsphere-integrator/internal/clients"
	"github.com/juju/vsphere-integrator/internal/hooktool"
	"github.com/juju/vsphere-integrator/internal/integrator"
	"github.com/juju/vsphere-integrator/internal/kvstore"
	"github.com/juju/vsphere-integrator/internal/vsphere"
)

const hookDoc = `
The binary is installed as every hook of the vsphere-integrator charm. The
hook to run is taken from JUJU_HOOK_NAME, or else from the name the binary
was invoked as.

Hook tools are looked up on the PATH set up by the unit agent. Unit state
is kept in a SQLite database in the charm directory.
`

// hookHandler handles charm hooks.
type hookHandler interface {
	Reconcile(ctx context.Context, hook string) error
	PreSeriesUpgrade(ctx context.Context) error
	PostSeriesUpgrade(ctx context.Context) error
	Stop(ctx context.Context) error
}

type hookCommand struct {
	argv0  string
	getenv func(string) string
	runner hooktool.CommandRunner
	clock  clock.Clock

	charmDir  string
	statePath string
	timeout   time.Duration
	logLevel  string

	level loggo.Level
}

func newHookCommand(argv0 string, getenv func(string) string, runner hooktool.CommandRunner, clk clock.Clock) *hookCommand {
	return &hookCommand{
		argv0:  argv0,
		getenv: getenv,
		runner: runner,
		clock:  clk,
	}
}

// Info is part of the cmd.Command interface.
func (c *hookCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "vsphere-integrator",
		Purpose: "run a vsphere-integrator charm hook",
		Doc:     hookDoc,
	}
}

// SetFlags is part of the cmd.Command interface.
func (c *hookCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.charmDir, "charm-dir", c.getenv("JUJU_CHARM_DIR"), "charm directory")
	f.StringVar(&c.statePath, "state", "", "unit state database (default <charm-dir>/"+kvstore.DefaultFilename+")")
	f.DurationVar(&c.timeout, "timeout", hooktool.DefaultTimeout, "time limit for each hook tool")
	f.StringVar(&c.logLevel, "log-level", "INFO", "lowest level sent to the unit log")
}

// Init is part of the cmd.Command interface.
func (c *hookCommand) Init(args []string) error {
	if err := cmd.CheckEmpty(args); err != nil {
		return err
	}
	if c.charmDir == "" {
		c.charmDir = "."
	}
	if c.statePath == "" {
		c.statePath = filepath.Join(c.charmDir, kvstore.DefaultFilename)
	}
	if c.timeout <= 0 {
		return errors.NotValidf("timeout %v", c.timeout)
	}
	level, ok := loggo.ParseLevel(c.logLevel)
	if !ok {
		return errors.NotValidf("log level %q", c.logLevel)
	}
	c.level = level
	return nil
}

// hookName returns the name of the hook being run.
func (c *hookCommand) hookName() string {
	if hook := c.getenv("JUJU_HOOK_NAME"); hook != "" {
		return hook
	}
	return filepath.Base(c.argv0)
}

// Run is part of the cmd.Command interface.
func (c *hookCommand) Run(ctx context.Context) error {
	unitName := c.getenv("JUJU_UNIT_NAME")
	if unitName == "" {
		return errors.New("JUJU_UNIT_NAME not set")
	}
	tools, err := hooktool.NewClient(hooktool.Config{
		Runner:   c.runner,
		Clock:    c.clock,
		Timeout:  c.timeout,
		UnitName: unitName,
	})
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := loggo.ReplaceDefaultWriter(hooktool.NewLogWriter(tools)); err != nil {
		return errors.Trace(err)
	}
	loggo.GetLogger("juju.vsphere").SetLogLevel(c.level)

	store, err := kvstore.Open(c.statePath)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = store.Close() }()

	handler, err := newHandler(tools, store)
	if err != nil {
		return errors.Trace(err)
	}
	hook := c.hookName()
	if err := dispatch(ctx, handler, hook); err != nil {
		logger.Errorf("%s hook failed: %v", hook, err)
		return errors.Trace(err)
	}
	return nil
}

// newHandler wires the reconciler to the hook tools and unit state.
func newHandler(tools *hooktool.Client, store *kvstore.Store) (*integrator.Reconciler, error) {
	resolver, err := vsphere.NewResolver(vsphere.ResolverConfig{
		Fetcher: vsphere.NewTrustFetcher(tools),
		Store:   store,
		Status:  tools,
		Logger:  loggo.GetLogger("juju.vsphere.resolver"),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return integrator.NewReconciler(integrator.Config{
		ConfigSource: tools,
		Resolver:     resolver,
		Clients:      clients.NewEndpoint(tools),
		Store:        store,
		Status:       tools,
		Logger:       loggo.GetLogger("juju.vsphere.integrator"),
	})
}

// dispatch runs the handler for hook.
func dispatch(ctx context.Context, h hookHandler, hook string) error {
	logger.Debugf("running %q hook", hook)
	switch hook {
	case "stop":
		return errors.Trace(h.Stop(ctx))
	case "pre-series-upgrade":
		return errors.Trace(h.PreSeriesUpgrade(ctx))
	case "post-series-upgrade":
		return errors.Trace(h.PostSeriesUpgrade(ctx))
	}
	return errors.Trace(h.Reconcile(ctx, hook))
}
