// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hooktool is a client for the hook tools that the unit agent puts
// on the PATH of a running hook: config-get, status-set, juju-log,
// credential-get and the relation-* family.
package hooktool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4/exec"
	"github.com/kballard/go-shellquote"

	"github.com/juju/vsphere-integrator/core/status"
)

var logger = loggo.GetLogger("juju.vsphere.hooktool")

// DefaultTimeout bounds every hook tool invocation.
const DefaultTimeout = 30 * time.Second

// exitCommandNotFound is the bash exit code for a missing command.
const exitCommandNotFound = 127

// Config holds the dependencies of a Client.
type Config struct {
	Runner  CommandRunner
	Clock   clock.Clock
	Timeout time.Duration

	// UnitName is the name of the unit running the hook, as found in
	// JUJU_UNIT_NAME.
	UnitName string

	// Environment, when not nil, replaces the environment of the tools.
	Environment []string
}

// Validate returns an error if the config cannot drive a Client.
func (c Config) Validate() error {
	if c.Runner == nil {
		return errors.NotValidf("nil Runner")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Timeout <= 0 {
		return errors.NotValidf("timeout %v", c.Timeout)
	}
	if c.UnitName == "" {
		return errors.NotValidf("empty UnitName")
	}
	return nil
}

// ExitError is returned when a hook tool exits with a non-zero code.
type ExitError struct {
	Tool   string
	Code   int
	Stderr string
}

// Error is part of the error interface.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s failed with exit code %d", e.Tool, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Client runs hook tools.
type Client struct {
	cfg Config
}

// NewClient returns a Client for the given config.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Client{cfg: cfg}, nil
}

// UnitName returns the name of the unit running the hook.
func (c *Client) UnitName() string {
	return c.cfg.UnitName
}

// run invokes tool with args and returns its stdout. A non-zero exit is
// reported as an *ExitError.
func (c *Client) run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	params := exec.RunParams{
		Commands:    shellquote.Join(append([]string{tool}, args...)...),
		Environment: c.cfg.Environment,
		Clock:       c.cfg.Clock,
	}

	cancel := make(chan struct{})
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-finished:
			return
		case <-ctx.Done():
		case <-c.cfg.Clock.After(c.cfg.Timeout):
		}
		close(cancel)
	}()

	// Arguments may carry secrets; only the tool name is logged.
	logger.Tracef("running %s", tool)
	resp, err := c.cfg.Runner.RunCommands(params, cancel)
	if errors.Is(err, exec.ErrCancelled) {
		if ctx.Err() != nil {
			return nil, errors.Annotatef(ctx.Err(), "running %s", tool)
		}
		return nil, errors.Timeoutf("%s after %v", tool, c.cfg.Timeout)
	} else if err != nil {
		return nil, errors.Annotatef(err, "running %s", tool)
	}
	if resp.Code != 0 {
		return nil, &ExitError{
			Tool:   tool,
			Code:   resp.Code,
			Stderr: strings.TrimSpace(string(resp.Stderr)),
		}
	}
	return resp.Stdout, nil
}

// ConfigGet returns every charm option, including unset ones.
func (c *Client) ConfigGet(ctx context.Context) (map[string]interface{}, error) {
	out, err := c.run(ctx, "config-get", "--all", "--format=json")
	if err != nil {
		return nil, errors.Trace(err)
	}
	var settings map[string]interface{}
	if err := json.Unmarshal(out, &settings); err != nil {
		return nil, errors.Annotate(err, "decoding config-get output")
	}
	return settings, nil
}

// SetStatus sets the workload status of the unit. It implements
// status.StatusSetter.
func (c *Client) SetStatus(ctx context.Context, info status.StatusInfo) error {
	if err := info.Validate(); err != nil {
		return errors.Trace(err)
	}
	args := []string{info.Status.String()}
	if info.Message != "" {
		args = append(args, info.Message)
	}
	_, err := c.run(ctx, "status-set", args...)
	return errors.Trace(err)
}

// JujuLog writes msg to the unit log at the given level.
func (c *Client) JujuLog(ctx context.Context, level, msg string) error {
	_, err := c.run(ctx, "juju-log", "-l", level, msg)
	return errors.Trace(err)
}

// CredentialGet returns the YAML cloud spec of the model. It requires the
// application to be trusted. The error satisfies errors.NotSupported when
// the tool is not installed and errors.Unauthorized when trust has not
// been granted.
func (c *Client) CredentialGet(ctx context.Context) ([]byte, error) {
	out, err := c.run(ctx, "credential-get", "--format=yaml")
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		switch {
		case exitErr.Code == exitCommandNotFound:
			return nil, errors.NewNotSupported(err, "credential-get")
		case strings.Contains(exitErr.Stderr, "permission denied"):
			return nil, errors.NewUnauthorized(err, "credential-get")
		}
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return out, nil
}

// RelationIds returns the ids of the established relations for the
// named endpoint.
func (c *Client) RelationIds(ctx context.Context, endpoint string) ([]string, error) {
	out, err := c.run(ctx, "relation-ids", "--format=json", endpoint)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var ids []string
	if err := json.Unmarshal(out, &ids); err != nil {
		return nil, errors.Annotate(err, "decoding relation-ids output")
	}
	return ids, nil
}

// RelationList returns the remote units participating in a relation.
func (c *Client) RelationList(ctx context.Context, relationID string) ([]string, error) {
	out, err := c.run(ctx, "relation-list", "--format=json", "-r", relationID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var units []string
	if err := json.Unmarshal(out, &units); err != nil {
		return nil, errors.Annotate(err, "decoding relation-list output")
	}
	return units, nil
}

// RelationGet returns the settings that unit has published on a relation.
func (c *Client) RelationGet(ctx context.Context, relationID, unit string) (map[string]string, error) {
	out, err := c.run(ctx, "relation-get", "--format=json", "-r", relationID, "-", unit)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var settings map[string]string
	if err := json.Unmarshal(out, &settings); err != nil {
		return nil, errors.Annotate(err, "decoding relation-get output")
	}
	return settings, nil
}

// RelationSet publishes settings for the local unit on a relation.
func (c *Client) RelationSet(ctx context.Context, relationID string, settings map[string]string) error {
	if len(settings) == 0 {
		return nil
	}
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []string{"-r", relationID}
	for _, k := range keys {
		args = append(args, k+"="+settings[k])
	}
	_, err := c.run(ctx, "relation-set", args...)
	return errors.Trace(err)
}
