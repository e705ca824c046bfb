// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hooktool

import (
	"github.com/juju/errors"
	"github.com/juju/utils/v4/exec"
)

//go:generate go run go.uber.org/mock/mockgen -package hooktool -destination runner_mock_test.go github.com/juju/vsphere-integrator/internal/hooktool CommandRunner

// CommandRunner runs a shell script. Closing cancel asks the runner to
// kill the script, in which case exec.ErrCancelled is returned.
type CommandRunner interface {
	RunCommands(params exec.RunParams, cancel <-chan struct{}) (*exec.ExecResponse, error)
}

// DefaultRunner runs scripts with bash through the juju exec package.
type DefaultRunner struct{}

// RunCommands is part of the CommandRunner interface.
func (DefaultRunner) RunCommands(params exec.RunParams, cancel <-chan struct{}) (*exec.ExecResponse, error) {
	if err := params.Run(); err != nil {
		return nil, errors.Trace(err)
	}
	return params.WaitWithCancel(cancel)
}
