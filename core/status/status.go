// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status

import (
	"context"
	"fmt"

	"github.com/juju/errors"
)

// Status is the workload status of the charm's unit, as understood by the
// status-set hook tool.
type Status string

// String returns a string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// StatusInfo holds a Status and associated information.
type StatusInfo struct {
	Status  Status
	Message string
}

// String returns the status as it would be rendered by juju status.
func (i StatusInfo) String() string {
	if i.Message == "" {
		return i.Status.String()
	}
	return fmt.Sprintf("%s: %s", i.Status, i.Message)
}

// StatusSetter represents a type whose status can be set.
type StatusSetter interface {
	SetStatus(context.Context, StatusInfo) error
}

const (
	// Maintenance is set when:
	// The unit is not yet providing services, but is actively doing stuff
	// in preparation for providing those services.
	// This is a "spinning" state, not an error state.
	// It reflects activity on the unit itself, not on peers or related units.
	Maintenance Status = "maintenance"

	// Waiting is set when:
	// The unit is unable to progress to an active state because an application to
	// which it is related is not running.
	Waiting Status = "waiting"

	// Blocked is set when:
	// The unit needs manual intervention to get back to the Running state.
	Blocked Status = "blocked"

	// Active is set when:
	// The unit believes it is correctly offering all the services it has
	// been asked to offer.
	Active Status = "active"
)

const (
	MessageReady               = "ready"
	MessageSeriesUpgrade       = "Series upgrade in progress"
	MessageGrantingRequestFmt  = "granting request for %s"
	MessageInvalidCredentials  = "invalid value for credentials config"
	MessageMissingCredentials  = "missing credentials; set credentials config"
	MessageMissingTrust        = "missing credentials access; grant with: juju trust"
	MessageMissingRequiredConf = "Missing required '%s' config"
)

// ValidWorkloadStatus returns true if status has a valid value (that is to say,
// a value that it's OK to set) for units.
func ValidWorkloadStatus(status Status) bool {
	switch status {
	case
		Blocked,
		Maintenance,
		Waiting,
		Active:
		return true
	default:
		return false
	}
}

// Validate returns an error if the status cannot be set on a workload.
func (i StatusInfo) Validate() error {
	if !ValidWorkloadStatus(i.Status) {
		return errors.NotValidf("workload status %q", i.Status)
	}
	return nil
}

// Blockedf returns a blocked StatusInfo with a formatted message.
func Blockedf(format string, args ...interface{}) StatusInfo {
	return StatusInfo{Status: Blocked, Message: fmt.Sprintf(format, args...)}
}

// Maintenancef returns a maintenance StatusInfo with a formatted message.
func Maintenancef(format string, args ...interface{}) StatusInfo {
	return StatusInfo{Status: Maintenance, Message: fmt.Sprintf(format, args...)}
}

// Activef returns an active StatusInfo with a formatted message.
func Activef(format string, args ...interface{}) StatusInfo {
	return StatusInfo{Status: Active, Message: fmt.Sprintf(format, args...)}
}
