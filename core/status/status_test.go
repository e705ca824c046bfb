// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/vsphere-integrator/core/status"
)

type StatusSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&StatusSuite{})

func (s *StatusSuite) TestValidWorkloadStatus(c *gc.C) {
	for _, st := range []status.Status{
		status.Active, status.Blocked, status.Maintenance, status.Waiting,
	} {
		c.Check(status.ValidWorkloadStatus(st), jc.IsTrue, gc.Commentf("status %q", st))
	}
	c.Check(status.ValidWorkloadStatus("error"), jc.IsFalse)
	c.Check(status.ValidWorkloadStatus(""), jc.IsFalse)
}

func (s *StatusSuite) TestValidate(c *gc.C) {
	err := status.StatusInfo{Status: "lost"}.Validate()
	c.Assert(err, jc.ErrorIs, errors.NotValid)
	c.Assert(err, gc.ErrorMatches, `workload status "lost" not valid`)

	c.Assert(status.Activef(status.MessageReady).Validate(), jc.ErrorIsNil)
}

func (s *StatusSuite) TestString(c *gc.C) {
	c.Check(status.Blockedf(status.MessageMissingRequiredConf, "folder").String(),
		gc.Equals, "blocked: Missing required 'folder' config")
	c.Check(status.StatusInfo{Status: status.Active}.String(), gc.Equals, "active")
	c.Check(status.Maintenancef(status.MessageGrantingRequestFmt, "worker/0").String(),
		gc.Equals, "maintenance: granting request for worker/0")
}
